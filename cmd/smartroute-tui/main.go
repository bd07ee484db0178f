// smartroute-tui is a terminal dashboard for a running smartroute server.
// It polls the HTTP API and renders routing stats, the complexity trend,
// learned patterns, and per-model performance.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

const refreshInterval = 5 * time.Second

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4")).
			MarginBottom(1)
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
	valueStyle = lipgloss.NewStyle().
			Bold(true)
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
	errStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)
)

// API payload mirrors. The TUI talks to the server over HTTP only, so it
// carries its own decode types.

type ownerStats struct {
	TotalDecisions int            `json:"totalDecisions"`
	Completed      int            `json:"completed"`
	SuccessRate    float64        `json:"successRate"`
	TotalCostUSD   float64        `json:"totalCostUsd"`
	AvgComplexity  float64        `json:"avgComplexity"`
	ByModel        map[string]int `json:"byModel"`
	ByTaskType     map[string]int `json:"byTaskType"`
}

type performance struct {
	Model         string  `json:"model"`
	Provider      string  `json:"provider"`
	TaskType      string  `json:"taskType"`
	TotalRequests int     `json:"totalRequests"`
	Successes     int     `json:"successes"`
	AvgLatencyMs  float64 `json:"avgLatencyMs"`
	AvgQuality    float64 `json:"avgQuality"`
	AvgCost       float64 `json:"avgCost"`
}

type statsResponse struct {
	Stats            ownerStats    `json:"stats"`
	Performance      []performance `json:"performance"`
	RecentComplexity []float64     `json:"recentComplexity"`
}

type pattern struct {
	TaskType      string  `json:"taskType"`
	ComplexityMin float64 `json:"complexityMin"`
	ComplexityMax float64 `json:"complexityMax"`
	Model         string  `json:"model"`
	Confidence    float64 `json:"confidence"`
	Successes     int     `json:"successes"`
	Failures      int     `json:"failures"`
}

type savingsReport struct {
	WindowDays      int     `json:"windowDays"`
	ActualCostUSD   float64 `json:"actualCostUsd"`
	BaselineCostUSD float64 `json:"baselineCostUsd"`
	SavedUSD        float64 `json:"savedUsd"`
	SavingsPercent  float64 `json:"savingsPercent"`
}

type refreshMsg struct {
	stats    *statsResponse
	patterns []pattern
	savings  *savingsReport
	err      error
}

type tickMsg time.Time

type model struct {
	apiURL   string
	owner    string
	client   *http.Client
	stats    *statsResponse
	savings  *savingsReport
	patterns table.Model
	lastErr  error
	width    int
	height   int
}

func newModel(apiURL, owner string) model {
	cols := []table.Column{
		{Title: "Task", Width: 10},
		{Title: "Complexity", Width: 12},
		{Title: "Model", Width: 16},
		{Title: "Conf", Width: 6},
		{Title: "S/F", Width: 7},
	}
	t := table.New(
		table.WithColumns(cols),
		table.WithHeight(8),
		table.WithFocused(true),
	)
	st := table.DefaultStyles()
	st.Header = st.Header.Bold(true).BorderBottom(true)
	st.Selected = st.Selected.Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	t.SetStyles(st)

	return model{
		apiURL:   apiURL,
		owner:    owner,
		client:   &http.Client{Timeout: 10 * time.Second},
		patterns: t,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		var msg refreshMsg

		var stats statsResponse
		if err := m.getJSON("/api/stats", &stats); err != nil {
			msg.err = err
			return msg
		}
		msg.stats = &stats

		var pats []pattern
		if err := m.getJSON("/api/patterns", &pats); err != nil {
			msg.err = err
			return msg
		}
		msg.patterns = pats

		var sav savingsReport
		if err := m.getJSON("/api/savings", &sav); err != nil {
			msg.err = err
			return msg
		}
		msg.savings = &sav

		return msg
	}
}

func (m model) getJSON(path string, out any) error {
	resp, err := m.client.Get(m.apiURL + path + "?owner=" + m.owner)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: HTTP %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.refreshCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tea.Batch(m.refreshCmd(), tickCmd())

	case refreshMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.stats = msg.stats
			m.savings = msg.savings
			m.patterns.SetRows(patternRows(msg.patterns))
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.patterns, cmd = m.patterns.Update(msg)
	return m, cmd
}

func patternRows(pats []pattern) []table.Row {
	sort.Slice(pats, func(i, j int) bool {
		return pats[i].Confidence > pats[j].Confidence
	})
	rows := make([]table.Row, 0, len(pats))
	for _, p := range pats {
		rows = append(rows, table.Row{
			p.TaskType,
			fmt.Sprintf("%.2f-%.2f", p.ComplexityMin, p.ComplexityMax),
			p.Model,
			fmt.Sprintf("%.2f", p.Confidence),
			fmt.Sprintf("%d/%d", p.Successes, p.Failures),
		})
	}
	return rows
}

func (m model) View() string {
	var sections []string

	sections = append(sections, titleStyle.Render(fmt.Sprintf("smartroute · %s", m.owner)))

	if m.lastErr != nil {
		sections = append(sections, errStyle.Render("✗ "+m.lastErr.Error()))
	}

	if m.stats != nil {
		sections = append(sections, m.renderSummary())
		if len(m.stats.RecentComplexity) >= 2 {
			sections = append(sections, m.renderTrend())
		}
	}

	sections = append(sections, cardStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			valueStyle.Render("Learned Patterns"),
			m.patterns.View(),
		),
	))

	sections = append(sections, helpStyle.Render("r refresh · ↑/↓ scroll patterns · q quit"))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m model) renderSummary() string {
	s := m.stats.Stats

	line := func(label, value string) string {
		return labelStyle.Render(label+": ") + valueStyle.Render(value)
	}

	left := lipgloss.JoinVertical(lipgloss.Left,
		line("Decisions", fmt.Sprintf("%d (%d completed)", s.TotalDecisions, s.Completed)),
		line("Success rate", fmt.Sprintf("%.0f%%", s.SuccessRate*100)),
		line("Avg complexity", fmt.Sprintf("%.2f", s.AvgComplexity)),
		line("Total spend", fmt.Sprintf("$%.4f", s.TotalCostUSD)),
	)

	var right string
	if m.savings != nil {
		right = lipgloss.JoinVertical(lipgloss.Left,
			line("Window", fmt.Sprintf("%d days", m.savings.WindowDays)),
			line("Baseline", fmt.Sprintf("$%.4f", m.savings.BaselineCostUSD)),
			line("Saved", fmt.Sprintf("$%.4f", m.savings.SavedUSD)),
			line("Savings", fmt.Sprintf("%.1f%%", m.savings.SavingsPercent)),
		)
	}

	return lipgloss.JoinHorizontal(lipgloss.Top,
		cardStyle.Render(left),
		" ",
		cardStyle.Render(right),
	)
}

func (m model) renderTrend() string {
	width := m.width - 12
	if width < 20 {
		width = 20
	}
	if len(m.stats.RecentComplexity) < width {
		width = len(m.stats.RecentComplexity)
	}
	graph := asciigraph.Plot(m.stats.RecentComplexity,
		asciigraph.Height(5),
		asciigraph.Width(width),
		asciigraph.Caption("complexity (recent decisions)"),
	)
	return cardStyle.Render(graph)
}

func main() {
	apiURL := flag.String("api", "http://localhost:8430", "smartroute API URL")
	owner := flag.String("owner", "", "Owner identity key (required)")
	flag.Parse()

	if *owner == "" {
		fmt.Fprintln(os.Stderr, "Usage: smartroute-tui --owner <key> [--api <url>]")
		os.Exit(1)
	}

	p := tea.NewProgram(newModel(*apiURL, *owner), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
