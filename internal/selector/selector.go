// Package selector ranks catalog models for an analyzed request using a
// weighted sum of four sub-scores and persists the resulting decision.
package selector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/smartroute/internal/analyzer"
	"github.com/openclaw/smartroute/internal/catalog"
	"github.com/openclaw/smartroute/internal/store"
)

// Sub-score weights. They must sum to exactly 1.0; WeightSum exists so tests
// can enforce that.
const (
	WeightComplexity  = 0.40
	WeightBudget      = 0.30
	WeightPattern     = 0.20
	WeightPerformance = 0.10

	WeightSum = WeightComplexity + WeightBudget + WeightPattern + WeightPerformance
)

const (
	// patternWindow is the complexity window for prior-decision matching.
	patternWindow = 0.2
	// strengthBonus is added when a model lists the task type as a strength.
	strengthBonus = 0.2
	// patternBonus is added when a learned pattern recommends the model.
	patternBonus = 0.3
	// historyDays bounds the historical-performance lookback.
	historyDays = 30
	// neutralPattern is the pattern-match default with no history.
	neutralPattern = 0.5
	// optimisticHistory is the historical default for untested models.
	optimisticHistory = 0.6
	// budgetPressure is the utilization above which cheap models dominate.
	budgetPressure = 0.8
	// headroomMultiple: remaining budget ≥ this × cost counts as headroom.
	headroomMultiple = 10.0
)

// Options constrain a selection.
type Options struct {
	// ForceModel short-circuits scoring when it names a catalog model.
	ForceModel string `json:"forceModel,omitempty"`
	// MaxCostUSD disqualifies models whose estimate exceeds it. Zero = off.
	MaxCostUSD float64 `json:"maxCostUsd,omitempty"`
	// Exclude lists model IDs to skip.
	Exclude []string `json:"exclude,omitempty"`
	// DryRun scores without persisting (the "test" path).
	DryRun bool `json:"dryRun,omitempty"`
}

// Alternative is a runner-up candidate.
type Alternative struct {
	Model    string  `json:"model"`
	Provider string  `json:"provider"`
	Score    float64 `json:"score"`
}

// Selection is the routing result returned to the caller.
type Selection struct {
	DecisionID    string            `json:"decisionId,omitempty"`
	Model         string            `json:"model"`
	Provider      string            `json:"provider"`
	Reason        string            `json:"reason"`
	Confidence    float64           `json:"confidence"`
	EstimatedCost float64           `json:"estimatedCost"`
	Alternatives  []Alternative     `json:"alternatives,omitempty"`
	Analysis      analyzer.Analysis `json:"analysis"`
}

// Selector scores candidates and records decisions.
type Selector struct {
	store   *store.Store
	catalog *catalog.Catalog
	budget  BudgetSource
	logger  *slog.Logger
}

// New creates a Selector.
func New(st *store.Store, cat *catalog.Catalog, budget BudgetSource, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		store:   st,
		catalog: cat,
		budget:  budget,
		logger:  logger.With("component", "selector"),
	}
}

// EstimateCost prices a request against a model assuming a fixed 3:1
// prompt-to-completion token ratio.
func EstimateCost(m catalog.Model, promptTokens int) float64 {
	return m.Cost(promptTokens, promptTokens/3)
}

// Select picks the best model for an analyzed request. It never returns an
// error: any internal failure degrades to the fixed balanced fallback so
// selection can never block the caller.
func (s *Selector) Select(ctx context.Context, owner string, a analyzer.Analysis, opts Options) Selection {
	if opts.ForceModel != "" {
		if m, ok := s.catalog.Lookup(opts.ForceModel); ok {
			return Selection{
				Model:         m.ID,
				Provider:      m.Provider,
				Reason:        "forced",
				Confidence:    1.0,
				EstimatedCost: EstimateCost(m, a.EstimatedTokens),
				Analysis:      a,
			}
		}
		s.logger.Warn("forced model not in catalog, scoring instead", "model", opts.ForceModel)
	}

	sel, err := s.score(ctx, owner, a, opts)
	if err != nil {
		s.logger.Error("selection failed, using fallback", "owner", owner, "error", err)
		return s.fallback(a)
	}
	return sel
}

// fallback is the fixed mid-tier answer used when scoring fails.
func (s *Selector) fallback(a analyzer.Analysis) Selection {
	m := s.catalog.Fallback()
	return Selection{
		Model:         m.ID,
		Provider:      m.Provider,
		Reason:        "error_fallback",
		Confidence:    0.5,
		EstimatedCost: EstimateCost(m, a.EstimatedTokens),
		Analysis:      a,
	}
}

type scoredCandidate struct {
	model      catalog.Model
	cost       float64
	complexity float64
	budget     float64
	pattern    float64
	history    float64
	total      float64
}

func (s *Selector) score(ctx context.Context, owner string, a analyzer.Analysis, opts Options) (Selection, error) {
	excluded := make(map[string]bool, len(opts.Exclude))
	for _, id := range opts.Exclude {
		excluded[id] = true
	}

	limit, spent, err := s.budget.DailyBudget(ctx, owner)
	if err != nil {
		return Selection{}, fmt.Errorf("budget source: %w", err)
	}
	remaining := limit - spent

	// One history query serves the pattern-match sub-score for every
	// candidate: prior completed decisions within ±0.2 complexity.
	similar, err := s.store.SimilarDecisions(ctx, owner, a.TaskType, a.Complexity, patternWindow, 0, 0)
	if err != nil {
		return Selection{}, fmt.Errorf("similar decisions: %w", err)
	}

	matched, err := s.store.MatchPattern(ctx, owner, a.TaskType, a.Complexity)
	if err != nil {
		return Selection{}, fmt.Errorf("match pattern: %w", err)
	}

	cheapest := s.cheapestEstimate(a.EstimatedTokens, excluded)
	since := time.Now().AddDate(0, 0, -historyDays)

	var candidates []scoredCandidate
	for _, m := range s.catalog.Models {
		if excluded[m.ID] {
			continue
		}

		cost := EstimateCost(m, a.EstimatedTokens)

		stats, err := s.store.RecentModelStats(ctx, owner, m.ID, a.TaskType, since)
		if err != nil {
			return Selection{}, fmt.Errorf("model stats: %w", err)
		}

		c := scoredCandidate{
			model:      m,
			cost:       cost,
			complexity: scoreComplexityMatch(m, a),
			budget:     scoreBudget(cost, cheapest, remaining, limit, opts.MaxCostUSD),
			pattern:    scorePatternMatch(m, similar, matched),
			history:    scoreHistory(stats),
		}
		c.total = WeightComplexity*c.complexity +
			WeightBudget*c.budget +
			WeightPattern*c.pattern +
			WeightPerformance*c.history
		candidates = append(candidates, c)
	}

	if len(candidates) == 0 {
		return Selection{}, fmt.Errorf("no candidates after exclusions")
	}

	// Catalog order is stable, and strict > keeps the first-seen winner on
	// ties, so identical inputs always produce identical selections.
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.total > best.total {
			best = c
		}
	}

	sel := Selection{
		Model:         best.model.ID,
		Provider:      best.model.Provider,
		Reason:        buildReason(best, a),
		Confidence:    clamp01(best.total),
		EstimatedCost: best.cost,
		Alternatives:  rankAlternatives(candidates, best.model.ID),
		Analysis:      a,
	}

	if !opts.DryRun {
		s.persist(ctx, owner, a, &sel, best, matched)
	}
	return sel, nil
}

// persist writes the decision row synchronously before the selection is
// returned; the row must exist for the outcome report to land. A failed
// write is logged and never blocks the caller, and is never retried.
func (s *Selector) persist(ctx context.Context, owner string, a analyzer.Analysis, sel *Selection, best scoredCandidate, matched *store.Pattern) {
	altJSON, err := json.Marshal(sel.Alternatives)
	if err != nil {
		altJSON = []byte("[]")
	}

	d := &store.Decision{
		ID:              uuid.NewString(),
		Owner:           owner,
		TaskType:        a.TaskType,
		Complexity:      a.Complexity,
		EstimatedTokens: a.EstimatedTokens,
		HasCode:         a.HasCode,
		HasErrors:       a.HasErrors,
		Model:           sel.Model,
		Provider:        sel.Provider,
		Confidence:      sel.Confidence,
		Reason:          sel.Reason,
		Alternatives:    string(altJSON),
		EstimatedCost:   sel.EstimatedCost,
		CreatedAt:       time.Now().UTC(),
	}
	if matched != nil && matched.Model == sel.Model {
		d.PatternID = matched.ID
		if err := s.store.TouchPattern(ctx, matched.ID); err != nil {
			s.logger.Warn("touch pattern failed", "pattern", matched.ID, "error", err)
		}
	}

	if err := s.store.InsertDecision(ctx, d); err != nil {
		s.logger.Error("decision write failed", "owner", owner, "error", err)
		return
	}
	sel.DecisionID = d.ID
}

func (s *Selector) cheapestEstimate(tokens int, excluded map[string]bool) float64 {
	cheapest := -1.0
	for _, m := range s.catalog.Models {
		if excluded[m.ID] {
			continue
		}
		c := EstimateCost(m, tokens)
		if cheapest < 0 || c < cheapest {
			cheapest = c
		}
	}
	return cheapest
}

// scoreComplexityMatch is 1.0 inside the model's ideal range with a linear
// falloff outside it, plus a flat strengths bonus applied after the range
// check. Result clamped to [0,1].
func scoreComplexityMatch(m catalog.Model, a analyzer.Analysis) float64 {
	var score float64
	switch {
	case a.Complexity >= m.IdealMin && a.Complexity <= m.IdealMax:
		score = 1.0
	case a.Complexity < m.IdealMin:
		score = 1.0 - (m.IdealMin-a.Complexity)*2
	default:
		score = 1.0 - (a.Complexity-m.IdealMax)*2
	}
	if score < 0 {
		score = 0
	}
	if m.HasStrength(a.TaskType) {
		score += strengthBonus
	}
	return clamp01(score)
}

// scoreBudget folds cost pressure into [0,1]. An explicit max-cost breach is
// an outright 0; above 80% budget utilization cheap candidates dominate;
// otherwise a normalized inverse-cost score blends with a headroom indicator.
func scoreBudget(cost, cheapest, remaining, limit, maxCost float64) float64 {
	if maxCost > 0 && cost > maxCost {
		return 0
	}

	if limit > 0 && (limit-remaining)/limit > budgetPressure {
		if remaining <= 0 {
			return 0
		}
		v := 1 - cost/remaining
		if v < 0 {
			v = 0
		}
		return clamp01(v)
	}

	invCost := 1.0
	if cost > 0 && cheapest > 0 {
		invCost = cheapest / cost
	}
	headroom := 0.5
	if remaining >= headroomMultiple*cost {
		headroom = 1.0
	}
	return clamp01(0.7*invCost + 0.3*headroom)
}

// scorePatternMatch is the fraction of similar past decisions that chose this
// model and succeeded, plus a bonus when a learned pattern recommends it.
// With no history at all the score is neutral.
func scorePatternMatch(m catalog.Model, similar []store.SimilarOutcome, matched *store.Pattern) float64 {
	var score float64
	if len(similar) == 0 {
		score = neutralPattern
	} else {
		hits := 0
		for _, so := range similar {
			if so.Model == m.ID && so.Success {
				hits++
			}
		}
		score = float64(hits) / float64(len(similar))
	}
	if matched != nil && matched.Model == m.ID {
		score += patternBonus
	}
	return clamp01(score)
}

// scoreHistory blends 30-day success rate and average quality, defaulting to
// a slight positive bias so untested models are not starved.
func scoreHistory(stats store.ModelStats) float64 {
	if stats.Count == 0 {
		return optimisticHistory
	}
	return clamp01(0.6*stats.SuccessRate + 0.4*stats.AvgQuality)
}

func rankAlternatives(candidates []scoredCandidate, winner string) []Alternative {
	var rest []scoredCandidate
	for _, c := range candidates {
		if c.model.ID != winner {
			rest = append(rest, c)
		}
	}
	// Insertion sort by total, descending; ties keep catalog order.
	for i := 1; i < len(rest); i++ {
		for j := i; j > 0 && rest[j].total > rest[j-1].total; j-- {
			rest[j], rest[j-1] = rest[j-1], rest[j]
		}
	}
	if len(rest) > 2 {
		rest = rest[:2]
	}
	out := make([]Alternative, 0, len(rest))
	for _, c := range rest {
		out = append(out, Alternative{Model: c.model.ID, Provider: c.model.Provider, Score: round3(c.total)})
	}
	return out
}

func buildReason(c scoredCandidate, a analyzer.Analysis) string {
	var parts []string
	if c.complexity >= 0.8 {
		parts = append(parts, fmt.Sprintf("complexity %.2f fits ideal range", a.Complexity))
	} else {
		parts = append(parts, fmt.Sprintf("best available fit for complexity %.2f", a.Complexity))
	}
	if c.pattern > neutralPattern {
		parts = append(parts, "favored by routing history")
	}
	if c.budget >= 0.8 {
		parts = append(parts, "cost efficient")
	}
	if c.history > optimisticHistory {
		parts = append(parts, "strong recent performance")
	}
	return fmt.Sprintf("%s task: %s", a.TaskType, strings.Join(parts, "; "))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round3(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}
