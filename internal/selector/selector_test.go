package selector

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/openclaw/smartroute/internal/analyzer"
	"github.com/openclaw/smartroute/internal/catalog"
	"github.com/openclaw/smartroute/internal/store"
)

func testSelector(t *testing.T) (*Selector, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	sel := New(st, catalog.Default(), StaticBudget{LimitUSD: 10}, nil)
	return sel, st
}

func simpleQuery() analyzer.Analysis {
	return analyzer.Analysis{
		Complexity:      0.2,
		TaskType:        analyzer.TaskQuery,
		EstimatedTokens: 10,
	}
}

func hardReasoning() analyzer.Analysis {
	return analyzer.Analysis{
		Complexity:      0.9,
		TaskType:        analyzer.TaskReasoning,
		HasReasoning:    true,
		EstimatedTokens: 1000,
	}
}

func TestWeightsSumToOne(t *testing.T) {
	if WeightSum != 1.0 {
		t.Fatalf("weights sum to %v, want exactly 1.0", WeightSum)
	}
}

func TestSelectSimpleQueryPicksEconomy(t *testing.T) {
	sel, _ := testSelector(t)

	got := sel.Select(context.Background(), "alice", simpleQuery(), Options{DryRun: true})

	m, ok := catalog.Default().Lookup(got.Model)
	if !ok {
		t.Fatalf("selected unknown model %q", got.Model)
	}
	if m.Tier != catalog.TierEconomy {
		t.Errorf("simple query routed to %s (%s), want economy tier", got.Model, m.Tier)
	}
}

func TestSelectHardReasoningPicksPremium(t *testing.T) {
	sel, _ := testSelector(t)

	got := sel.Select(context.Background(), "alice", hardReasoning(), Options{DryRun: true})

	m, _ := catalog.Default().Lookup(got.Model)
	if m.Tier != catalog.TierPremium {
		t.Errorf("hard reasoning routed to %s (%s), want premium tier", got.Model, m.Tier)
	}
}

func TestSelectForcedModel(t *testing.T) {
	sel, st := testSelector(t)

	got := sel.Select(context.Background(), "alice", simpleQuery(), Options{ForceModel: "claude-opus"})

	if got.Model != "claude-opus" {
		t.Errorf("forced model = %s", got.Model)
	}
	if got.Confidence != 1.0 {
		t.Errorf("forced confidence = %v, want exactly 1.0", got.Confidence)
	}
	if got.Reason != "forced" {
		t.Errorf("forced reason = %q", got.Reason)
	}
	if got.DecisionID != "" {
		t.Error("forced selection must not persist a decision")
	}
	stats, err := st.Stats(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalDecisions != 0 {
		t.Errorf("decisions persisted = %d, want 0", stats.TotalDecisions)
	}
}

func TestSelectForcedUnknownModelScoresNormally(t *testing.T) {
	sel, _ := testSelector(t)

	got := sel.Select(context.Background(), "alice", simpleQuery(), Options{ForceModel: "no-such-model", DryRun: true})

	if got.Reason == "forced" {
		t.Error("unknown forced model should fall back to scoring")
	}
	if _, ok := catalog.Default().Lookup(got.Model); !ok {
		t.Errorf("scored selection returned unknown model %q", got.Model)
	}
}

func TestSelectExcludes(t *testing.T) {
	sel, _ := testSelector(t)

	first := sel.Select(context.Background(), "alice", simpleQuery(), Options{DryRun: true})
	second := sel.Select(context.Background(), "alice", simpleQuery(), Options{
		DryRun:  true,
		Exclude: []string{first.Model},
	})

	if second.Model == first.Model {
		t.Errorf("excluded model %s was still selected", first.Model)
	}
}

func TestSelectDryRunIsIdempotent(t *testing.T) {
	sel, st := testSelector(t)
	ctx := context.Background()

	a := sel.Select(ctx, "alice", hardReasoning(), Options{DryRun: true})
	b := sel.Select(ctx, "alice", hardReasoning(), Options{DryRun: true})

	if a.Model != b.Model || a.Confidence != b.Confidence || a.EstimatedCost != b.EstimatedCost {
		t.Errorf("dry runs differ: %+v vs %+v", a, b)
	}
	if a.DecisionID != "" {
		t.Error("dry run must not assign a decision ID")
	}
	stats, _ := st.Stats(ctx, "alice")
	if stats.TotalDecisions != 0 {
		t.Errorf("dry runs persisted %d decisions", stats.TotalDecisions)
	}
}

func TestSelectPersistsDecision(t *testing.T) {
	sel, st := testSelector(t)
	ctx := context.Background()

	got := sel.Select(ctx, "alice", simpleQuery(), Options{})

	if got.DecisionID == "" {
		t.Fatal("selection did not persist a decision")
	}
	d, err := st.GetDecision(ctx, "alice", got.DecisionID)
	if err != nil {
		t.Fatal(err)
	}
	if d.Model != got.Model || d.Confidence != got.Confidence {
		t.Errorf("persisted decision %+v does not match selection %+v", d, got)
	}
}

func TestSelectRecordsMatchedPattern(t *testing.T) {
	sel, st := testSelector(t)
	ctx := context.Background()

	p := &store.Pattern{
		ID:            "p1",
		Owner:         "alice",
		TaskType:      analyzer.TaskQuery,
		ComplexityMin: 0.0,
		ComplexityMax: 1.0,
		TokenMin:      0,
		TokenMax:      10000,
		Model:         "gpt-4o-mini",
		Provider:      "openai",
		Successes:     5,
		Confidence:    1.0,
		CreatedAt:     time.Now(),
		LastUsedAt:    time.Now(),
	}
	if err := st.InsertPattern(ctx, p); err != nil {
		t.Fatal(err)
	}

	got := sel.Select(ctx, "alice", simpleQuery(), Options{})

	if got.Model != "gpt-4o-mini" {
		t.Fatalf("pattern-backed selection = %s, want gpt-4o-mini", got.Model)
	}
	d, err := st.GetDecision(ctx, "alice", got.DecisionID)
	if err != nil {
		t.Fatal(err)
	}
	if d.PatternID != "p1" {
		t.Errorf("decision pattern id = %q, want p1", d.PatternID)
	}
}

type failingBudget struct{}

func (failingBudget) DailyBudget(context.Context, string) (float64, float64, error) {
	return 0, 0, errors.New("governor unreachable")
}

func TestSelectFallsBackOnError(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	sel := New(st, catalog.Default(), failingBudget{}, nil)

	got := sel.Select(context.Background(), "alice", simpleQuery(), Options{})

	if got.Reason != "error_fallback" {
		t.Errorf("reason = %q, want error_fallback", got.Reason)
	}
	if got.Confidence != 0.5 {
		t.Errorf("fallback confidence = %v, want 0.5", got.Confidence)
	}
	m, _ := catalog.Default().Lookup(got.Model)
	if m.Tier != catalog.TierBalanced {
		t.Errorf("fallback tier = %s, want balanced", m.Tier)
	}
}

func TestSelectAlternativesCapped(t *testing.T) {
	sel, _ := testSelector(t)

	got := sel.Select(context.Background(), "alice", simpleQuery(), Options{DryRun: true})

	if len(got.Alternatives) > 2 {
		t.Errorf("alternatives = %d, want at most 2", len(got.Alternatives))
	}
	for _, alt := range got.Alternatives {
		if alt.Model == got.Model {
			t.Error("winner listed among alternatives")
		}
	}
}

func TestEstimateCostRatio(t *testing.T) {
	m := catalog.Model{PromptPrice: 0.003, CompletionPrice: 0.015}

	// 900 prompt tokens assume 300 completion tokens.
	got := EstimateCost(m, 900)
	want := m.Cost(900, 300)
	if got != want {
		t.Errorf("EstimateCost = %v, want %v", got, want)
	}
}

func TestScoreComplexityMatch(t *testing.T) {
	m := catalog.Model{IdealMin: 0.3, IdealMax: 0.7}

	tests := []struct {
		complexity float64
		want       float64
	}{
		{0.5, 1.0},  // inside range
		{0.3, 1.0},  // boundary
		{0.2, 0.8},  // 0.1 below, falloff x2
		{0.9, 0.6},  // 0.2 above
		{0.0, 0.4},  // far below
	}
	for _, tt := range tests {
		got := scoreComplexityMatch(m, analyzer.Analysis{Complexity: tt.complexity})
		if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("scoreComplexityMatch(%v) = %v, want %v", tt.complexity, got, tt.want)
		}
	}

	// Strength bonus applies after the range check and stays clamped.
	strong := catalog.Model{IdealMin: 0, IdealMax: 1, Strengths: []string{"code"}}
	got := scoreComplexityMatch(strong, analyzer.Analysis{Complexity: 0.5, TaskType: analyzer.TaskCode})
	if got != 1.0 {
		t.Errorf("in-range plus bonus = %v, want clamped 1.0", got)
	}
}

func TestScoreBudget(t *testing.T) {
	// Max-cost breach disqualifies outright.
	if got := scoreBudget(0.05, 0.01, 10, 10, 0.01); got != 0 {
		t.Errorf("over max-cost = %v, want 0", got)
	}

	// Exhausted budget under pressure scores 0.
	if got := scoreBudget(0.05, 0.01, 0, 10, 0); got != 0 {
		t.Errorf("no remaining budget = %v, want 0", got)
	}

	// Cheapest model with full headroom scores 1.0.
	if got := scoreBudget(0.001, 0.001, 10, 10, 0); got != 1.0 {
		t.Errorf("cheapest with headroom = %v, want 1.0", got)
	}

	// All results stay in [0,1].
	cases := [][5]float64{
		{0.5, 0.001, 0.1, 10, 0},
		{0.0001, 0.0001, 9.5, 10, 0},
		{1, 0.5, 1.5, 10, 0},
	}
	for _, c := range cases {
		got := scoreBudget(c[0], c[1], c[2], c[3], c[4])
		if got < 0 || got > 1 {
			t.Errorf("scoreBudget(%v) = %v, out of [0,1]", c, got)
		}
	}
}

func TestScorePatternMatch(t *testing.T) {
	m := catalog.Model{ID: "claude-sonnet"}

	// No history: neutral.
	if got := scorePatternMatch(m, nil, nil); got != neutralPattern {
		t.Errorf("no history = %v, want %v", got, neutralPattern)
	}

	similar := []store.SimilarOutcome{
		{Model: "claude-sonnet", Success: true},
		{Model: "claude-sonnet", Success: true},
		{Model: "gpt-4o", Success: true},
		{Model: "claude-sonnet", Success: false},
	}
	if got := scorePatternMatch(m, similar, nil); got != 0.5 {
		t.Errorf("2/4 successful hits = %v, want 0.5", got)
	}

	// Pattern recommendation adds the bonus.
	p := &store.Pattern{Model: "claude-sonnet"}
	if got := scorePatternMatch(m, similar, p); got != 0.8 {
		t.Errorf("with pattern bonus = %v, want 0.8", got)
	}
}

func TestScoreHistory(t *testing.T) {
	// Untested models get the optimistic default.
	if got := scoreHistory(store.ModelStats{}); got != optimisticHistory {
		t.Errorf("no stats = %v, want %v", got, optimisticHistory)
	}

	got := scoreHistory(store.ModelStats{Count: 10, SuccessRate: 1.0, AvgQuality: 0.5})
	if diff := got - 0.8; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("blended history = %v, want 0.8", got)
	}
}
