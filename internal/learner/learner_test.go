package learner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/openclaw/smartroute/internal/analyzer"
	"github.com/openclaw/smartroute/internal/catalog"
	"github.com/openclaw/smartroute/internal/store"
)

func testLearner(t *testing.T) (*Learner, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, catalog.Default(), nil), st
}

func insertDecision(t *testing.T, st *store.Store, id string, complexity float64, tokens int) {
	t.Helper()
	err := st.InsertDecision(context.Background(), &store.Decision{
		ID:              id,
		Owner:           "alice",
		TaskType:        analyzer.TaskCode,
		Complexity:      complexity,
		EstimatedTokens: tokens,
		Model:           "claude-sonnet",
		Provider:        "anthropic",
		Confidence:      0.8,
		Alternatives:    "[]",
		CreatedAt:       time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestReportOutcomeUpdatesAggregates(t *testing.T) {
	lr, st := testLearner(t)
	ctx := context.Background()

	insertDecision(t, st, "d1", 0.5, 800)

	d, err := lr.ReportOutcome(ctx, "alice", "d1", store.Outcome{
		Success: true, ActualTokens: 700, ActualCost: 0.004, Quality: 0.9, LatencyMs: 1500,
	})
	if err != nil {
		t.Fatal(err)
	}
	if d.Success == nil || !*d.Success {
		t.Error("returned decision missing outcome")
	}

	perf, err := st.ListPerformance(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(perf) != 1 || perf[0].TotalRequests != 1 || perf[0].Successes != 1 {
		t.Errorf("performance = %+v", perf)
	}
}

func TestReportOutcomeSurfacesStoreErrors(t *testing.T) {
	lr, st := testLearner(t)
	ctx := context.Background()

	if _, err := lr.ReportOutcome(ctx, "alice", "missing", store.Outcome{}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing decision = %v, want ErrNotFound", err)
	}

	insertDecision(t, st, "d1", 0.5, 800)
	if _, err := lr.ReportOutcome(ctx, "alice", "d1", store.Outcome{Success: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := lr.ReportOutcome(ctx, "alice", "d1", store.Outcome{}); !errors.Is(err, store.ErrOutcomeReported) {
		t.Errorf("duplicate report = %v, want ErrOutcomeReported", err)
	}
}

func TestPatternDetectionThreshold(t *testing.T) {
	lr, st := testLearner(t)
	ctx := context.Background()

	// Four successful similar decisions: below the five-sample minimum.
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("d%d", i)
		insertDecision(t, st, id, 0.5, 800)
		if _, err := lr.ReportOutcome(ctx, "alice", id, store.Outcome{Success: true}); err != nil {
			t.Fatal(err)
		}
	}
	pats, err := st.ListPatterns(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(pats) != 0 {
		t.Fatalf("pattern minted from 4 samples: %+v", pats)
	}

	// The fifth success crosses the threshold.
	insertDecision(t, st, "d4", 0.5, 800)
	if _, err := lr.ReportOutcome(ctx, "alice", "d4", store.Outcome{Success: true}); err != nil {
		t.Fatal(err)
	}
	pats, err = st.ListPatterns(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(pats) != 1 {
		t.Fatalf("patterns = %d, want 1", len(pats))
	}

	p := pats[0]
	if p.Model != "claude-sonnet" || p.TaskType != analyzer.TaskCode {
		t.Errorf("pattern = %+v", p)
	}
	if p.Confidence != 1.0 {
		t.Errorf("confidence = %v, want 1.0 for unanimous cluster", p.Confidence)
	}
	if p.Successes != 5 {
		t.Errorf("successes = %d, want 5", p.Successes)
	}
	if math.Abs(p.ComplexityMin-0.4) > 1e-9 || math.Abs(p.ComplexityMax-0.6) > 1e-9 {
		t.Errorf("complexity range = [%v,%v], want [0.4,0.6]", p.ComplexityMin, p.ComplexityMax)
	}
	if p.TokenMin != 300 || p.TokenMax != 1300 {
		t.Errorf("token range = [%d,%d], want [300,1300]", p.TokenMin, p.TokenMax)
	}
}

func TestPatternDetectionSkipsOverlap(t *testing.T) {
	lr, st := testLearner(t)
	ctx := context.Background()

	existing := &store.Pattern{
		ID: "p-existing", Owner: "alice", TaskType: analyzer.TaskCode,
		ComplexityMin: 0.45, ComplexityMax: 0.55,
		TokenMax: 10000, Model: "gpt-4o", Provider: "openai",
		Confidence: 0.9, CreatedAt: time.Now(), LastUsedAt: time.Now(),
	}
	if err := st.InsertPattern(ctx, existing); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("d%d", i)
		insertDecision(t, st, id, 0.5, 800)
		if _, err := lr.ReportOutcome(ctx, "alice", id, store.Outcome{Success: true}); err != nil {
			t.Fatal(err)
		}
	}

	pats, err := st.ListPatterns(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(pats) != 1 {
		t.Errorf("patterns = %d, want only the pre-existing one", len(pats))
	}
}

func TestPatternDetectionNeedsDominantModel(t *testing.T) {
	lr, st := testLearner(t)
	ctx := context.Background()

	// Six successes split 3/3 across two models: the dominant model never
	// reaches five occurrences, so no pattern forms.
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("d%d", i)
		d := &store.Decision{
			ID: id, Owner: "alice", TaskType: analyzer.TaskCode,
			Complexity: 0.5, EstimatedTokens: 800,
			Model: "claude-sonnet", Provider: "anthropic",
			Alternatives: "[]", CreatedAt: time.Now(),
		}
		if i%2 == 0 {
			d.Model, d.Provider = "gpt-4o", "openai"
		}
		if err := st.InsertDecision(ctx, d); err != nil {
			t.Fatal(err)
		}
		if _, err := lr.ReportOutcome(ctx, "alice", id, store.Outcome{Success: true}); err != nil {
			t.Fatal(err)
		}
	}

	pats, err := st.ListPatterns(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(pats) != 0 {
		t.Errorf("patterns = %+v, want none for a split cluster", pats)
	}
}

func TestFailedOutcomeNeverMintsPattern(t *testing.T) {
	lr, st := testLearner(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("d%d", i)
		insertDecision(t, st, id, 0.5, 800)
		success := i < 5
		if _, err := lr.ReportOutcome(ctx, "alice", id, store.Outcome{Success: success}); err != nil {
			t.Fatal(err)
		}
	}

	// Five successes already minted a pattern; the trailing failure must not
	// run detection at all (it would be skipped by overlap anyway, but the
	// invariant is that failures never mint).
	pats, _ := st.ListPatterns(ctx, "alice")
	if len(pats) != 1 {
		t.Errorf("patterns = %d, want 1", len(pats))
	}
}

func TestReinforcementThroughPatternID(t *testing.T) {
	lr, st := testLearner(t)
	ctx := context.Background()

	p := &store.Pattern{
		ID: "p1", Owner: "alice", TaskType: analyzer.TaskCode,
		ComplexityMin: 0.4, ComplexityMax: 0.6, TokenMax: 10000,
		Model: "claude-sonnet", Provider: "anthropic",
		Successes: 5, Confidence: 1.0,
		CreatedAt: time.Now(), LastUsedAt: time.Now(),
	}
	if err := st.InsertPattern(ctx, p); err != nil {
		t.Fatal(err)
	}

	d := &store.Decision{
		ID: "d1", Owner: "alice", TaskType: analyzer.TaskCode,
		Complexity: 0.5, EstimatedTokens: 800,
		Model: "claude-sonnet", Provider: "anthropic",
		PatternID: "p1", Alternatives: "[]", CreatedAt: time.Now(),
	}
	if err := st.InsertDecision(ctx, d); err != nil {
		t.Fatal(err)
	}

	if _, err := lr.ReportOutcome(ctx, "alice", "d1", store.Outcome{Success: false}); err != nil {
		t.Fatal(err)
	}

	pats, _ := st.ListPatterns(ctx, "alice")
	if pats[0].Failures != 1 {
		t.Errorf("failures = %d, want 1 after reinforcement", pats[0].Failures)
	}
	if math.Abs(pats[0].Confidence-5.0/6.0) > 1e-9 {
		t.Errorf("confidence = %v, want 5/6", pats[0].Confidence)
	}
}

func TestDominantModel(t *testing.T) {
	outcomes := []store.SimilarOutcome{
		{Model: "a", Provider: "p1", Success: true},
		{Model: "b", Provider: "p2", Success: true},
		{Model: "a", Provider: "p1", Success: true},
	}
	model, provider, freq := dominantModel(outcomes)
	if model != "a" || provider != "p1" || freq != 2 {
		t.Errorf("dominant = %s/%s x%d, want a/p1 x2", model, provider, freq)
	}

	// Ties keep the first-counted model.
	tied := []store.SimilarOutcome{
		{Model: "x", Provider: "p"},
		{Model: "y", Provider: "p"},
	}
	model, _, freq = dominantModel(tied)
	if model != "x" || freq != 1 {
		t.Errorf("tie broke to %s x%d, want x x1", model, freq)
	}
}

func TestSavings(t *testing.T) {
	lr, st := testLearner(t)
	ctx := context.Background()

	insertDecision(t, st, "d1", 0.5, 800)
	if _, err := lr.ReportOutcome(ctx, "alice", "d1", store.Outcome{
		Success: true, ActualTokens: 1000, ActualCost: 0.01,
	}); err != nil {
		t.Fatal(err)
	}

	report, err := lr.Savings(ctx, "alice", 30)
	if err != nil {
		t.Fatal(err)
	}
	if report.Decisions != 1 {
		t.Errorf("decisions = %d, want 1", report.Decisions)
	}
	if report.BaselineModel != "claude-opus" {
		t.Errorf("baseline model = %s, want claude-opus", report.BaselineModel)
	}

	// 1000 actual tokens repriced at the premium model: 750 prompt at
	// 0.015/1k plus 250 completion at 0.075/1k.
	wantBaseline := 750.0/1000*0.015 + 250.0/1000*0.075
	if math.Abs(report.BaselineCostUSD-wantBaseline) > 1e-9 {
		t.Errorf("baseline = %v, want %v", report.BaselineCostUSD, wantBaseline)
	}
	if math.Abs(report.SavedUSD-(wantBaseline-0.01)) > 1e-9 {
		t.Errorf("saved = %v", report.SavedUSD)
	}
	if report.SavingsPercent <= 0 {
		t.Errorf("savings percent = %v, want positive", report.SavingsPercent)
	}
}

func TestSavingsDefaultWindow(t *testing.T) {
	lr, _ := testLearner(t)

	report, err := lr.Savings(context.Background(), "alice", 0)
	if err != nil {
		t.Fatal(err)
	}
	if report.WindowDays != 30 {
		t.Errorf("default window = %d, want 30", report.WindowDays)
	}
	if report.SavedUSD != 0 || report.SavingsPercent != 0 {
		t.Errorf("empty history should report zero savings: %+v", report)
	}
}
