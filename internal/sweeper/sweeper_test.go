package sweeper

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/openclaw/smartroute/internal/analyzer"
	"github.com/openclaw/smartroute/internal/config"
	"github.com/openclaw/smartroute/internal/store"
)

func testSweeper(t *testing.T) (*Sweeper, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	s := New(st, config.SweeperConfig{
		Schedule:       "0 3 * * *",
		RetentionDays:  90,
		DecayAfterDays: 30,
		DecayFactor:    0.9,
	}, nil)
	return s, st
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	_, st := testSweeper(t)
	s := New(st, config.SweeperConfig{Schedule: "every day at dawn"}, nil)

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("invalid cron expression should be rejected")
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	s, _ := testSweeper(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("start returned %v on cancel", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestSweepPurgesAndDecays(t *testing.T) {
	s, st := testSweeper(t)
	ctx := context.Background()

	old := &store.Decision{
		ID: "old", Owner: "alice", TaskType: analyzer.TaskQuery,
		Model: "claude-haiku", Provider: "anthropic",
		Alternatives: "[]", CreatedAt: time.Now().AddDate(0, 0, -120),
	}
	fresh := &store.Decision{
		ID: "fresh", Owner: "alice", TaskType: analyzer.TaskQuery,
		Model: "claude-haiku", Provider: "anthropic",
		Alternatives: "[]", CreatedAt: time.Now(),
	}
	for _, d := range []*store.Decision{old, fresh} {
		if err := st.InsertDecision(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	stale := &store.Pattern{
		ID: "stale", Owner: "alice", TaskType: analyzer.TaskCode,
		ComplexityMin: 0.4, ComplexityMax: 0.6, TokenMax: 10000,
		Model: "claude-sonnet", Provider: "anthropic",
		Confidence: 0.8, CreatedAt: time.Now(),
		LastUsedAt: time.Now().AddDate(0, 0, -60),
	}
	active := &store.Pattern{
		ID: "active", Owner: "alice", TaskType: analyzer.TaskWriting,
		ComplexityMin: 0.1, ComplexityMax: 0.3, TokenMax: 10000,
		Model: "claude-haiku", Provider: "anthropic",
		Confidence: 0.8, CreatedAt: time.Now(), LastUsedAt: time.Now(),
	}
	for _, p := range []*store.Pattern{stale, active} {
		if err := st.InsertPattern(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.Sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if _, err := st.GetDecision(ctx, "alice", "old"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("old decision survived sweep: %v", err)
	}
	if _, err := st.GetDecision(ctx, "alice", "fresh"); err != nil {
		t.Errorf("fresh decision purged: %v", err)
	}

	pats, err := st.ListPatterns(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	byID := map[string]float64{}
	for _, p := range pats {
		byID[p.ID] = p.Confidence
	}
	if math.Abs(byID["stale"]-0.72) > 1e-9 {
		t.Errorf("stale confidence = %v, want 0.72 after decay", byID["stale"])
	}
	if byID["active"] != 0.8 {
		t.Errorf("active confidence = %v, want untouched", byID["active"])
	}
}
