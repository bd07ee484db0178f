// Package learner closes the routing feedback loop: it records outcomes,
// maintains per-model aggregates, reinforces learned patterns, and detects
// new patterns from clusters of similar successful decisions.
package learner

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openclaw/smartroute/internal/catalog"
	"github.com/openclaw/smartroute/internal/store"
)

const (
	// minSamples is the minimum cluster size before a pattern is created,
	// and the minimum frequency of the dominant model within it.
	minSamples = 5
	// minConfidence is the minimum frequency ratio of the dominant model.
	minConfidence = 0.6
	// complexityWindow / tokenWindow bound what counts as "similar".
	complexityWindow = 0.1
	tokenWindow      = 500
)

// Learner updates the pattern store from outcome reports.
type Learner struct {
	store   *store.Store
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// New creates a Learner.
func New(st *store.Store, cat *catalog.Catalog, logger *slog.Logger) *Learner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Learner{
		store:   st,
		catalog: cat,
		logger:  logger.With("component", "learner"),
	}
}

// ReportOutcome records a decision's outcome and runs the learning updates.
// The outcome write is the only step whose failure reaches the caller
// (write-once and not-found violations must be surfaced); the aggregate and
// pattern updates are bookkeeping and only log on failure.
func (l *Learner) ReportOutcome(ctx context.Context, owner, decisionID string, o store.Outcome) (*store.Decision, error) {
	if err := l.store.RecordOutcome(ctx, owner, decisionID, o); err != nil {
		return nil, err
	}

	d, err := l.store.GetDecision(ctx, owner, decisionID)
	if err != nil {
		return nil, err
	}

	if err := l.store.RecordPerformance(ctx, owner, d.Model, d.Provider, d.TaskType, o); err != nil {
		l.logger.Warn("performance update failed", "decision", decisionID, "error", err)
	}

	if d.PatternID != "" {
		if err := l.store.ReinforcePattern(ctx, d.PatternID, o.Success); err != nil {
			l.logger.Warn("pattern reinforcement failed", "pattern", d.PatternID, "error", err)
		}
	}

	if o.Success {
		if err := l.detectPattern(ctx, d); err != nil {
			l.logger.Warn("pattern detection failed", "decision", decisionID, "error", err)
		}
	}

	return d, nil
}

// detectPattern looks for a cluster of similar successful decisions agreeing
// on a model and, when the cluster is large and cohesive enough, mints a new
// pattern. Existing patterns covering the range win: later candidates are
// silently skipped, there is no merge logic.
func (l *Learner) detectPattern(ctx context.Context, d *store.Decision) error {
	similar, err := l.store.SimilarDecisions(ctx, d.Owner, d.TaskType,
		d.Complexity, complexityWindow, d.EstimatedTokens, tokenWindow)
	if err != nil {
		return err
	}

	var successful []store.SimilarOutcome
	for _, so := range similar {
		if so.Success {
			successful = append(successful, so)
		}
	}
	if len(successful) < minSamples {
		return nil
	}

	cmin := clamp01(d.Complexity - complexityWindow)
	cmax := clamp01(d.Complexity + complexityWindow)

	overlaps, err := l.store.HasOverlappingPattern(ctx, d.Owner, d.TaskType, cmin, cmax)
	if err != nil {
		return err
	}
	if overlaps {
		return nil
	}

	model, provider, freq := dominantModel(successful)
	ratio := float64(freq) / float64(len(successful))
	if freq < minSamples || ratio < minConfidence {
		return nil
	}

	tmin := d.EstimatedTokens - tokenWindow
	if tmin < 0 {
		tmin = 0
	}

	now := time.Now().UTC()
	p := &store.Pattern{
		ID:            uuid.NewString(),
		Owner:         d.Owner,
		TaskType:      d.TaskType,
		ComplexityMin: cmin,
		ComplexityMax: cmax,
		TokenMin:      tmin,
		TokenMax:      d.EstimatedTokens + tokenWindow,
		Model:         model,
		Provider:      provider,
		Successes:     freq,
		Failures:      0,
		Confidence:    ratio,
		CreatedAt:     now,
		LastUsedAt:    now,
	}
	if err := l.store.InsertPattern(ctx, p); err != nil {
		return err
	}

	l.logger.Info("pattern learned",
		"owner", d.Owner,
		"task_type", d.TaskType.String(),
		"model", model,
		"confidence", ratio,
		"samples", len(successful),
	)
	return nil
}

// dominantModel returns the most frequent model+provider in the cluster.
// Ties keep the first-counted entry, which follows decision insertion order.
func dominantModel(outcomes []store.SimilarOutcome) (model, provider string, freq int) {
	type key struct{ model, provider string }
	counts := make(map[key]int, len(outcomes))
	var order []key
	for _, so := range outcomes {
		k := key{so.Model, so.Provider}
		if counts[k] == 0 {
			order = append(order, k)
		}
		counts[k]++
	}
	for _, k := range order {
		if counts[k] > freq {
			model, provider, freq = k.model, k.provider, counts[k]
		}
	}
	return model, provider, freq
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
