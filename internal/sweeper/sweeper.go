// Package sweeper runs the periodic maintenance pass: retention of old
// decisions and confidence decay of unused patterns.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/openclaw/smartroute/internal/config"
	"github.com/openclaw/smartroute/internal/store"
)

// Sweeper schedules the maintenance job with a cron expression.
type Sweeper struct {
	store  *store.Store
	cfg    config.SweeperConfig
	cron   *cron.Cron
	logger *slog.Logger
}

// New creates a Sweeper.
func New(st *store.Store, cfg config.SweeperConfig, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:  st,
		cfg:    cfg,
		logger: logger.With("component", "sweeper"),
	}
}

// Start schedules the job and runs until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) error {
	if _, err := cron.ParseStandard(s.cfg.Schedule); err != nil {
		return fmt.Errorf("invalid sweeper schedule %q: %w", s.cfg.Schedule, err)
	}

	s.cron = cron.New()
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if err := s.Sweep(ctx); err != nil {
			s.logger.Warn("sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info("sweeper started",
		"schedule", s.cfg.Schedule,
		"retention_days", s.cfg.RetentionDays,
	)

	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	return nil
}

// Sweep runs one maintenance pass immediately.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	purged, err := s.store.PurgeDecisions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge decisions: %w", err)
	}

	stale := time.Now().AddDate(0, 0, -s.cfg.DecayAfterDays)
	decayed, err := s.store.DecayPatterns(ctx, stale, s.cfg.DecayFactor)
	if err != nil {
		return fmt.Errorf("decay patterns: %w", err)
	}

	s.logger.Info("sweep complete", "purged_decisions", purged, "decayed_patterns", decayed)
	return nil
}
