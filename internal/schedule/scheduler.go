// Package schedule runs the periodic maintenance of gatherings and the ledger.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"attendance-backend/config"
	"attendance-backend/internal/engine"
	"attendance-backend/internal/errdef"
	"attendance-backend/internal/parse"
	"attendance-backend/internal/scoring"
	"attendance-backend/internal/store"
)

// Invalidator drops cached reads. mw.ResponseCache implements it.
type Invalidator interface {
	Flush()
}

// Service deactivates expired gatherings, penalizes no-shows and escalates
// the month that has just ended.
type Service struct {
	cfg    config.SchedulerConfig
	store  store.Store
	engine *engine.Engine
	cache  Invalidator
	logger *slog.Logger
	now    func() time.Time

	escalated parse.Period
}

// NewService creates the scheduler. cache is flushed whenever a cycle changes
// points or warning levels and may be nil. A nil now uses time.Now.
func NewService(cfg config.SchedulerConfig, s store.Store, e *engine.Engine, cache Invalidator, logger *slog.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{cfg: cfg, store: s, engine: e, cache: cache, logger: logger, now: now}
}

// Run executes RunOnce immediately and then on every interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info("Scheduler is disabled. Not starting.")
		return
	}
	s.logger.Info("Starting scheduler...", slog.Duration("interval", s.cfg.Interval))

	s.tick(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler shutting down.")
			return
		case <-timer.C:
			s.tick(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.logger.ErrorContext(ctx, "scheduler cycle finished with errors", slog.Any("error", err))
	}
}

// RunOnce performs a single maintenance cycle. Every step runs even when an
// earlier one fails; the failures are joined in the returned error.
func (s *Service) RunOnce(ctx context.Context) error {
	now := s.now()
	var errs []error
	changed := false

	n, err := s.store.DeactivateExpiredGatherings(ctx, now)
	if err != nil {
		errs = append(errs, err)
	} else if n > 0 {
		s.logger.InfoContext(ctx, "deactivated expired gatherings", slog.Int64("count", n))
	}

	ids, err := s.store.ClosedGatheringsWithNoShows(ctx, now)
	if err != nil {
		errs = append(errs, err)
	}
	for _, id := range ids {
		penalized, err := s.engine.PenalizeNoShows(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to penalize no-shows of gathering %d: %w", id, err))
		}
		changed = changed || len(penalized) > 0
	}

	escalated, err := s.escalateLastMonth(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	changed = changed || escalated

	if changed && s.cache != nil {
		s.cache.Flush()
	}
	return errors.Join(errs...)
}

// escalateLastMonth reports whether any warning level changed.
func (s *Service) escalateLastMonth(ctx context.Context) (bool, error) {
	month, year := s.engine.CurrentPeriod()
	prevMonth, prevYear := scoring.PreviousMonth(month, year)
	last := parse.Period{Month: prevMonth, Year: prevYear}
	if s.escalated == last {
		return false, nil
	}

	changes, err := s.engine.RunMonthlyEscalation(ctx, last.Month, last.Year)
	switch {
	case errdef.IsConflict(err):
		s.logger.DebugContext(ctx, "month already escalated", slog.String("period", last.String()))
	case err != nil:
		return false, fmt.Errorf("failed to escalate %s: %w", last, err)
	default:
		s.logger.InfoContext(ctx, "escalated month", slog.String("period", last.String()), slog.Int("changed", len(changes)))
	}
	s.escalated = last
	return len(changes) > 0, nil
}
