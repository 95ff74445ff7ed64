// Package retention removes expired workflow state. Redis storage expires
// records through key TTLs; other stores rely on this sweeper for the same
// retention window.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fableworks/fableflow/pkg/persistence"
)

// DefaultRetention matches the Redis state TTL: a record survives this long
// after its last save.
const DefaultRetention = 7 * 24 * time.Hour

// DefaultSchedule runs the sweep once an hour.
const DefaultSchedule = "@hourly"

// Sweeper periodically deletes workflow state whose retention window has
// passed since the last update, regardless of status.
type Sweeper struct {
	store     persistence.StateStore
	logger    *slog.Logger
	retention time.Duration
	cron      *cron.Cron

	// now is replaceable in tests.
	now func() time.Time
}

func NewSweeper(store persistence.StateStore, logger *slog.Logger, retention time.Duration) *Sweeper {
	if retention <= 0 {
		retention = DefaultRetention
	}

	return &Sweeper{
		store:     store,
		logger:    logger.With("module", "retention"),
		retention: retention,
		cron:      cron.New(),
		now:       time.Now,
	}
}

// Start schedules the sweep on the given cron expression and runs the cron
// loop in the background.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	if schedule == "" {
		schedule = DefaultSchedule
	}

	_, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Retention sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Retention sweeper started",
		"schedule", schedule, "retention", s.retention)

	return nil
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep deletes every run whose last update is older than the retention
// window and reports how many records it removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	workflowIDs, err := s.store.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-s.retention)
	removed := 0

	for _, workflowID := range workflowIDs {
		state, err := s.store.Get(ctx, workflowID)
		if err != nil {
			if persistence.IsWorkflowNotFound(err) {
				continue
			}

			return removed, err
		}

		if state.UpdatedAt.After(cutoff) {
			continue
		}

		if err := s.store.Delete(ctx, workflowID); err != nil {
			return removed, err
		}

		removed++

		s.logger.InfoContext(ctx, "Removed expired workflow state",
			"workflow_id", workflowID, "status", state.Status, "updated_at", state.UpdatedAt)
	}

	return removed, nil
}
