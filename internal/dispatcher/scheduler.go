package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cycleride/payout-be/internal/outbox"
)

// RecurringJob describes a self-perpetuating scheduled job. The job's own
// handler re-enqueues the next occurrence after each run; the scheduler is
// the safety net that re-seeds it if that handful of instructions never ran,
// e.g. after a crash mid-job. The fixed dedupe key makes seeding idempotent.
type RecurringJob struct {
	Type      string
	Payload   string
	DedupeKey string
}

// Scheduler keeps recurring outbox jobs alive without an external cron
type Scheduler struct {
	store    *outbox.Store
	jobs     []RecurringJob
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a new Scheduler instance
func NewScheduler(store *outbox.Store, jobs []RecurringJob, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		jobs:     jobs,
		interval: interval,
		logger:   logger,
	}
}

// Run seeds every recurring job at startup and again on each interval,
// until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	s.seed(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.seed(ctx)
		}
	}
}

func (s *Scheduler) seed(ctx context.Context) {
	for _, job := range s.jobs {
		_, err := s.store.Enqueue(ctx, s.ext(), outbox.NewJob{
			Type:      job.Type,
			Payload:   job.Payload,
			DedupeKey: job.DedupeKey,
		})
		if err != nil && !errors.Is(err, outbox.ErrDuplicateKeyRace) {
			s.logger.Error("Failed to seed recurring job",
				slog.String("job_type", job.Type),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Scheduler) ext() sqlx.ExtContext {
	return s.store.DB()
}
