package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/cycleride/payout-be/internal/outbox"
	"github.com/cycleride/payout-be/internal/retry"
)

// Store is the slice of the outbox the dispatcher drives
type Store interface {
	ClaimBatch(ctx context.Context, limit int, workerID string, now time.Time, lockTTL time.Duration) ([]*outbox.Job, error)
	MarkSent(ctx context.Context, jobID, workerID string, now time.Time) error
	RescheduleOrFail(ctx context.Context, jobID, workerID, cause string, attempts int, policy retry.Policy, now time.Time) error
}

// Publisher forwards a claimed job to the external job queue
type Publisher interface {
	Publish(ctx context.Context, job *outbox.Job) error
}

// Config holds dispatcher configuration
type Config struct {
	Logger    *slog.Logger
	Store     Store
	Publisher Publisher
	Policy    retry.Policy
	Interval  time.Duration
	BatchSize int
	LockTTL   time.Duration
}

// Dispatcher drains due outbox jobs into the job queue. Any number of
// instances may run concurrently: the store's skip-locked claim keeps them
// off each other's jobs, and lock-owner-conditioned finalization keeps a
// late instance from overwriting whoever reclaimed its lease.
type Dispatcher struct {
	logger    *slog.Logger
	store     Store
	publisher Publisher
	policy    retry.Policy
	interval  time.Duration
	batchSize int
	lockTTL   time.Duration
	workerID  string
	now       func() time.Time
}

// New creates a new Dispatcher instance
func New(cfg *Config) *Dispatcher {
	return &Dispatcher{
		logger:    cfg.Logger,
		store:     cfg.Store,
		publisher: cfg.Publisher,
		policy:    cfg.Policy,
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
		lockTTL:   cfg.LockTTL,
		workerID:  newWorkerID(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run polls the outbox until ctx is cancelled. Job-level failures never
// stop the loop; only a cancelled context does.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("Dispatcher started",
		slog.String("worker_id", d.workerID),
		slog.Duration("interval", d.interval),
		slog.Int("batch_size", d.batchSize),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Dispatcher stopped",
				slog.String("worker_id", d.workerID),
			)
			return ctx.Err()

		case <-ticker.C:
			if err := d.Tick(ctx); err != nil {
				d.logger.Error("Dispatcher tick failed",
					slog.String("worker_id", d.workerID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Tick claims one batch of due jobs and forwards each to the queue,
// finalizing per publish outcome
func (d *Dispatcher) Tick(ctx context.Context) error {
	now := d.now()

	jobs, err := d.store.ClaimBatch(ctx, d.batchSize, d.workerID, now, d.lockTTL)
	if err != nil {
		return fmt.Errorf("claim batch: %w", err)
	}

	for _, job := range jobs {
		d.dispatch(ctx, job)
	}

	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, job *outbox.Job) {
	err := d.publisher.Publish(ctx, job)
	if err == nil {
		if err := d.store.MarkSent(ctx, job.ID, d.workerID, d.now()); err != nil {
			d.logger.Error("Failed to mark job sent",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	d.logger.Warn("Publish failed, applying retry policy",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.Type),
		slog.Int("attempts", job.Attempts),
		slog.String("error", err.Error()),
	)

	if err := d.store.RescheduleOrFail(ctx, job.ID, d.workerID, err.Error(), job.Attempts, d.policy, d.now()); err != nil {
		d.logger.Error("Failed to reschedule job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

// newWorkerID builds a claim-lease owner id unique to this process
func newWorkerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "dispatcher"
	}

	return fmt.Sprintf("%s-%s", hostname, uuid.New().String()[:8])
}
