package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cycleride/payout-be/internal/outbox"
)

// sweepBatchLimit bounds how many stuck withdrawals one pass touches
const sweepBatchLimit = 100

// SweepStore extends the execution surface with the stuck-row query
type SweepStore interface {
	ExecutionStore
	ListStuck(ctx context.Context, before time.Time, limit int) ([]*Request, error)
}

// Enqueuer schedules follow-up outbox jobs from inside a sweep pass
type Enqueuer interface {
	Enqueue(ctx context.Context, job outbox.NewJob) (*outbox.Job, error)
}

// SweepConfig holds the reconciliation parameters
type SweepConfig struct {
	StuckAfter   time.Duration // how long EXECUTING must last to count as stuck
	Interval     time.Duration // delay before the next self-scheduled sweep
	RetryCeiling int           // max attempts before flagging for manual review
}

// SweepSummary reports what one pass did, for logging
type SweepSummary struct {
	Scanned  int
	Captured int
	Released int
	Requeued int
	Flagged  int
	Deferred int // still ambiguous, left for the next pass
}

// Sweeper reconciles withdrawals abandoned in EXECUTING, usually because a
// processor call timed out mid-flight. It asks the processor for the
// authoritative outcome of the original attempt and applies the same
// capture/release transitions the executor would have.
type Sweeper struct {
	store     SweepStore
	processor Processor
	jobs      Enqueuer
	cfg       SweepConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewSweeper creates a new Sweeper instance
func NewSweeper(store SweepStore, processor Processor, jobs Enqueuer, cfg SweepConfig, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		store:     store,
		processor: processor,
		jobs:      jobs,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Sweep runs one reconciliation pass and re-enqueues the next one.
// Per-withdrawal failures are isolated: a row that cannot be resolved now is
// left for the following pass.
func (s *Sweeper) Sweep(ctx context.Context) (SweepSummary, error) {
	now := s.now()
	cutoff := now.Add(-s.cfg.StuckAfter)

	stuck, err := s.store.ListStuck(ctx, cutoff, sweepBatchLimit)
	if err != nil {
		return SweepSummary{}, err
	}

	summary := SweepSummary{Scanned: len(stuck)}

	for _, r := range stuck {
		if err := s.resolve(ctx, r, &summary); err != nil {
			s.logger.Warn("Sweep could not resolve withdrawal, deferring",
				slog.String("withdrawal_id", r.ID),
				slog.String("error", err.Error()),
			)
			summary.Deferred++
		}
	}

	if err := s.scheduleNext(ctx, now); err != nil {
		return summary, err
	}

	s.logger.Info("Sweep pass finished",
		slog.Int("scanned", summary.Scanned),
		slog.Int("captured", summary.Captured),
		slog.Int("released", summary.Released),
		slog.Int("requeued", summary.Requeued),
		slog.Int("flagged", summary.Flagged),
		slog.Int("deferred", summary.Deferred),
	)

	return summary, nil
}

func (s *Sweeper) resolve(ctx context.Context, r *Request, summary *SweepSummary) error {
	result, err := s.processor.Lookup(ctx, r.ProcessorRef)
	if err != nil {
		return fmt.Errorf("processor lookup failed: %w", err)
	}

	switch result.Status {
	case TransferSucceeded, TransferRejected:
		outcome, err := applyTransferResult(ctx, s.store, s.logger, r, result)
		if err != nil {
			return err
		}

		switch outcome {
		case OutcomeSucceeded:
			summary.Captured++
		case OutcomeFailed:
			summary.Released++
		}

		return nil

	case TransferNoRecord:
		// The original call never reached the processor. Retry through the
		// outbox while the budget lasts; beyond it, give the money back and
		// leave a trace for operators.
		if r.Attempts < s.cfg.RetryCeiling {
			return s.requeueExecute(ctx, r, summary)
		}

		cause := fmt.Sprintf("manual review: no processor record after %d attempts", r.Attempts)
		if err := s.store.ReleaseAndFail(ctx, r, cause); err != nil {
			if errors.Is(err, ErrAlreadyResolved) {
				return nil
			}
			return err
		}

		s.logger.Warn("Withdrawal flagged for manual review",
			slog.String("withdrawal_id", r.ID),
			slog.Int("attempts", r.Attempts),
		)
		summary.Flagged++

		return nil

	default:
		// Still ambiguous on the processor side; next pass tries again.
		summary.Deferred++
		return nil
	}
}

func (s *Sweeper) requeueExecute(ctx context.Context, r *Request, summary *SweepSummary) error {
	payload, err := ExecutePayload(r.ID)
	if err != nil {
		return err
	}

	_, err = s.jobs.Enqueue(ctx, outbox.NewJob{
		Type:      outbox.JobTypeWithdrawalExecute,
		Payload:   payload,
		DedupeKey: ExecuteDedupeKey(r.ID),
	})
	if err != nil {
		if errors.Is(err, outbox.ErrDuplicateKeyRace) {
			// Another sweeper got there first; the retry is scheduled.
			return nil
		}
		return err
	}

	s.logger.Info("Stuck withdrawal requeued for execution",
		slog.String("withdrawal_id", r.ID),
		slog.Int("attempts", r.Attempts),
	)
	summary.Requeued++

	return nil
}

// scheduleNext re-enqueues the sweep's own recurring job. The fixed dedupe
// key means at most one live sweep job exists no matter how many sweepers
// finish concurrently.
func (s *Sweeper) scheduleNext(ctx context.Context, now time.Time) error {
	_, err := s.jobs.Enqueue(ctx, outbox.NewJob{
		Type:      outbox.JobTypeWithdrawalSweep,
		Payload:   "{}",
		RunAt:     now.Add(s.cfg.Interval),
		DedupeKey: SweepDedupeKey,
	})
	if err != nil && !errors.Is(err, outbox.ErrDuplicateKeyRace) {
		return fmt.Errorf("failed to schedule next sweep: %w", err)
	}

	return nil
}
