package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cycleride/payout-be/internal/retry"
)

const jobColumns = `job_id, job_type, payload, dedupe_key, run_at, status, attempts, locked_at, locked_by, last_error, created_at, updated_at`

// Store handles all database operations on the outbox table
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// DB returns the underlying handle for callers that open their own transactions
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Enqueue inserts a PENDING job. It runs against ext so a business caller can
// pass its own transaction and make the state change and the job atomic.
// A dedupe key colliding with a live PENDING job is a no-op that returns the
// existing job. ErrDuplicateKeyRace is returned only when the colliding row
// disappeared between the insert and the follow-up read.
func (s *Store) Enqueue(ctx context.Context, ext sqlx.ExtContext, in NewJob) (*Job, error) {
	query := `
		INSERT INTO outbox_jobs (
			job_id, job_type, payload, dedupe_key, run_at,
			status, attempts, created_at, updated_at
		) VALUES (
			$1, $2, $3, NULLIF($4, ''), $5,
			$6, 0, $7, $7
		)
		ON CONFLICT (dedupe_key) WHERE status = 'PENDING' DO NOTHING
		RETURNING ` + jobColumns

	now := time.Now().UTC()
	runAt := in.RunAt
	if runAt.IsZero() {
		runAt = now
	}

	var job Job
	err := sqlx.GetContext(ctx, ext, &job, query,
		newJobID(), in.Type, in.Payload, in.DedupeKey, runAt, JobStatusPending, now)
	if err == nil {
		s.logger.Info("Outbox job enqueued",
			slog.String("job_id", job.ID),
			slog.String("job_type", job.Type),
			slog.Time("run_at", job.RunAt),
		)
		return &job, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to enqueue outbox job: %w", err)
	}

	// Insert hit the partial unique index: a live job already carries this
	// dedupe key. Hand that job back instead.
	existing, err := s.getLiveByDedupeKey(ctx, ext, in.DedupeKey)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Outbox enqueue deduplicated",
		slog.String("job_id", existing.ID),
		slog.String("dedupe_key", in.DedupeKey),
	)

	return existing, nil
}

func (s *Store) getLiveByDedupeKey(ctx context.Context, ext sqlx.ExtContext, dedupeKey string) (*Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM outbox_jobs
		WHERE dedupe_key = $1 AND status = $2
	`

	var job Job
	err := sqlx.GetContext(ctx, ext, &job, query, dedupeKey, JobStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The conflicting row finalized between insert and read.
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKeyRace, dedupeKey)
		}
		return nil, fmt.Errorf("failed to load deduplicated job: %w", err)
	}

	return &job, nil
}

// ClaimBatch locks up to limit due PENDING jobs for workerID and increments
// their attempts counter, all in one statement. FOR UPDATE SKIP LOCKED makes
// concurrent claimers pass over each other's rows instead of blocking, so two
// dispatcher instances never claim the same job. A lease older than lockTTL
// counts as free and may be reclaimed.
func (s *Store) ClaimBatch(ctx context.Context, limit int, workerID string, now time.Time, lockTTL time.Duration) ([]*Job, error) {
	query := `
		UPDATE outbox_jobs
		SET locked_at = $1,
		    locked_by = $2,
		    attempts = attempts + 1,
		    updated_at = $1
		WHERE job_id IN (
			SELECT job_id
			FROM outbox_jobs
			WHERE status = $3
			  AND run_at <= $1
			  AND (locked_at IS NULL OR locked_at < $4)
			ORDER BY run_at ASC
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	staleBefore := now.Add(-lockTTL)

	rows, err := s.db.QueryxContext(ctx, query, now, workerID, JobStatusPending, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox batch: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		var job Job
		if err := rows.StructScan(&job); err != nil {
			return nil, fmt.Errorf("failed to scan claimed job: %w", err)
		}
		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read claimed jobs: %w", err)
	}

	if len(jobs) > 0 {
		s.logger.Debug("Outbox batch claimed",
			slog.Int("count", len(jobs)),
			slog.String("worker_id", workerID),
		)
	}

	return jobs, nil
}

// MarkSent finalizes a published job. The update is conditioned on the lock
// owner: if the lease expired and someone else reclaimed the job, this write
// affects zero rows and is treated as a benign no-op.
func (s *Store) MarkSent(ctx context.Context, jobID, workerID string, now time.Time) error {
	query := `
		UPDATE outbox_jobs
		SET status = $1,
		    locked_at = NULL,
		    locked_by = NULL,
		    updated_at = $2
		WHERE job_id = $3
		  AND locked_by = $4
		  AND status = $5
	`

	result, err := s.db.ExecContext(ctx, query, JobStatusSent, now, jobID, workerID, JobStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark job sent: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		s.logger.Warn("Mark sent skipped - lock no longer owned",
			slog.String("job_id", jobID),
			slog.String("worker_id", workerID),
		)
	}

	return nil
}

// RescheduleOrFail applies the retry policy to a job whose publish failed.
// An exhausted attempt budget dead-letters the job (FAILED, terminal);
// otherwise the job stays PENDING with a new run_at and a cleared lock.
// Like MarkSent, a lost lock makes this a no-op.
func (s *Store) RescheduleOrFail(ctx context.Context, jobID, workerID, cause string, attempts int, policy retry.Policy, now time.Time) error {
	if policy.Exhausted(attempts) {
		query := `
			UPDATE outbox_jobs
			SET status = $1,
			    last_error = $2,
			    locked_at = NULL,
			    locked_by = NULL,
			    updated_at = $3
			WHERE job_id = $4
			  AND locked_by = $5
			  AND status = $6
		`

		result, err := s.db.ExecContext(ctx, query, JobStatusFailed, cause, now, jobID, workerID, JobStatusPending)
		if err != nil {
			return fmt.Errorf("failed to dead-letter job: %w", err)
		}

		if affected, _ := result.RowsAffected(); affected == 0 {
			s.logger.Warn("Dead-letter skipped - lock no longer owned",
				slog.String("job_id", jobID),
				slog.String("worker_id", workerID),
			)
			return nil
		}

		s.logger.Warn("Outbox job dead-lettered",
			slog.String("job_id", jobID),
			slog.Int("attempts", attempts),
			slog.String("last_error", cause),
		)

		return nil
	}

	runAt := now.Add(policy.NextDelay(attempts))

	query := `
		UPDATE outbox_jobs
		SET run_at = $1,
		    last_error = $2,
		    locked_at = NULL,
		    locked_by = NULL,
		    updated_at = $3
		WHERE job_id = $4
		  AND locked_by = $5
		  AND status = $6
	`

	result, err := s.db.ExecContext(ctx, query, runAt, cause, now, jobID, workerID, JobStatusPending)
	if err != nil {
		return fmt.Errorf("failed to reschedule job: %w", err)
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		s.logger.Warn("Reschedule skipped - lock no longer owned",
			slog.String("job_id", jobID),
			slog.String("worker_id", workerID),
		)
		return nil
	}

	s.logger.Info("Outbox job rescheduled",
		slog.String("job_id", jobID),
		slog.Int("attempts", attempts),
		slog.Time("run_at", runAt),
	)

	return nil
}

// GetByID retrieves a job by its ID
func (s *Store) GetByID(ctx context.Context, jobID string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM outbox_jobs WHERE job_id = $1`

	var job Job
	err := s.db.GetContext(ctx, &job, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get outbox job: %w", err)
	}

	return &job, nil
}

// CancelPending transitions a PENDING, unclaimed job to CANCELLED
func (s *Store) CancelPending(ctx context.Context, jobID string) error {
	query := `
		UPDATE outbox_jobs
		SET status = $1,
		    updated_at = $2
		WHERE job_id = $3
		  AND status = $4
		  AND locked_by IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, JobStatusCancelled, time.Now().UTC(), jobID, JobStatusPending)
	if err != nil {
		return fmt.Errorf("failed to cancel outbox job: %w", err)
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrJobNotPending
	}

	return nil
}

// CountByStatus returns row counts per status for the ops stats endpoint
func (s *Store) CountByStatus(ctx context.Context) (map[string]int, error) {
	query := `SELECT status, COUNT(*) AS count FROM outbox_jobs GROUP BY status`

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count outbox jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var row struct {
			Status string `db:"status"`
			Count  int    `db:"count"`
		}
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[row.Status] = row.Count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read status counts: %w", err)
	}

	return counts, nil
}

// DirectEnqueuer enqueues against the store's own pool, for callers that
// are not running inside a transaction.
type DirectEnqueuer struct {
	store *Store
}

// NewDirectEnqueuer creates a new DirectEnqueuer instance
func NewDirectEnqueuer(store *Store) *DirectEnqueuer {
	return &DirectEnqueuer{store: store}
}

// Enqueue inserts the job using the pool as the execution context
func (e *DirectEnqueuer) Enqueue(ctx context.Context, in NewJob) (*Job, error) {
	return e.store.Enqueue(ctx, e.store.DB(), in)
}
