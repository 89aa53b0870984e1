package withdrawal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cycleride/payout-be/internal/wallet"
)

const withdrawalColumns = `withdrawal_id, user_id, wallet_id, hold_id, amount, destination, processor_ref, status, attempts, last_error, created_at, updated_at`

// Store handles all database operations on withdrawals. Finalizing writes
// open their own transaction so the withdrawal row and its wallet hold move
// together or not at all.
type Store struct {
	db     *sqlx.DB
	holds  *wallet.Store
	logger *slog.Logger
}

// NewStore creates a new Store instance
func NewStore(db *sqlx.DB, holds *wallet.Store, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		holds:  holds,
		logger: logger,
	}
}

// Create inserts a withdrawal inside the caller's transaction
func (s *Store) Create(ctx context.Context, tx *sqlx.Tx, r *Request) error {
	query := `
		INSERT INTO withdrawals (
			withdrawal_id, user_id, wallet_id, hold_id, amount,
			destination, processor_ref, status, attempts, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, 0, $9, $9
		)
	`

	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err := tx.ExecContext(ctx, query,
		r.ID, r.UserID, r.WalletID, r.HoldID, r.Amount,
		r.Destination, r.ProcessorRef, r.Status, now)
	if err != nil {
		return fmt.Errorf("failed to create withdrawal: %w", err)
	}

	return nil
}

// GetByID retrieves a withdrawal by its ID
func (s *Store) GetByID(ctx context.Context, withdrawalID string) (*Request, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE withdrawal_id = $1`

	var r Request
	err := s.db.GetContext(ctx, &r, query, withdrawalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}

	return &r, nil
}

// BeginExecution transitions the withdrawal to EXECUTING and increments its
// attempts counter. Redelivery of an already-EXECUTING withdrawal is allowed:
// the processor's idempotency key makes the replay safe.
func (s *Store) BeginExecution(ctx context.Context, withdrawalID string) (*Request, error) {
	query := `
		UPDATE withdrawals
		SET status = $1,
		    attempts = attempts + 1,
		    updated_at = $2
		WHERE withdrawal_id = $3
		  AND status IN ($4, $5)
		RETURNING ` + withdrawalColumns

	var r Request
	err := s.db.GetContext(ctx, &r, query,
		StatusExecuting, time.Now().UTC(), withdrawalID, StatusHoldPlaced, StatusExecuting)
	if err == nil {
		return &r, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to begin execution: %w", err)
	}

	// The guard did not match; figure out why.
	current, getErr := s.GetByID(ctx, withdrawalID)
	if getErr != nil {
		return nil, getErr
	}

	if current.IsTerminal() {
		return nil, ErrAlreadyResolved
	}

	return nil, fmt.Errorf("%w: cannot execute from %s", ErrInvalidState, current.Status)
}

// CaptureAndSucceed marks the withdrawal SUCCEEDED and captures its hold in
// one transaction. Finding the withdrawal no longer EXECUTING means a
// concurrent actor resolved it; the caller gets ErrAlreadyResolved.
func (s *Store) CaptureAndSucceed(ctx context.Context, r *Request) error {
	return s.finalize(ctx, r, StatusSucceeded, "", func(tx *sqlx.Tx) error {
		return s.holds.CaptureHold(ctx, tx, r.HoldID)
	})
}

// ReleaseAndFail marks the withdrawal FAILED with cause and releases its hold
// in one transaction, restoring the available balance.
func (s *Store) ReleaseAndFail(ctx context.Context, r *Request, cause string) error {
	return s.finalize(ctx, r, StatusFailed, cause, func(tx *sqlx.Tx) error {
		return s.holds.ReleaseHold(ctx, tx, r.HoldID)
	})
}

func (s *Store) finalize(ctx context.Context, r *Request, status, cause string, holdFn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE withdrawals
		SET status = $1,
		    last_error = NULLIF($2, ''),
		    updated_at = $3
		WHERE withdrawal_id = $4
		  AND status = $5
	`

	result, err := tx.ExecContext(ctx, query, status, cause, time.Now().UTC(), r.ID, StatusExecuting)
	if err != nil {
		return fmt.Errorf("failed to finalize withdrawal: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return ErrAlreadyResolved
	}

	if err := holdFn(tx); err != nil {
		if errors.Is(err, wallet.ErrHoldNotActive) {
			// Someone already moved the hold; whoever did also finalized
			// the withdrawal, so this path loses the race.
			return ErrAlreadyResolved
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit finalization: %w", err)
	}

	s.logger.Info("Withdrawal finalized",
		slog.String("withdrawal_id", r.ID),
		slog.String("status", status),
	)

	return nil
}

// ListStuck returns withdrawals sitting in EXECUTING since before the cutoff,
// oldest first
func (s *Store) ListStuck(ctx context.Context, before time.Time, limit int) ([]*Request, error) {
	query := `
		SELECT ` + withdrawalColumns + `
		FROM withdrawals
		WHERE status = $1
		  AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3
	`

	var rows []*Request
	err := s.db.SelectContext(ctx, &rows, query, StatusExecuting, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck withdrawals: %w", err)
	}

	return rows, nil
}
