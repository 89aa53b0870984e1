package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const holdColumns = `hold_id, wallet_id, amount, status, reason, created_at, updated_at`

// Store handles all database operations on wallets and holds. Every mutation
// takes the caller's transaction: hold placement, capture, and release must
// commit atomically with the withdrawal row they belong to.
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

// GetForUpdate loads a wallet with a row lock inside tx, serializing
// concurrent hold placement on the same wallet
func (s *Store) GetForUpdate(ctx context.Context, tx *sqlx.Tx, walletID string) (*Wallet, error) {
	query := `
		SELECT wallet_id, user_id, balance, created_at, updated_at
		FROM wallets
		WHERE wallet_id = $1
		FOR UPDATE
	`

	var w Wallet
	err := tx.GetContext(ctx, &w, query, walletID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	return &w, nil
}

// GetByUserID loads a user's wallet without locking
func (s *Store) GetByUserID(ctx context.Context, userID string) (*Wallet, error) {
	query := `
		SELECT wallet_id, user_id, balance, created_at, updated_at
		FROM wallets
		WHERE user_id = $1
	`

	var w Wallet
	err := s.db.GetContext(ctx, &w, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet by user: %w", err)
	}

	return &w, nil
}

// PlaceHold reserves amount against the wallet inside tx. The caller must
// hold the wallet row lock (GetForUpdate) so the availability check and the
// insert are serialized per wallet.
func (s *Store) PlaceHold(ctx context.Context, tx *sqlx.Tx, w *Wallet, amount int64, reason string) (*Hold, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("hold amount must be positive, got %d", amount)
	}

	held, err := s.activeHoldSum(ctx, tx, w.ID)
	if err != nil {
		return nil, err
	}

	if amount > w.Balance-held {
		return nil, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientBalance, amount, w.Balance-held)
	}

	query := `
		INSERT INTO wallet_holds (
			hold_id, wallet_id, amount, status, reason, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING ` + holdColumns

	now := time.Now().UTC()

	var hold Hold
	err = tx.GetContext(ctx, &hold, query, uuid.New().String(), w.ID, amount, HoldStatusActive, reason, now)
	if err != nil {
		return nil, fmt.Errorf("failed to place hold: %w", err)
	}

	s.logger.Info("Wallet hold placed",
		slog.String("hold_id", hold.ID),
		slog.String("wallet_id", w.ID),
		slog.Int64("amount", amount),
		slog.String("reason", reason),
	)

	return &hold, nil
}

// CaptureHold converts an ACTIVE hold into a permanent debit: the hold goes
// CAPTURED and the wallet balance drops by the held amount, in the caller's
// transaction. A hold that already left ACTIVE yields ErrHoldNotActive.
func (s *Store) CaptureHold(ctx context.Context, tx *sqlx.Tx, holdID string) error {
	query := `
		UPDATE wallet_holds
		SET status = $1,
		    updated_at = $2
		WHERE hold_id = $3
		  AND status = $4
		RETURNING wallet_id, amount
	`

	var row struct {
		WalletID string `db:"wallet_id"`
		Amount   int64  `db:"amount"`
	}

	err := tx.GetContext(ctx, &row, query, HoldStatusCaptured, time.Now().UTC(), holdID, HoldStatusActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrHoldNotActive
		}
		return fmt.Errorf("failed to capture hold: %w", err)
	}

	debit := `
		UPDATE wallets
		SET balance = balance - $1,
		    updated_at = $2
		WHERE wallet_id = $3
	`

	if _, err := tx.ExecContext(ctx, debit, row.Amount, time.Now().UTC(), row.WalletID); err != nil {
		return fmt.Errorf("failed to debit wallet: %w", err)
	}

	s.logger.Info("Wallet hold captured",
		slog.String("hold_id", holdID),
		slog.String("wallet_id", row.WalletID),
		slog.Int64("amount", row.Amount),
	)

	return nil
}

// ReleaseHold returns an ACTIVE hold to the available balance. The wallet
// balance is untouched; availability recovers because the hold stops counting.
func (s *Store) ReleaseHold(ctx context.Context, tx *sqlx.Tx, holdID string) error {
	query := `
		UPDATE wallet_holds
		SET status = $1,
		    updated_at = $2
		WHERE hold_id = $3
		  AND status = $4
	`

	result, err := tx.ExecContext(ctx, query, HoldStatusReleased, time.Now().UTC(), holdID, HoldStatusActive)
	if err != nil {
		return fmt.Errorf("failed to release hold: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return ErrHoldNotActive
	}

	s.logger.Info("Wallet hold released",
		slog.String("hold_id", holdID),
	)

	return nil
}

// GetHold retrieves a hold by its ID
func (s *Store) GetHold(ctx context.Context, holdID string) (*Hold, error) {
	query := `SELECT ` + holdColumns + ` FROM wallet_holds WHERE hold_id = $1`

	var hold Hold
	err := s.db.GetContext(ctx, &hold, query, holdID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrHoldNotFound
		}
		return nil, fmt.Errorf("failed to get hold: %w", err)
	}

	return &hold, nil
}

// AvailableBalance returns balance minus the sum of ACTIVE holds
func (s *Store) AvailableBalance(ctx context.Context, walletID string) (int64, error) {
	query := `
		SELECT w.balance - COALESCE(SUM(h.amount), 0)
		FROM wallets w
		LEFT JOIN wallet_holds h ON h.wallet_id = w.wallet_id AND h.status = $1
		WHERE w.wallet_id = $2
		GROUP BY w.balance
	`

	var available int64
	err := s.db.GetContext(ctx, &available, query, HoldStatusActive, walletID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrWalletNotFound
		}
		return 0, fmt.Errorf("failed to compute available balance: %w", err)
	}

	return available, nil
}

func (s *Store) activeHoldSum(ctx context.Context, tx *sqlx.Tx, walletID string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM wallet_holds
		WHERE wallet_id = $1
		  AND status = $2
	`

	var held int64
	if err := tx.GetContext(ctx, &held, query, walletID, HoldStatusActive); err != nil {
		return 0, fmt.Errorf("failed to sum active holds: %w", err)
	}

	return held, nil
}
