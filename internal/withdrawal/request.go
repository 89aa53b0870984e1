package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cycleride/payout-be/internal/outbox"
	"github.com/cycleride/payout-be/internal/wallet"
)

// RequestService creates withdrawals. The hold, the withdrawal row and the
// withdrawal-execute outbox job are written in one database transaction, so
// either the whole request exists and will eventually be dispatched, or none
// of it does.
type RequestService struct {
	db          *sqlx.DB
	wallets     *wallet.Store
	withdrawals *Store
	jobs        *outbox.Store
	logger      *slog.Logger
}

// NewRequestService creates a new RequestService instance
func NewRequestService(db *sqlx.DB, wallets *wallet.Store, withdrawals *Store, jobs *outbox.Store, logger *slog.Logger) *RequestService {
	return &RequestService{
		db:          db,
		wallets:     wallets,
		withdrawals: withdrawals,
		jobs:        jobs,
		logger:      logger,
	}
}

// Request places a hold and creates the withdrawal
func (s *RequestService) Request(ctx context.Context, userID, walletID string, amount int64, destination string) (*Request, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("withdrawal amount must be positive, got %d", amount)
	}

	if destination == "" {
		return nil, fmt.Errorf("withdrawal destination is required")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	w, err := s.wallets.GetForUpdate(ctx, tx, walletID)
	if err != nil {
		if errors.Is(err, wallet.ErrWalletNotFound) {
			return nil, ErrUserWalletNotFound
		}
		return nil, err
	}

	if w.UserID != userID {
		return nil, ErrUserWalletNotFound
	}

	withdrawalID := uuid.New().String()

	hold, err := s.wallets.PlaceHold(ctx, tx, w, amount, withdrawalID)
	if err != nil {
		return nil, err
	}

	r := &Request{
		ID:           withdrawalID,
		UserID:       userID,
		WalletID:     walletID,
		HoldID:       hold.ID,
		Amount:       amount,
		Destination:  destination,
		ProcessorRef: ProcessorRefFor(withdrawalID),
		Status:       StatusHoldPlaced,
	}

	if err := s.withdrawals.Create(ctx, tx, r); err != nil {
		return nil, err
	}

	payload, err := ExecutePayload(withdrawalID)
	if err != nil {
		return nil, err
	}

	if _, err := s.jobs.Enqueue(ctx, tx, outbox.NewJob{
		Type:      outbox.JobTypeWithdrawalExecute,
		Payload:   payload,
		DedupeKey: ExecuteDedupeKey(withdrawalID),
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit withdrawal request: %w", err)
	}

	s.logger.Info("Withdrawal requested",
		slog.String("withdrawal_id", r.ID),
		slog.String("wallet_id", walletID),
		slog.Int64("amount", amount),
	)

	return r, nil
}
