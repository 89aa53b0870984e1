package withdrawal

import (
	"context"
	"errors"
	"log/slog"
)

// ExecutionStore is the persistence surface the executor needs
type ExecutionStore interface {
	GetByID(ctx context.Context, withdrawalID string) (*Request, error)
	BeginExecution(ctx context.Context, withdrawalID string) (*Request, error)
	CaptureAndSucceed(ctx context.Context, r *Request) error
	ReleaseAndFail(ctx context.Context, r *Request, cause string) error
}

// Executor runs one withdrawal against the payment processor. It is consumed
// by the worker, once per delivered withdrawal-execute job; duplicate
// deliveries are harmless because terminal withdrawals short-circuit and the
// processor call carries a deterministic idempotency key.
type Executor struct {
	store     ExecutionStore
	processor Processor
	logger    *slog.Logger
}

// NewExecutor creates a new Executor instance
func NewExecutor(store ExecutionStore, processor Processor, logger *slog.Logger) *Executor {
	return &Executor{
		store:     store,
		processor: processor,
		logger:    logger,
	}
}

// Execute advances the withdrawal state machine by one processor call.
// The returned error is non-nil only for infrastructure defects and
// validation failures; every business result is carried by the Outcome.
func (e *Executor) Execute(ctx context.Context, withdrawalID string) (Outcome, error) {
	r, err := e.store.GetByID(ctx, withdrawalID)
	if err != nil {
		return OutcomeAmbiguous, err
	}

	if r.IsTerminal() {
		e.logger.Debug("Withdrawal already terminal, skipping",
			slog.String("withdrawal_id", r.ID),
			slog.String("status", r.Status),
		)
		return OutcomeAlreadyResolved, nil
	}

	r, err = e.store.BeginExecution(ctx, withdrawalID)
	if err != nil {
		if errors.Is(err, ErrAlreadyResolved) {
			return OutcomeAlreadyResolved, nil
		}
		return OutcomeAmbiguous, err
	}

	e.logger.Info("Executing withdrawal",
		slog.String("withdrawal_id", r.ID),
		slog.String("processor_ref", r.ProcessorRef),
		slog.Int64("amount", r.Amount),
		slog.Int("attempts", r.Attempts),
	)

	result, err := e.processor.Transfer(ctx, r.ProcessorRef, r.Amount, r.Destination)
	if err != nil {
		// The call may or may not have reached the processor. Do not guess:
		// the withdrawal stays EXECUTING with its hold ACTIVE and the sweep
		// resolves the true outcome later.
		e.logger.Warn("Processor call gave no definitive answer",
			slog.String("withdrawal_id", r.ID),
			slog.String("error", err.Error()),
		)
		return OutcomeAmbiguous, nil
	}

	return applyTransferResult(ctx, e.store, e.logger, r, result)
}

// applyTransferResult maps a definitive processor result onto the withdrawal
// and its hold. Shared with the sweep, which obtains results via Lookup
// instead of Transfer.
func applyTransferResult(ctx context.Context, store ExecutionStore, logger *slog.Logger, r *Request, result TransferResult) (Outcome, error) {
	switch result.Status {
	case TransferSucceeded:
		if err := store.CaptureAndSucceed(ctx, r); err != nil {
			if errors.Is(err, ErrAlreadyResolved) {
				return OutcomeAlreadyResolved, nil
			}
			return OutcomeAmbiguous, err
		}

		logger.Info("Withdrawal succeeded",
			slog.String("withdrawal_id", r.ID),
		)
		return OutcomeSucceeded, nil

	case TransferRejected:
		if err := store.ReleaseAndFail(ctx, r, result.Reason); err != nil {
			if errors.Is(err, ErrAlreadyResolved) {
				return OutcomeAlreadyResolved, nil
			}
			return OutcomeAmbiguous, err
		}

		logger.Warn("Withdrawal rejected by processor",
			slog.String("withdrawal_id", r.ID),
			slog.String("reason", result.Reason),
		)
		return OutcomeFailed, nil

	default:
		return OutcomeAmbiguous, nil
	}
}
