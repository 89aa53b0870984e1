package withdrawal

import (
	"database/sql"
	"time"
)

// Withdrawal status constants. SUCCEEDED and FAILED are terminal.
const (
	StatusRequested  = "REQUESTED"
	StatusHoldPlaced = "HOLD_PLACED"
	StatusExecuting  = "EXECUTING"
	StatusSucceeded  = "SUCCEEDED"
	StatusFailed     = "FAILED"
)

// processorRefPrefix makes the idempotency key derivable from the id alone
const processorRefPrefix = "withdrawal:"

// Request is a user's withdrawal of funds to an external account
type Request struct {
	ID           string         `db:"withdrawal_id"`
	UserID       string         `db:"user_id"`
	WalletID     string         `db:"wallet_id"`
	HoldID       string         `db:"hold_id"`
	Amount       int64          `db:"amount"`
	Destination  string         `db:"destination"`
	ProcessorRef string         `db:"processor_ref"`
	Status       string         `db:"status"`
	Attempts     int            `db:"attempts"`
	LastError    sql.NullString `db:"last_error"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

// ProcessorRefFor derives the idempotency key sent to the payment processor.
// It is a pure function of the withdrawal id so every retry of the same
// withdrawal replays the same transfer instead of creating a new one.
func ProcessorRefFor(withdrawalID string) string {
	return processorRefPrefix + withdrawalID
}

// IsTerminal reports whether the withdrawal reached a final state
func (r *Request) IsTerminal() bool {
	return r.Status == StatusSucceeded || r.Status == StatusFailed
}
