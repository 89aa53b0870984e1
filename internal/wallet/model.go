package wallet

import "time"

// Hold status constants. A hold is captured or released exactly once.
const (
	HoldStatusActive   = "ACTIVE"
	HoldStatusCaptured = "CAPTURED"
	HoldStatusReleased = "RELEASED"
)

// Wallet is a user's funds account. Balance is in minor currency units.
type Wallet struct {
	ID        string    `db:"wallet_id"`
	UserID    string    `db:"user_id"`
	Balance   int64     `db:"balance"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Hold reserves funds against a wallet while a withdrawal is in flight.
// While ACTIVE it reduces the available balance without touching Balance;
// capture debits the wallet, release restores availability.
type Hold struct {
	ID        string    `db:"hold_id"`
	WalletID  string    `db:"wallet_id"`
	Amount    int64     `db:"amount"`
	Status    string    `db:"status"`
	Reason    string    `db:"reason"` // withdrawal id the hold backs
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
