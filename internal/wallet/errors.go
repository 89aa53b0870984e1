package wallet

import "errors"

var (
	// ErrWalletNotFound is returned when a wallet cannot be found in the database
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrInsufficientBalance is returned when the available balance
	// (balance minus active holds) cannot cover the requested amount
	ErrInsufficientBalance = errors.New("insufficient available balance")

	// ErrHoldNotFound is returned when a hold cannot be found in the database
	ErrHoldNotFound = errors.New("wallet hold not found")

	// ErrHoldNotActive is returned when capturing or releasing a hold that
	// was already finalized; the concurrent actor's result stands
	ErrHoldNotActive = errors.New("wallet hold is not active")
)
