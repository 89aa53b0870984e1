package withdrawal

import "errors"

var (
	// ErrNotFound is returned when a withdrawal cannot be found in the database
	ErrNotFound = errors.New("withdrawal not found")

	// ErrUserWalletNotFound is returned when the requesting user has no
	// wallet, or the named wallet belongs to someone else
	ErrUserWalletNotFound = errors.New("user wallet not found")

	// ErrAlreadyResolved is returned when a state-advancing write finds the
	// withdrawal already terminal; a concurrent actor finished it first and
	// the caller treats this as success
	ErrAlreadyResolved = errors.New("withdrawal already resolved")

	// ErrInvalidState is returned when the state machine is violated, e.g.
	// executing a withdrawal that never had its hold placed
	ErrInvalidState = errors.New("invalid withdrawal state")
)
