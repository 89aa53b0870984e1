package outbox

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("outbox job not found")

	// ErrDuplicateKeyRace is returned when an enqueue loses a true concurrent
	// race on the dedupe key: the conflicting row existed at insert time but
	// was gone by the follow-up read. Callers treat this as success.
	ErrDuplicateKeyRace = errors.New("concurrent enqueue with same dedupe key")

	// ErrJobNotPending is returned when cancelling a job that already left PENDING
	ErrJobNotPending = errors.New("outbox job is not pending")
)
