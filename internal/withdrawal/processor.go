package withdrawal

import (
	"context"
	"errors"
)

// Transfer result statuses as reported by the payment processor
const (
	TransferSucceeded = "succeeded"
	TransferRejected  = "rejected"
	TransferUnknown   = "unknown"   // processor gave no definitive answer
	TransferNoRecord  = "no_record" // lookup found no transfer for the key
)

// ErrProcessorUnavailable marks transient processor failures: the request
// never produced a definitive outcome and may be retried or swept later.
var ErrProcessorUnavailable = errors.New("payment processor unavailable")

// TransferResult is the processor's answer for one idempotency key
type TransferResult struct {
	Status string
	Reason string // processor's explanation for a rejection
}

// Processor is the external payment processor capability the withdrawal flow
// needs. Transfer is idempotent per key: replaying a key returns the result
// of the original transfer rather than moving money twice. Lookup resolves
// the authoritative outcome of a previous Transfer without side effects.
type Processor interface {
	Transfer(ctx context.Context, idempotencyKey string, amount int64, destination string) (TransferResult, error)
	Lookup(ctx context.Context, idempotencyKey string) (TransferResult, error)
}
