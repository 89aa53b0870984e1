package retry

import (
	"fmt"
	"time"
)

// Backoff kinds supported by Policy
const (
	KindExponential = "exponential"
	KindFixed       = "fixed"
)

// Defaults applied by DefaultPolicy
const (
	DefaultMaxAttempts = 5
	DefaultBase        = 30 * time.Second
	DefaultMaxDelay    = 15 * time.Minute
)

// maxShift bounds the exponential doubling to avoid overflow
const maxShift = 62

// Policy decides, from an attempt count alone, whether a job gets another
// run and how long to wait before it. It is a pure value: no clock, no
// randomness, no I/O.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	MaxDelay    time.Duration
	Kind        string
}

// DefaultPolicy returns the policy used by the system when the config
// does not override it.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Base:        DefaultBase,
		MaxDelay:    DefaultMaxDelay,
		Kind:        KindExponential,
	}
}

// Validate checks the policy parameters
func (p Policy) Validate() error {
	if p.MaxAttempts <= 0 {
		return fmt.Errorf("retry policy max_attempts must be greater than 0")
	}

	if p.Base <= 0 {
		return fmt.Errorf("retry policy base must be greater than 0")
	}

	if p.Kind != KindExponential && p.Kind != KindFixed {
		return fmt.Errorf("unknown retry policy kind: %q", p.Kind)
	}

	return nil
}

// NextDelay returns the delay before the next run after the given number of
// completed attempts. attempts is 1-based: the first retry follows attempt 1.
func (p Policy) NextDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	switch p.Kind {
	case KindFixed:
		return p.cap(p.Base)
	default:
		shift := attempts - 1
		if shift > maxShift {
			shift = maxShift
		}

		delay := p.Base << uint(shift)
		if delay < p.Base {
			// shifted past the int64 range
			delay = p.MaxDelay
		}

		return p.cap(delay)
	}
}

// Exhausted reports whether the job has consumed its attempt budget and
// must be dead-lettered instead of rescheduled.
func (p Policy) Exhausted(attempts int) bool {
	return attempts >= p.MaxAttempts
}

func (p Policy) cap(delay time.Duration) time.Duration {
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
