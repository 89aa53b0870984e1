package withdrawal

// Outcome is the tagged result of one execution pass over a withdrawal.
// Callers switch on it exhaustively to decide ack/nack.
type Outcome int

const (
	// OutcomeAlreadyResolved means the withdrawal was terminal before this
	// pass did anything; duplicate deliveries land here
	OutcomeAlreadyResolved Outcome = iota

	// OutcomeSucceeded means the transfer went through, the hold was
	// captured and the withdrawal is SUCCEEDED
	OutcomeSucceeded

	// OutcomeFailed means the processor rejected the transfer, the hold was
	// released and the withdrawal is FAILED
	OutcomeFailed

	// OutcomeAmbiguous means the processor gave no definitive answer; the
	// withdrawal stays EXECUTING with its hold ACTIVE for the sweep to
	// reconcile
	OutcomeAmbiguous
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAlreadyResolved:
		return "already_resolved"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeAmbiguous:
		return "ambiguous"
	default:
		return "unknown"
	}
}
