package outbox

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Job status constants. SENT, FAILED and CANCELLED are terminal.
const (
	JobStatusPending   = "PENDING"
	JobStatusSent      = "SENT"
	JobStatusFailed    = "FAILED"
	JobStatusCancelled = "CANCELLED"
)

// Job type tags carried by outbox rows
const (
	JobTypeWithdrawalExecute = "withdrawal-execute"
	JobTypeWithdrawalSweep   = "withdrawal-sweep"
)

// Job is one durable side-effect record in the outbox table
type Job struct {
	ID        string         `db:"job_id"`
	Type      string         `db:"job_type"`
	Payload   string         `db:"payload"` // JSON string
	DedupeKey sql.NullString `db:"dedupe_key"`
	RunAt     time.Time      `db:"run_at"`
	Status    string         `db:"status"`
	Attempts  int            `db:"attempts"`
	LockedAt  sql.NullTime   `db:"locked_at"`
	LockedBy  sql.NullString `db:"locked_by"`
	LastError sql.NullString `db:"last_error"`
	CreatedAt time.Time      `db:"created_at"`
	UpdatedAt time.Time      `db:"updated_at"`
}

// NewJob holds the caller-supplied fields for an enqueue
type NewJob struct {
	Type      string
	Payload   string
	RunAt     time.Time
	DedupeKey string // optional; empty means no dedupe constraint
}

func newJobID() string {
	return uuid.New().String()
}

// IsTerminal reports whether the job can no longer transition
func (j *Job) IsTerminal() bool {
	switch j.Status {
	case JobStatusSent, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}
