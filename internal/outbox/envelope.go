package outbox

import (
	"encoding/json"
	"fmt"
)

// Envelope is the wire projection of a job published to the queue
type Envelope struct {
	JobID     string          `json:"job_id"`
	JobType   string          `json:"job_type"`
	Payload   json.RawMessage `json:"payload"`
	DedupeKey string          `json:"dedupe_key,omitempty"`
}

// MarshalEnvelope serializes a job for publishing
func MarshalEnvelope(job *Job) ([]byte, error) {
	env := Envelope{
		JobID:   job.ID,
		JobType: job.Type,
		Payload: json.RawMessage(job.Payload),
	}
	if job.DedupeKey.Valid {
		env.DedupeKey = job.DedupeKey.String
	}

	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job envelope: %w", err)
	}

	return body, nil
}

// ParseEnvelope deserializes a queue message body
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("invalid job envelope: %w", err)
	}

	if env.JobID == "" || env.JobType == "" {
		return nil, fmt.Errorf("invalid job envelope: missing job_id or job_type")
	}

	return &env, nil
}
