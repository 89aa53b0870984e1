package withdrawal

import (
	"encoding/json"
	"fmt"
)

// SweepDedupeKey is the fixed dedupe key of the recurring sweep job
const SweepDedupeKey = "withdrawal-sweep"

// ExecuteDedupeKey builds the dedupe key for a withdrawal-execute job so a
// withdrawal never has more than one live execute job in the outbox
func ExecuteDedupeKey(withdrawalID string) string {
	return "withdrawal-execute:" + withdrawalID
}

type executePayload struct {
	WithdrawalID string `json:"withdrawal_id"`
}

// ExecutePayload serializes the withdrawal-execute job payload
func ExecutePayload(withdrawalID string) (string, error) {
	data, err := json.Marshal(executePayload{WithdrawalID: withdrawalID})
	if err != nil {
		return "", fmt.Errorf("failed to marshal execute payload: %w", err)
	}

	return string(data), nil
}

// ParseExecutePayload extracts the withdrawal id from a job payload
func ParseExecutePayload(raw string) (string, error) {
	var p executePayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return "", fmt.Errorf("invalid execute payload: %w", err)
	}

	if p.WithdrawalID == "" {
		return "", fmt.Errorf("invalid execute payload: missing withdrawal_id")
	}

	return p.WithdrawalID, nil
}
