// Package processor implements the payment processor port over its HTTP API.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cycleride/payout-be/internal/withdrawal"
)

// Config holds processor client configuration
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the payment processor. Transfers carry the caller's
// idempotency key in a header, so the processor deduplicates replays itself.
type Client struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a new processor Client
func NewClient(cfg *Config, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid processor base URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

type transferRequest struct {
	Amount      int64  `json:"amount"`
	Destination string `json:"destination"`
}

type transferResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// Transfer executes (or replays) a transfer under the idempotency key.
// Transport failures, timeouts and 5xx responses come back as
// ErrProcessorUnavailable: the outcome is unknown and must not be guessed.
func (c *Client) Transfer(ctx context.Context, idempotencyKey string, amount int64, destination string) (withdrawal.TransferResult, error) {
	body, err := json.Marshal(transferRequest{Amount: amount, Destination: destination})
	if err != nil {
		return withdrawal.TransferResult{}, fmt.Errorf("failed to marshal transfer request: %w", err)
	}

	endpoint := c.baseURL.JoinPath("v1", "transfers")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return withdrawal.TransferResult{}, fmt.Errorf("failed to build transfer request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return withdrawal.TransferResult{}, fmt.Errorf("%w: %v", withdrawal.ErrProcessorUnavailable, err)
	}
	defer resp.Body.Close()

	return c.decode(resp, idempotencyKey)
}

// Lookup resolves the outcome of a previous transfer without side effects.
// A 404 means the processor never saw the key.
func (c *Client) Lookup(ctx context.Context, idempotencyKey string) (withdrawal.TransferResult, error) {
	endpoint := c.baseURL.JoinPath("v1", "transfers", idempotencyKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return withdrawal.TransferResult{}, fmt.Errorf("failed to build lookup request: %w", err)
	}

	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return withdrawal.TransferResult{}, fmt.Errorf("%w: %v", withdrawal.ErrProcessorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return withdrawal.TransferResult{Status: withdrawal.TransferNoRecord}, nil
	}

	return c.decode(resp, idempotencyKey)
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) decode(resp *http.Response, idempotencyKey string) (withdrawal.TransferResult, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return withdrawal.TransferResult{}, fmt.Errorf("%w: reading response: %v", withdrawal.ErrProcessorUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		c.logger.Warn("Processor returned server error",
			slog.Int("status_code", resp.StatusCode),
			slog.String("idempotency_key", idempotencyKey),
		)
		return withdrawal.TransferResult{}, fmt.Errorf("%w: status %d", withdrawal.ErrProcessorUnavailable, resp.StatusCode)
	}

	var body transferResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return withdrawal.TransferResult{}, fmt.Errorf("%w: malformed response: %v", withdrawal.ErrProcessorUnavailable, err)
	}

	switch body.Status {
	case withdrawal.TransferSucceeded, withdrawal.TransferRejected:
		return withdrawal.TransferResult{Status: body.Status, Reason: body.Reason}, nil
	default:
		// 4xx with a reason is a declared rejection even without the
		// canonical status string
		if resp.StatusCode >= http.StatusBadRequest {
			reason := body.Reason
			if reason == "" {
				reason = fmt.Sprintf("processor returned status %d", resp.StatusCode)
			}
			return withdrawal.TransferResult{Status: withdrawal.TransferRejected, Reason: reason}, nil
		}

		return withdrawal.TransferResult{Status: withdrawal.TransferUnknown}, nil
	}
}
