package processor

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cycleride/payout-be/internal/withdrawal"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(&Config{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	return client
}

func TestClient_Transfer(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantStatus string
		wantReason string
		wantErr    error
	}{
		{
			name:       "succeeded",
			statusCode: http.StatusOK,
			body:       `{"status":"succeeded"}`,
			wantStatus: withdrawal.TransferSucceeded,
		},
		{
			name:       "rejected with reason",
			statusCode: http.StatusUnprocessableEntity,
			body:       `{"status":"rejected","reason":"invalid destination"}`,
			wantStatus: withdrawal.TransferRejected,
			wantReason: "invalid destination",
		},
		{
			name:       "bad request without canonical status",
			statusCode: http.StatusBadRequest,
			body:       `{"reason":"amount too small"}`,
			wantStatus: withdrawal.TransferRejected,
			wantReason: "amount too small",
		},
		{
			name:       "server error is unavailable",
			statusCode: http.StatusBadGateway,
			body:       `{}`,
			wantErr:    withdrawal.ErrProcessorUnavailable,
		},
		{
			name:       "ok without status is unknown",
			statusCode: http.StatusOK,
			body:       `{}`,
			wantStatus: withdrawal.TransferUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotKey string
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				gotKey = r.Header.Get("Idempotency-Key")
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/v1/transfers", r.URL.Path)
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			})

			result, err := client.Transfer(context.Background(), "withdrawal:w-1", 100000, "bank:acct")

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "withdrawal:w-1", gotKey)
			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, tt.wantReason, result.Reason)
		})
	}
}

func TestClient_Transfer_ConnectionRefused(t *testing.T) {
	// point at a closed server to force a transport error
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	client, err := NewClient(&Config{BaseURL: server.URL, Timeout: time.Second},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	server.Close()

	_, err = client.Transfer(context.Background(), "withdrawal:w-x", 1, "bank:acct")
	assert.ErrorIs(t, err, withdrawal.ErrProcessorUnavailable)
}

func TestClient_Lookup(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		wantStatus string
	}{
		{
			name:       "resolved succeeded",
			statusCode: http.StatusOK,
			body:       `{"status":"succeeded"}`,
			wantStatus: withdrawal.TransferSucceeded,
		},
		{
			name:       "resolved rejected",
			statusCode: http.StatusOK,
			body:       `{"status":"rejected","reason":"account closed"}`,
			wantStatus: withdrawal.TransferRejected,
		},
		{
			name:       "no record",
			statusCode: http.StatusNotFound,
			body:       ``,
			wantStatus: withdrawal.TransferNoRecord,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/v1/transfers/withdrawal:w-2", r.URL.Path)

				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.body))
			})

			result, err := client.Lookup(context.Background(), "withdrawal:w-2")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, result.Status)
		})
	}
}
