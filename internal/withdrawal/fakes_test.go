package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cycleride/payout-be/internal/outbox"
	"github.com/cycleride/payout-be/internal/wallet"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore is an in-memory SweepStore tracking withdrawals and hold statuses
type fakeStore struct {
	mu    sync.Mutex
	rows  map[string]*Request
	holds map[string]string // hold id -> wallet.HoldStatus*
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows:  make(map[string]*Request),
		holds: make(map[string]string),
	}
}

func (f *fakeStore) add(r *Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *r
	f.rows[r.ID] = &cp
	f.holds[r.HoldID] = wallet.HoldStatusActive
}

func (f *fakeStore) get(id string) Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	return *f.rows[id]
}

func (f *fakeStore) holdStatus(holdID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.holds[holdID]
}

func (f *fakeStore) GetByID(_ context.Context, id string) (*Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.rows[id]
	if !ok {
		return nil, ErrNotFound
	}

	cp := *r
	return &cp, nil
}

func (f *fakeStore) BeginExecution(_ context.Context, id string) (*Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.rows[id]
	if !ok {
		return nil, ErrNotFound
	}

	switch r.Status {
	case StatusHoldPlaced, StatusExecuting:
		r.Status = StatusExecuting
		r.Attempts++
		cp := *r
		return &cp, nil
	case StatusSucceeded, StatusFailed:
		return nil, ErrAlreadyResolved
	default:
		return nil, fmt.Errorf("%w: cannot execute from %s", ErrInvalidState, r.Status)
	}
}

func (f *fakeStore) CaptureAndSucceed(_ context.Context, r *Request) error {
	return f.finalize(r, StatusSucceeded, "", wallet.HoldStatusCaptured)
}

func (f *fakeStore) ReleaseAndFail(_ context.Context, r *Request, cause string) error {
	return f.finalize(r, StatusFailed, cause, wallet.HoldStatusReleased)
}

func (f *fakeStore) finalize(r *Request, status, cause, holdStatus string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	row, ok := f.rows[r.ID]
	if !ok {
		return ErrNotFound
	}

	if row.Status != StatusExecuting {
		return ErrAlreadyResolved
	}

	if f.holds[row.HoldID] != wallet.HoldStatusActive {
		return ErrAlreadyResolved
	}

	row.Status = status
	if cause != "" {
		row.LastError.String = cause
		row.LastError.Valid = true
	}
	f.holds[row.HoldID] = holdStatus

	return nil
}

func (f *fakeStore) ListStuck(_ context.Context, before time.Time, limit int) ([]*Request, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*Request
	for _, r := range f.rows {
		if r.Status == StatusExecuting && r.UpdatedAt.Before(before) && len(out) < limit {
			cp := *r
			out = append(out, &cp)
		}
	}

	return out, nil
}

// fakeProcessor returns scripted results per idempotency key and counts calls
type fakeProcessor struct {
	mu            sync.Mutex
	transfers     map[string]TransferResult
	transferErr   error
	lookups       map[string]TransferResult
	lookupErr     error
	transferCalls int
	lookupCalls   int
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		transfers: make(map[string]TransferResult),
		lookups:   make(map[string]TransferResult),
	}
}

func (p *fakeProcessor) Transfer(_ context.Context, key string, _ int64, _ string) (TransferResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.transferCalls++
	if p.transferErr != nil {
		return TransferResult{}, p.transferErr
	}

	if result, ok := p.transfers[key]; ok {
		return result, nil
	}

	return TransferResult{Status: TransferUnknown}, nil
}

func (p *fakeProcessor) Lookup(_ context.Context, key string) (TransferResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lookupCalls++
	if p.lookupErr != nil {
		return TransferResult{}, p.lookupErr
	}

	if result, ok := p.lookups[key]; ok {
		return result, nil
	}

	return TransferResult{Status: TransferNoRecord}, nil
}

// fakeEnqueuer records outbox jobs and simulates dedupe-key collisions
type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []outbox.NewJob
	live map[string]bool
	err  error
}

func newFakeEnqueuer() *fakeEnqueuer {
	return &fakeEnqueuer{live: make(map[string]bool)}
}

func (e *fakeEnqueuer) Enqueue(_ context.Context, job outbox.NewJob) (*outbox.Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.err != nil {
		return nil, e.err
	}

	if job.DedupeKey != "" && e.live[job.DedupeKey] {
		// existing live job wins, same as the store's dedupe read
		return &outbox.Job{Type: job.Type, Status: outbox.JobStatusPending}, nil
	}

	e.jobs = append(e.jobs, job)
	if job.DedupeKey != "" {
		e.live[job.DedupeKey] = true
	}

	return &outbox.Job{ID: fmt.Sprintf("job-%d", len(e.jobs)), Type: job.Type, Status: outbox.JobStatusPending}, nil
}

func (e *fakeEnqueuer) byType(jobType string) []outbox.NewJob {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []outbox.NewJob
	for _, j := range e.jobs {
		if j.Type == jobType {
			out = append(out, j)
		}
	}

	return out
}

var errProcessorDown = errors.New("connection refused")
