package dispatcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cycleride/payout-be/internal/outbox"
	"github.com/cycleride/payout-be/internal/retry"
)

// fakeOutbox is an in-memory Store applying the same claim and finalize
// semantics as the real table
type fakeOutbox struct {
	mu   sync.Mutex
	jobs map[string]*outbox.Job
}

func newFakeOutbox() *fakeOutbox {
	return &fakeOutbox{jobs: make(map[string]*outbox.Job)}
}

func (f *fakeOutbox) add(job *outbox.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()

	cp := *job
	f.jobs[job.ID] = &cp
}

func (f *fakeOutbox) get(id string) outbox.Job {
	f.mu.Lock()
	defer f.mu.Unlock()

	return *f.jobs[id]
}

func (f *fakeOutbox) ClaimBatch(_ context.Context, limit int, workerID string, now time.Time, lockTTL time.Duration) ([]*outbox.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var claimed []*outbox.Job
	for _, job := range f.jobs {
		if len(claimed) >= limit {
			break
		}

		free := !job.LockedAt.Valid || job.LockedAt.Time.Before(now.Add(-lockTTL))
		if job.Status == outbox.JobStatusPending && !job.RunAt.After(now) && free {
			job.LockedAt.Time, job.LockedAt.Valid = now, true
			job.LockedBy.String, job.LockedBy.Valid = workerID, true
			job.Attempts++
			cp := *job
			claimed = append(claimed, &cp)
		}
	}

	return claimed, nil
}

func (f *fakeOutbox) MarkSent(_ context.Context, jobID, workerID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	job := f.jobs[jobID]
	if job == nil || !job.LockedBy.Valid || job.LockedBy.String != workerID || job.Status != outbox.JobStatusPending {
		return nil // lock no longer owned, benign
	}

	job.Status = outbox.JobStatusSent
	job.LockedAt.Valid = false
	job.LockedBy.Valid = false

	return nil
}

func (f *fakeOutbox) RescheduleOrFail(_ context.Context, jobID, workerID, cause string, attempts int, policy retry.Policy, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	job := f.jobs[jobID]
	if job == nil || !job.LockedBy.Valid || job.LockedBy.String != workerID || job.Status != outbox.JobStatusPending {
		return nil
	}

	job.LastError.String, job.LastError.Valid = cause, true
	job.LockedAt.Valid = false
	job.LockedBy.Valid = false

	if policy.Exhausted(attempts) {
		job.Status = outbox.JobStatusFailed
		return nil
	}

	job.RunAt = now.Add(policy.NextDelay(attempts))

	return nil
}

// fakePublisher records publishes and can fail on demand
type fakePublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, job *outbox.Job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}

	p.published = append(p.published, job.ID)

	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.published)
}

func newTestDispatcher(store Store, publisher Publisher) *Dispatcher {
	d := New(&Config{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:     store,
		Publisher: publisher,
		Policy:    retry.DefaultPolicy(),
		Interval:  time.Second,
		BatchSize: 10,
		LockTTL:   time.Minute,
	})
	return d
}

func pendingJob(id string, runAt time.Time) *outbox.Job {
	return &outbox.Job{
		ID:      id,
		Type:    outbox.JobTypeWithdrawalExecute,
		Payload: `{"withdrawal_id":"w-1"}`,
		RunAt:   runAt,
		Status:  outbox.JobStatusPending,
	}
}

func TestDispatcher_Tick_PublishesAndMarksSent(t *testing.T) {
	store := newFakeOutbox()
	publisher := &fakePublisher{}

	now := time.Now().UTC()
	store.add(pendingJob("j-1", now.Add(-time.Second)))
	store.add(pendingJob("j-2", now.Add(-time.Second)))

	d := newTestDispatcher(store, publisher)

	require.NoError(t, d.Tick(context.Background()))

	assert.Equal(t, 2, publisher.count())
	assert.Equal(t, outbox.JobStatusSent, store.get("j-1").Status)
	assert.Equal(t, outbox.JobStatusSent, store.get("j-2").Status)
	assert.False(t, store.get("j-1").LockedBy.Valid)
}

func TestDispatcher_Tick_SkipsFutureJobs(t *testing.T) {
	store := newFakeOutbox()
	publisher := &fakePublisher{}

	store.add(pendingJob("j-future", time.Now().UTC().Add(time.Hour)))

	d := newTestDispatcher(store, publisher)

	require.NoError(t, d.Tick(context.Background()))

	assert.Equal(t, 0, publisher.count())
	assert.Equal(t, outbox.JobStatusPending, store.get("j-future").Status)
	assert.Equal(t, 0, store.get("j-future").Attempts)
}

func TestDispatcher_Tick_ReschedulesOnPublishFailure(t *testing.T) {
	store := newFakeOutbox()
	publisher := &fakePublisher{err: errors.New("broker unreachable")}

	now := time.Now().UTC()
	store.add(pendingJob("j-3", now.Add(-time.Second)))

	d := newTestDispatcher(store, publisher)

	require.NoError(t, d.Tick(context.Background()))

	got := store.get("j-3")
	assert.Equal(t, outbox.JobStatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.True(t, got.RunAt.After(now))
	assert.Equal(t, "broker unreachable", got.LastError.String)
	assert.False(t, got.LockedBy.Valid)
}

func TestDispatcher_DeadLetterAfterMaxAttempts(t *testing.T) {
	store := newFakeOutbox()
	publisher := &fakePublisher{err: errors.New("broker unreachable")}

	job := pendingJob("j-4", time.Now().UTC().Add(-time.Second))
	store.add(job)

	d := newTestDispatcher(store, publisher)
	policy := retry.DefaultPolicy()

	// every publish fails; drive ticks past the attempt budget. The fake's
	// RunAt pushes into the future after each reschedule, so move the
	// dispatcher clock forward instead of waiting.
	clock := time.Now().UTC()
	d.now = func() time.Time { return clock }

	for i := 0; i < policy.MaxAttempts+3; i++ {
		require.NoError(t, d.Tick(context.Background()))
		clock = clock.Add(policy.MaxDelay + time.Second)
	}

	got := store.get("j-4")
	assert.Equal(t, outbox.JobStatusFailed, got.Status)
	// dead-lettered after exactly MaxAttempts claims, never more
	assert.Equal(t, policy.MaxAttempts, got.Attempts)
}

func TestDispatcher_ConcurrentInstancesNeverDoubleClaim(t *testing.T) {
	store := newFakeOutbox()
	publisher := &fakePublisher{}

	now := time.Now().UTC()
	for _, id := range []string{"j-a", "j-b", "j-c", "j-d"} {
		store.add(pendingJob(id, now.Add(-time.Second)))
	}

	d1 := newTestDispatcher(store, publisher)
	d2 := newTestDispatcher(store, publisher)

	var wg sync.WaitGroup
	for _, d := range []*Dispatcher{d1, d2} {
		wg.Add(1)
		go func(d *Dispatcher) {
			defer wg.Done()
			_ = d.Tick(context.Background())
		}(d)
	}
	wg.Wait()

	// each job published exactly once across both instances
	assert.Equal(t, 4, publisher.count())

	seen := make(map[string]int)
	for _, id := range publisher.published {
		seen[id]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "job %s published %d times", id, n)
	}
}

func TestDispatcher_Run_StopsOnContextCancel(t *testing.T) {
	store := newFakeOutbox()
	d := newTestDispatcher(store, &fakePublisher{})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}
