package review

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martagil/canjebot/internal/bus"
	"github.com/martagil/canjebot/internal/status"
	"github.com/martagil/canjebot/internal/store"
)

// fakeStore implements the gate's store slice with the same
// compare-and-swap semantics as the real one.
type fakeStore struct {
	mu   sync.Mutex
	apps map[uuid.UUID]*store.Application
	log  []status.Status
}

func newFakeStore() *fakeStore {
	return &fakeStore{apps: make(map[uuid.UUID]*store.Application)}
}

func (f *fakeStore) add(st status.Status) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.apps[id] = &store.Application{ID: id, Status: st}
	return id
}

func (f *fakeStore) GetApplication(ctx context.Context, id uuid.UUID) (*store.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.apps[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *app
	return &cp, nil
}

func (f *fakeStore) TransitionApplication(ctx context.Context, id uuid.UUID, event status.Event, upd store.ApplicationUpdate) (*store.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.apps[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	next, err := status.Next(app.Status, event)
	if err != nil {
		return nil, err
	}
	app.Status = next
	if upd.Authorized {
		app.AuthorizedByHuman = true
		now := time.Now()
		app.AuthorizedAt = &now
	}
	f.log = append(f.log, next)
	cp := *app
	return &cp, nil
}

func (f *fakeStore) statusOf(id uuid.UUID) status.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apps[id].Status
}

func TestAuthorizeBeforeDeadline(t *testing.T) {
	fs := newFakeStore()
	id := fs.add(status.PendingReview)

	var hooked uuid.UUID
	g := New(fs, nil, nil, time.Minute, 0)
	g.OnAuthorized(func(got uuid.UUID) { hooked = got })
	g.Arm(id)

	require.NoError(t, g.Authorize(context.Background(), id, "marta"))
	assert.Equal(t, status.Authorized, fs.statusOf(id))
	assert.Equal(t, id, hooked)
	assert.Empty(t, g.Pending(), "decided tickets are disarmed")
}

func TestRejectBeforeDeadline(t *testing.T) {
	fs := newFakeStore()
	id := fs.add(status.PendingReview)

	g := New(fs, nil, nil, time.Minute, 0)
	g.Arm(id)

	require.NoError(t, g.Reject(context.Background(), id, "marta", "wrong city"))
	assert.Equal(t, status.RejectedByHuman, fs.statusOf(id))
}

func TestWindowExpires(t *testing.T) {
	fs := newFakeStore()
	id := fs.add(status.PendingReview)

	g := New(fs, nil, nil, 30*time.Millisecond, 0)
	g.Arm(id)

	require.Eventually(t, func() bool {
		return fs.statusOf(id) == status.Expired
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, g.Pending())
}

func TestLateAuthorizeExpiresAndRefuses(t *testing.T) {
	fs := newFakeStore()
	id := fs.add(status.PendingReview)

	g := New(fs, nil, nil, 20*time.Millisecond, 0)

	// Arm, then stop the timer so the decision itself finds the deadline
	// passed. This simulates a decision landing in the instant between
	// deadline and timer fire.
	g.Arm(id)
	g.mu.Lock()
	g.tickets[id].expireTimer.Stop()
	g.mu.Unlock()
	time.Sleep(40 * time.Millisecond)

	err := g.Authorize(context.Background(), id, "marta")
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, status.Expired, fs.statusOf(id), "late decision performs the expiry itself")
}

func TestLateRejectExpiresAndRefuses(t *testing.T) {
	fs := newFakeStore()
	id := fs.add(status.PendingReview)

	g := New(fs, nil, nil, 20*time.Millisecond, 0)

	g.Arm(id)
	g.mu.Lock()
	g.tickets[id].expireTimer.Stop()
	g.mu.Unlock()
	time.Sleep(40 * time.Millisecond)

	err := g.Reject(context.Background(), id, "marta", "too far away")
	assert.ErrorIs(t, err, ErrExpired)
	assert.Equal(t, status.Expired, fs.statusOf(id), "late rejection performs the expiry itself")
}

func TestAuthorizeAfterTimerExpired(t *testing.T) {
	fs := newFakeStore()
	id := fs.add(status.Expired)

	g := New(fs, nil, nil, time.Minute, 0)
	err := g.Authorize(context.Background(), id, "marta")
	assert.ErrorIs(t, err, ErrExpired)
}

func TestAuthorizeAlreadySubmittedIsIdempotent(t *testing.T) {
	fs := newFakeStore()
	id := fs.add(status.Submitted)

	g := New(fs, nil, nil, time.Minute, 0)
	assert.NoError(t, g.Authorize(context.Background(), id, "marta"))
	assert.Equal(t, status.Submitted, fs.statusOf(id))
}

func TestAuthorizeNotPending(t *testing.T) {
	fs := newFakeStore()
	id := fs.add(status.Generating)

	g := New(fs, nil, nil, time.Minute, 0)
	err := g.Authorize(context.Background(), id, "marta")
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestExpiryLosesRaceQuietly(t *testing.T) {
	fs := newFakeStore()
	id := fs.add(status.PendingReview)

	g := New(fs, nil, nil, 30*time.Millisecond, 0)
	g.Arm(id)
	require.NoError(t, g.Authorize(context.Background(), id, "marta"))

	// Give a stray timer a chance to fire; the decided status must hold.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, status.Authorized, fs.statusOf(id))
}

func TestWarningEventFires(t *testing.T) {
	fs := newFakeStore()
	id := fs.add(status.PendingReview)

	b := bus.New(nil)
	sub := b.Subscribe(4)
	defer b.Unsubscribe(sub)

	g := New(fs, b, nil, 100*time.Millisecond, 80*time.Millisecond)
	g.Arm(id)

	select {
	case e := <-sub.C:
		assert.Equal(t, bus.ApplicationReviewExpiring, e.Name)
		assert.Equal(t, id.String(), e.EntityID)
	case <-time.After(time.Second):
		t.Fatal("expected review-expiring event")
	}
	// Decision still possible after the warning.
	require.NoError(t, g.Authorize(context.Background(), id, "marta"))
}

func TestRearmComputesRemainingWindow(t *testing.T) {
	fs := newFakeStore()
	fresh := fs.add(status.PendingReview)
	stale := fs.add(status.PendingReview)

	g := New(fs, nil, nil, 200*time.Millisecond, 0)
	g.Rearm(fresh, time.Now().Add(-50*time.Millisecond))
	g.Rearm(stale, time.Now().Add(-time.Hour))

	require.Eventually(t, func() bool {
		return fs.statusOf(stale) == status.Expired
	}, time.Second, 5*time.Millisecond, "overdue ticket expires immediately on rearm")

	assert.Equal(t, status.PendingReview, fs.statusOf(fresh))
	require.NoError(t, g.Authorize(context.Background(), fresh, "marta"))
}

func TestConcurrentDecisionsSingleWinner(t *testing.T) {
	fs := newFakeStore()
	id := fs.add(status.PendingReview)

	g := New(fs, nil, nil, time.Minute, 0)
	g.Arm(id)

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				results[i] = g.Authorize(context.Background(), id, "marta")
			} else {
				results[i] = g.Reject(context.Background(), id, "marta", "no")
			}
		}(i)
	}
	wg.Wait()

	final := fs.statusOf(id)
	assert.Contains(t, []status.Status{status.Authorized, status.RejectedByHuman}, final)

	var oks int
	for _, err := range results {
		if err == nil {
			oks++
		}
	}
	assert.Equal(t, 1, oks, "exactly one decision wins")
}
