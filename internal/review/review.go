// Package review is the human gate. Every application stops here until an
// operator authorizes or rejects it, and a hard deadline guarantees nothing
// waits forever: a ticket the human never answers expires and is closed.
package review

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/martagil/canjebot/internal/bus"
	"github.com/martagil/canjebot/internal/status"
	"github.com/martagil/canjebot/internal/store"
)

// ErrExpired is returned when a decision arrives after the review window
// closed. The late decision is discarded.
var ErrExpired = errors.New("review window expired")

// ErrNotPending is returned when the application is not waiting for review,
// including when a concurrent decision already settled it.
var ErrNotPending = errors.New("application is not pending review")

// ApplicationStore is the slice of the store the gate needs.
type ApplicationStore interface {
	GetApplication(ctx context.Context, id uuid.UUID) (*store.Application, error)
	TransitionApplication(ctx context.Context, id uuid.UUID, event status.Event, upd store.ApplicationUpdate) (*store.Application, error)
}

type ticket struct {
	deadline    time.Time
	warnTimer   *time.Timer
	expireTimer *time.Timer
}

// Gate tracks one timer per pending application. Decisions race the timer;
// the store's compare-and-swap transition decides the winner.
type Gate struct {
	store   ApplicationStore
	bus     *bus.Bus
	logger  *log.Logger
	window  time.Duration
	warning time.Duration

	// onAuthorized is invoked after a successful authorization, outside the
	// gate's lock. The engine hooks submission in here.
	onAuthorized func(id uuid.UUID)

	mu      sync.Mutex
	tickets map[uuid.UUID]*ticket
}

// New builds a gate. warning is how long before the deadline the reminder
// fires; zero disables reminders.
func New(st ApplicationStore, notifier *bus.Bus, logger *log.Logger, window, warning time.Duration) *Gate {
	if logger == nil {
		logger = log.Default()
	}
	return &Gate{
		store:   st,
		bus:     notifier,
		logger:  logger,
		window:  window,
		warning: warning,
		tickets: make(map[uuid.UUID]*ticket),
	}
}

// OnAuthorized registers the post-authorization hook.
func (g *Gate) OnAuthorized(fn func(id uuid.UUID)) {
	g.onAuthorized = fn
}

// Arm starts the review clock for an application that just entered
// pending_review. Arming an already armed ticket resets nothing; the first
// deadline stands.
func (g *Gate) Arm(id uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.tickets[id]; ok {
		return
	}

	t := &ticket{deadline: time.Now().Add(g.window)}
	if g.warning > 0 && g.warning < g.window {
		t.warnTimer = time.AfterFunc(g.window-g.warning, func() { g.warn(id) })
	}
	t.expireTimer = time.AfterFunc(g.window, func() { g.expire(id) })
	g.tickets[id] = t

	g.logger.Printf("review: armed application=%s deadline=%s", id, t.deadline.Format(time.RFC3339))
}

// Rearm restores tickets for applications already pending at startup. The
// remaining window is computed from when the application entered review, so
// a restart does not grant extra time.
func (g *Gate) Rearm(id uuid.UUID, enteredReview time.Time) {
	remaining := time.Until(enteredReview.Add(g.window))
	if remaining <= 0 {
		go g.expire(id)
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.tickets[id]; ok {
		return
	}
	t := &ticket{deadline: enteredReview.Add(g.window)}
	if warnIn := remaining - g.warning; g.warning > 0 && warnIn > 0 {
		t.warnTimer = time.AfterFunc(warnIn, func() { g.warn(id) })
	}
	t.expireTimer = time.AfterFunc(remaining, func() { g.expire(id) })
	g.tickets[id] = t
}

// Pending returns the ids currently armed, with their deadlines.
func (g *Gate) Pending() map[uuid.UUID]time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[uuid.UUID]time.Time, len(g.tickets))
	for id, t := range g.tickets {
		out[id] = t.deadline
	}
	return out
}

// Authorize records a human approval. After the deadline the decision is
// rejected with ErrExpired and the expiry is applied immediately rather than
// waiting for the timer. Authorizing an application that already reached
// submitted is a harmless no-op.
func (g *Gate) Authorize(ctx context.Context, id uuid.UUID, operator string) error {
	if deadline, armed := g.deadline(id); armed && time.Now().After(deadline) {
		g.expire(id)
		return ErrExpired
	}

	_, err := g.store.TransitionApplication(ctx, id, status.EventAuthorize, store.ApplicationUpdate{
		TriggeredBy: operator,
		Authorized:  true,
		Note:        "authorized by " + operator,
	})
	if err != nil {
		return g.decisionError(ctx, id, err)
	}

	g.disarm(id)
	g.logger.Printf("review: authorized application=%s operator=%s", id, operator)
	if g.onAuthorized != nil {
		g.onAuthorized(id)
	}
	return nil
}

// Reject records a human rejection. Terminal; the application is never
// submitted. A rejection arriving after the deadline returns ErrExpired, same
// as a late Authorize: the window already closed and the expiry transition is
// applied, so not-pending would understate what happened.
func (g *Gate) Reject(ctx context.Context, id uuid.UUID, operator, reason string) error {
	if deadline, armed := g.deadline(id); armed && time.Now().After(deadline) {
		g.expire(id)
		return ErrExpired
	}

	_, err := g.store.TransitionApplication(ctx, id, status.EventRejectHuman, store.ApplicationUpdate{
		TriggeredBy: operator,
		Note:        reason,
	})
	if err != nil {
		return g.decisionError(ctx, id, err)
	}

	g.disarm(id)
	g.logger.Printf("review: rejected application=%s operator=%s", id, operator)
	return nil
}

// decisionError maps a failed decision transition onto the gate's error
// vocabulary by looking at where the application actually is.
func (g *Gate) decisionError(ctx context.Context, id uuid.UUID, cause error) error {
	if errors.Is(cause, store.ErrNotFound) {
		return cause
	}

	app, err := g.store.GetApplication(ctx, id)
	if err != nil {
		return cause
	}
	switch app.Status {
	case status.Expired:
		return ErrExpired
	case status.Submitted:
		// The application already went out; repeating the approval is a
		// harmless no-op.
		if errors.Is(cause, store.ErrConflict) || errors.Is(cause, status.ErrIllegalTransition) {
			return nil
		}
	}
	return fmt.Errorf("%w: application is %s", ErrNotPending, app.Status)
}

// warn publishes the closing-soon reminder if the application is still
// pending.
func (g *Gate) warn(id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	app, err := g.store.GetApplication(ctx, id)
	if err != nil || app.Status != status.PendingReview {
		return
	}
	g.logger.Printf("review: window closing soon application=%s", id)
	if g.bus != nil {
		g.bus.Publish(bus.Event{
			Name:      bus.ApplicationReviewExpiring,
			EntityID:  id.String(),
			NewStatus: status.PendingReview,
			Detail:    "review window closing soon",
		})
	}
}

// expire closes the window. The transition is a no-op when a decision
// already landed; losing that race is the expected case, not an error.
func (g *Gate) expire(id uuid.UUID) {
	g.disarm(id)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := g.store.TransitionApplication(ctx, id, status.EventExpire, store.ApplicationUpdate{
		TriggeredBy: "system",
		Note:        "review window expired without decision",
	})
	switch {
	case err == nil:
		g.logger.Printf("review: expired application=%s", id)
	case errors.Is(err, store.ErrConflict), errors.Is(err, status.ErrIllegalTransition), errors.Is(err, store.ErrNotFound):
		// Decided or gone before the timer fired.
	default:
		g.logger.Printf("review: expiry failed application=%s error=%v", id, err)
	}
}

func (g *Gate) deadline(id uuid.UUID) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tickets[id]
	if !ok {
		return time.Time{}, false
	}
	return t.deadline, true
}

func (g *Gate) disarm(id uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tickets[id]
	if !ok {
		return
	}
	if t.warnTimer != nil {
		t.warnTimer.Stop()
	}
	if t.expireTimer != nil {
		t.expireTimer.Stop()
	}
	delete(g.tickets, id)
}

// Stop cancels all timers. Pending applications stay pending; Rearm picks
// them back up on the next start.
func (g *Gate) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, t := range g.tickets {
		if t.warnTimer != nil {
			t.warnTimer.Stop()
		}
		if t.expireTimer != nil {
			t.expireTimer.Stop()
		}
		delete(g.tickets, id)
	}
}
