// Package bus provides the in-process notification fan-out. Every status
// transition and scheduler incident is published here; the dashboard (SSE,
// websocket) and any other observer consume it through bounded subscriber
// channels. Delivery is at-most-once per subscriber: a slow consumer loses
// its oldest events, never the publisher's time.
package bus

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/martagil/canjebot/internal/status"
)

// Event names, one per state-machine transition plus scheduler incidents.
const (
	JobScraped          = "job.scraped"
	JobQualified        = "job.qualified"
	JobRejectedByFilter = "job.rejected_by_filter"

	ApplicationGenerating       = "application.generating"
	ApplicationReady            = "application.ready"
	ApplicationFailedValidation = "application.failed_validation"
	ApplicationPendingReview    = "application.pending_review"
	ApplicationReviewExpiring   = "application.review_expiring"
	ApplicationAuthorized       = "application.authorized"
	ApplicationSubmitted        = "application.submitted"
	ApplicationRejected         = "application.rejected_by_human"
	ApplicationExpired          = "application.expired"
	ApplicationAmbiguous        = "application.ambiguous"
	ApplicationRetried          = "application.retried"

	SourceRunCompleted  = "source.run_completed"
	SourceRunFailed     = "source.run_failed"
	SourceCircuitOpened = "source.circuit_opened"
)

// Event is a single broadcast notification.
type Event struct {
	Name      string        `json:"name"`
	EntityID  string        `json:"entity_id,omitempty"`
	OldStatus status.Status `json:"old_status,omitempty"`
	NewStatus status.Status `json:"new_status,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	At        time.Time     `json:"at"`
}

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Subscriber receives events on C until Unsubscribe is called.
type Subscriber struct {
	C       chan Event
	dropped atomic.Int64
}

// Bus fans events out to all current subscribers.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	logger *log.Logger
}

// New creates an empty bus. logger may be nil.
func New(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.Default()
	}
	return &Bus{
		subs:   make(map[*Subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe registers a new subscriber with the given buffer size
// (DefaultBuffer if n <= 0). Safe to call concurrently with Publish.
func (b *Bus) Subscribe(n int) *Subscriber {
	if n <= 0 {
		n = DefaultBuffer
	}
	sub := &Subscriber{C: make(chan Event, n)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.C)
	}
	b.mu.Unlock()
}

// Publish delivers e to every subscriber without blocking. When a subscriber's
// buffer is full the oldest buffered event is dropped to make room; drops are
// logged so an operator can see a lagging consumer.
//
// Delivery happens under the read lock: sends never block, and a channel is
// only ever closed by Unsubscribe under the write lock, so no send can race a
// close.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		select {
		case sub.C <- e:
		default:
			// Drop-oldest: free one slot, then retry once. The second
			// send can still lose the race against a concurrent Publish,
			// in which case the new event is the one dropped.
			select {
			case <-sub.C:
			default:
			}
			select {
			case sub.C <- e:
			default:
			}
			total := sub.dropped.Add(1)
			b.logger.Printf("bus: subscriber lagging, dropped oldest event name=%s total_dropped=%d", e.Name, total)
		}
	}
}

// Transition publishes the event named after a state-machine transition.
func (b *Bus) Transition(name, entityID string, old, next status.Status, detail string) {
	b.Publish(Event{
		Name:      name,
		EntityID:  entityID,
		OldStatus: old,
		NewStatus: next,
		Detail:    detail,
	})
}
