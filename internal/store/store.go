// Package store is the authoritative record of every source, job and
// application. All status mutation is serialized through its transition API:
// transitions are compare-and-swap updates on the current status, so
// concurrent attempts on the same entity linearize and the loser gets a
// conflict error instead of corrupting state. No raw field setters are
// exposed.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/martagil/canjebot/internal/bus"
)

// ErrNotFound is returned when the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a compare-and-swap transition loses a race:
// the entity's status changed between read and write. The caller's request
// is rejected; state is unchanged by the losing attempt.
var ErrConflict = errors.New("transition conflict")

// ErrDuplicate is returned when a uniqueness invariant would be violated
// (dedup key collision racing a create, or a second application for a job).
var ErrDuplicate = errors.New("duplicate entity")

// Store wraps a PostgreSQL connection pool and the notification bus.
// Every successful transition is broadcast exactly once.
type Store struct {
	pool *pgxpool.Pool
	bus  *bus.Bus
}

// Connect establishes a connection pool, verifies it, and ensures the schema
// exists. notifier may be nil (events are then not broadcast).
func Connect(ctx context.Context, databaseURL string, notifier *bus.Bus) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{pool: pool, bus: notifier}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) publish(e bus.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}
