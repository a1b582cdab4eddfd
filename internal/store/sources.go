package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/martagil/canjebot/internal/bus"
)

// Run outcomes recorded on a source after each collection cycle.
const (
	OutcomeOK     = "ok"
	OutcomeEmpty  = "empty"
	OutcomeFailed = "failed"
)

const sourceColumns = `name, kind, enabled, profile, consecutive_empty,
	consecutive_failures, last_run_at, last_outcome, next_delay_ms, disabled_reason`

func scanSource(row pgx.Row) (*SourceState, error) {
	var src SourceState
	var delayMs int64
	err := row.Scan(&src.Name, &src.Kind, &src.Enabled, &src.Profile,
		&src.ConsecutiveEmpty, &src.ConsecutiveFailures, &src.LastRunAt,
		&src.LastOutcome, &delayMs, &src.DisabledReason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan source: %w", err)
	}
	src.NextDelay = time.Duration(delayMs) * time.Millisecond
	return &src, nil
}

// EnsureSource registers a configured source, updating kind and profile on
// restart but preserving accumulated run state. A source disabled by the
// circuit breaker stays disabled until an operator re-enables it.
func (s *Store) EnsureSource(ctx context.Context, name, kind, profile string) (*SourceState, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO sources (name, kind, profile)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET kind = $2, profile = $3
		 RETURNING `+sourceColumns,
		name, kind, profile)
	return scanSource(row)
}

// GetSource fetches one source by name.
func (s *Store) GetSource(ctx context.Context, name string) (*SourceState, error) {
	return scanSource(s.pool.QueryRow(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE name = $1`, name))
}

// ListSources returns all registered sources ordered by name.
func (s *Store) ListSources(ctx context.Context) ([]SourceState, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sourceColumns+` FROM sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []SourceState
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

// RecordSourceRun persists the outcome of one collection cycle: the run
// timestamp, the delay drawn for the next run, and the streak counters the
// circuit breaker reads. An ok run resets both streaks; an empty run resets
// only the failure streak; a failed run leaves the empty streak untouched.
func (s *Store) RecordSourceRun(ctx context.Context, name, outcome string, ranAt time.Time, nextDelay time.Duration) (*SourceState, error) {
	src, err := s.GetSource(ctx, name)
	if err != nil {
		return nil, err
	}

	empty := src.ConsecutiveEmpty
	failures := src.ConsecutiveFailures
	switch outcome {
	case OutcomeOK:
		empty = 0
		failures = 0
	case OutcomeEmpty:
		empty++
		failures = 0
	case OutcomeFailed:
		failures++
	default:
		return nil, fmt.Errorf("unknown run outcome %q", outcome)
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE sources
		 SET consecutive_empty = $1,
		     consecutive_failures = $2,
		     last_run_at = $3,
		     last_outcome = $4,
		     next_delay_ms = $5
		 WHERE name = $6
		 RETURNING `+sourceColumns,
		empty, failures, ranAt.UTC(), outcome, nextDelay.Milliseconds(), name)
	return scanSource(row)
}

// DisableSource turns a source off and records why. Used by the circuit
// breaker and by operators.
func (s *Store) DisableSource(ctx context.Context, name, reason string) (*SourceState, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE sources SET enabled = FALSE, disabled_reason = $1
		 WHERE name = $2
		 RETURNING `+sourceColumns,
		reason, name)
	src, err := scanSource(row)
	if err != nil {
		return nil, err
	}
	s.publish(bus.Event{
		Name:     bus.SourceCircuitOpened,
		EntityID: name,
		Detail:   reason,
	})
	return src, nil
}

// EnableSource re-enables a source and resets its streak counters so the
// breaker starts from a clean slate.
func (s *Store) EnableSource(ctx context.Context, name string) (*SourceState, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE sources
		 SET enabled = TRUE, disabled_reason = '',
		     consecutive_empty = 0, consecutive_failures = 0
		 WHERE name = $1
		 RETURNING `+sourceColumns,
		name)
	return scanSource(row)
}
