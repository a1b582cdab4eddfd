package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/martagil/canjebot/internal/bus"
	"github.com/martagil/canjebot/internal/status"
)

const jobColumns = `id, source, external_id, url, title, company, location,
	salary_raw, contract_type, description, profile, verdict_reason, status, discovered_at`

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.Source, &j.ExternalID, &j.URL, &j.Title, &j.Company,
		&j.Location, &j.SalaryRaw, &j.ContractType, &j.Description, &j.Profile,
		&j.VerdictReason, &j.Status, &j.DiscoveredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return &j, nil
}

// UpsertJob inserts a posting keyed on (source, external_id). A re-seen
// posting returns the existing row untouched: attributes are immutable after
// the eligibility verdict, and dedup must never regress a status. The
// returned bool is true when the row is new.
//
// A new row publishes job.scraped and, when it was inserted already decided,
// the event named for that status (job.qualified or job.rejected_by_filter).
func (s *Store) UpsertJob(ctx context.Context, in NewJobInput) (*Job, bool, error) {
	if !status.Valid(in.Status) {
		return nil, false, fmt.Errorf("invalid job status %q", in.Status)
	}

	id := uuid.New()
	row := s.pool.QueryRow(ctx,
		`INSERT INTO jobs (id, source, external_id, url, title, company, location,
		                   salary_raw, contract_type, description, profile, verdict_reason, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (source, external_id) DO NOTHING
		 RETURNING `+jobColumns,
		id, in.Source, in.ExternalID, in.URL, in.Title, in.Company, in.Location,
		in.SalaryRaw, in.ContractType, in.Description, in.Profile, in.VerdictReason, in.Status,
	)

	job, err := scanJob(row)
	if err == nil {
		s.publish(bus.Event{
			Name:      bus.JobScraped,
			EntityID:  job.ID.String(),
			NewStatus: status.Scraped,
			Detail:    job.Title,
		})
		if job.Status != status.Scraped {
			s.publish(bus.Event{
				Name:      jobEventName(job.Status),
				EntityID:  job.ID.String(),
				OldStatus: status.Scraped,
				NewStatus: job.Status,
				Detail:    job.VerdictReason,
			})
		}
		return job, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("failed to upsert job: %w", err)
	}

	// Conflict path: the posting was seen before.
	existing, err := s.GetJobByDedupKey(ctx, in.Source, in.ExternalID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetJob fetches a job by id.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	return scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
}

// GetJobByDedupKey fetches a job by its (source, external_id) dedup key.
func (s *Store) GetJobByDedupKey(ctx context.Context, source, externalID string) (*Job, error) {
	return scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE source = $1 AND external_id = $2`,
		source, externalID))
}

// TransitionJob applies event to the job's current status through the state
// machine. The write is a compare-and-swap on the status column; a lost race
// returns ErrConflict, an edge missing from the machine returns
// ErrIllegalTransition. The matching bus event is published on success.
func (s *Store) TransitionJob(ctx context.Context, id uuid.UUID, event status.Event) (*Job, error) {
	job, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := status.Next(job.Status, event)
	if err != nil {
		return nil, err
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1 WHERE id = $2 AND status = $3`,
		next, id, job.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to transition job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: job %s no longer %s", ErrConflict, id, job.Status)
	}

	old := job.Status
	job.Status = next
	s.publish(bus.Event{
		Name:      jobEventName(next),
		EntityID:  id.String(),
		OldStatus: old,
		NewStatus: next,
		Detail:    job.VerdictReason,
	})
	return job, nil
}

// ListJobsByStatus returns jobs in a given status, oldest first, capped at
// limit (50 when limit <= 0).
func (s *Store) ListJobsByStatus(ctx context.Context, st status.Status, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = $1 ORDER BY discovered_at ASC LIMIT $2`,
		st, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// CountJobsByStatus returns job counts grouped by status.
func (s *Store) CountJobsByStatus(ctx context.Context) (map[status.Status]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[status.Status]int)
	for rows.Next() {
		var st status.Status
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

func jobEventName(next status.Status) string {
	switch next {
	case status.Qualified:
		return bus.JobQualified
	case status.RejectedByFilter:
		return bus.JobRejectedByFilter
	}
	return "job." + string(next)
}
