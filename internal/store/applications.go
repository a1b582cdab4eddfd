package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/martagil/canjebot/internal/bus"
	"github.com/martagil/canjebot/internal/status"
)

const applicationColumns = `id, job_id, profile, company, status, document,
	quality_score, authorized_by_human, authorized_at, created_at, updated_at`

func scanApplication(row pgx.Row) (*Application, error) {
	var a Application
	err := row.Scan(&a.ID, &a.JobID, &a.Profile, &a.Company, &a.Status, &a.Document,
		&a.QualityScore, &a.AuthorizedByHuman, &a.AuthorizedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan application: %w", err)
	}
	return &a, nil
}

// CreateApplication creates the single application for a job, in status
// qualified. The UNIQUE constraint on job_id enforces the 1:1 invariant;
// violating it returns ErrDuplicate.
func (s *Store) CreateApplication(ctx context.Context, jobID uuid.UUID, profile, company string) (*Application, error) {
	id := uuid.New()
	row := s.pool.QueryRow(ctx,
		`INSERT INTO applications (id, job_id, profile, company, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+applicationColumns,
		id, jobID, profile, company, status.Qualified)

	app, err := scanApplication(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, fmt.Errorf("%w: application for job %s already exists", ErrDuplicate, jobID)
		}
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	if err := s.logTransition(ctx, app.ID, "", status.Qualified, "engine", "application created"); err != nil {
		return nil, err
	}
	return app, nil
}

// GetApplication fetches an application by id.
func (s *Store) GetApplication(ctx context.Context, id uuid.UUID) (*Application, error) {
	return scanApplication(s.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
}

// GetApplicationByJob fetches the application owned by a job, if any.
func (s *Store) GetApplicationByJob(ctx context.Context, jobID uuid.UUID) (*Application, error) {
	return scanApplication(s.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE job_id = $1`, jobID))
}

// ApplicationUpdate carries the optional fields a transition may set
// alongside the status change. Nil fields are left untouched.
type ApplicationUpdate struct {
	TriggeredBy  string
	Note         string
	Document     []byte
	QualityScore *float64
	Authorized   bool
}

// TransitionApplication applies event through the state machine with a
// compare-and-swap on the current status, writes the audit row, and
// broadcasts the transition. A lost race returns ErrConflict; an illegal
// event returns status.ErrIllegalTransition. Either way state is unchanged.
func (s *Store) TransitionApplication(ctx context.Context, id uuid.UUID, event status.Event, upd ApplicationUpdate) (*Application, error) {
	app, err := s.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}

	next, err := status.Next(app.Status, event)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var authorizedAt *time.Time
	if upd.Authorized {
		now := time.Now().UTC()
		authorizedAt = &now
	}

	tag, err := tx.Exec(ctx,
		`UPDATE applications
		 SET status = $1,
		     updated_at = NOW(),
		     document = COALESCE($2, document),
		     quality_score = COALESCE($3, quality_score),
		     authorized_by_human = authorized_by_human OR $4,
		     authorized_at = COALESCE($5, authorized_at)
		 WHERE id = $6 AND status = $7`,
		next, upd.Document, upd.QualityScore, upd.Authorized, authorizedAt, id, app.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to transition application: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("%w: application %s no longer %s", ErrConflict, id, app.Status)
	}

	triggeredBy := upd.TriggeredBy
	if triggeredBy == "" {
		triggeredBy = "system"
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO application_events (application_id, old_status, new_status, triggered_by, note)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, app.Status, next, triggeredBy, upd.Note); err != nil {
		return nil, fmt.Errorf("failed to log transition: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}

	old := app.Status
	updated, err := s.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}

	s.publish(bus.Event{
		Name:      applicationEventName(event, next),
		EntityID:  id.String(),
		OldStatus: old,
		NewStatus: next,
		Detail:    upd.Note,
	})
	return updated, nil
}

// logTransition writes an audit row outside a status change (creation only).
func (s *Store) logTransition(ctx context.Context, id uuid.UUID, old, next status.Status, triggeredBy, note string) error {
	var oldVal any
	if old != "" {
		oldVal = string(old)
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO application_events (application_id, old_status, new_status, triggered_by, note)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, oldVal, next, triggeredBy, note); err != nil {
		return fmt.Errorf("failed to log transition: %w", err)
	}
	return nil
}

// ListApplicationsByStatus returns applications in one status, oldest first.
func (s *Store) ListApplicationsByStatus(ctx context.Context, st status.Status, limit int) ([]Application, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+applicationColumns+` FROM applications
		 WHERE status = $1 ORDER BY updated_at ASC LIMIT $2`,
		st, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var apps []Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *a)
	}
	return apps, rows.Err()
}

// ListPendingReview returns the applications waiting on a human, oldest first.
func (s *Store) ListPendingReview(ctx context.Context) ([]Application, error) {
	return s.ListApplicationsByStatus(ctx, status.PendingReview, 0)
}

// CountApplicationsByStatus returns application counts grouped by status.
func (s *Store) CountApplicationsByStatus(ctx context.Context) (map[status.Status]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM applications GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count applications: %w", err)
	}
	defer rows.Close()

	counts := make(map[status.Status]int)
	for rows.Next() {
		var st status.Status
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("failed to scan application count: %w", err)
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

// CountRecentApplicationsByCompany counts live applications for a company
// created within the window; terminal rejections, withdrawals and expiries
// do not count against the per-company cap.
func (s *Store) CountRecentApplicationsByCompany(ctx context.Context, company string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM applications
		 WHERE LOWER(company) = LOWER($1)
		   AND created_at >= $2
		   AND status NOT IN ($3, $4, $5)`,
		company, since,
		status.RejectedByHuman, status.Expired, status.FailedValidation).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count applications for company: %w", err)
	}
	return n, nil
}

// ListTransitions returns the audit trail for one application, oldest first.
func (s *Store) ListTransitions(ctx context.Context, applicationID uuid.UUID) ([]TransitionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, application_id, COALESCE(old_status, ''), new_status, triggered_by, note, created_at
		 FROM application_events WHERE application_id = $1 ORDER BY id ASC`,
		applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()

	var records []TransitionRecord
	for rows.Next() {
		var r TransitionRecord
		if err := rows.Scan(&r.ID, &r.ApplicationID, &r.OldStatus, &r.NewStatus,
			&r.TriggeredBy, &r.Note, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// CleanupOld deletes terminal rows past their retention windows. Jobs with a
// surviving application are kept regardless of age.
func (s *Store) CleanupOld(ctx context.Context, jobRetention, applicationRetention time.Duration) (jobsDeleted, appsDeleted int64, err error) {
	now := time.Now().UTC()

	appTag, err := s.pool.Exec(ctx,
		`DELETE FROM applications
		 WHERE created_at < $1 AND status IN ($2, $3, $4, $5)`,
		now.Add(-applicationRetention),
		status.RejectedByHuman, status.Expired, status.FailedValidation, status.Ambiguous)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to clean up applications: %w", err)
	}

	jobTag, err := s.pool.Exec(ctx,
		`DELETE FROM jobs
		 WHERE discovered_at < $1
		   AND id NOT IN (SELECT job_id FROM applications)`,
		now.Add(-jobRetention))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to clean up jobs: %w", err)
	}

	return jobTag.RowsAffected(), appTag.RowsAffected(), nil
}

func applicationEventName(event status.Event, next status.Status) string {
	if event == status.EventRetryGeneration {
		return bus.ApplicationRetried
	}
	switch next {
	case status.Generating:
		return bus.ApplicationGenerating
	case status.Ready:
		return bus.ApplicationReady
	case status.FailedValidation:
		return bus.ApplicationFailedValidation
	case status.PendingReview:
		return bus.ApplicationPendingReview
	case status.Authorized:
		return bus.ApplicationAuthorized
	case status.Submitted:
		return bus.ApplicationSubmitted
	case status.RejectedByHuman:
		return bus.ApplicationRejected
	case status.Expired:
		return bus.ApplicationExpired
	case status.Ambiguous:
		return bus.ApplicationAmbiguous
	}
	return "application." + string(next)
}
