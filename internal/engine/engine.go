// Package engine drives the pipeline: postings in from the scheduler, filter
// verdicts, document generation under a worker pool, handoff to the review
// gate, and submission once a human authorizes. All state changes go through
// the store's transition API; the engine never mutates status directly.
package engine

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/martagil/canjebot/internal/collector"
	"github.com/martagil/canjebot/internal/config"
	"github.com/martagil/canjebot/internal/filter"
	"github.com/martagil/canjebot/internal/generate"
	"github.com/martagil/canjebot/internal/review"
	"github.com/martagil/canjebot/internal/status"
	"github.com/martagil/canjebot/internal/store"
	"github.com/martagil/canjebot/internal/submit"
)

// retentionInterval is how often terminal rows past retention are purged.
const retentionInterval = 24 * time.Hour

// Store is the slice of the store the engine needs.
type Store interface {
	UpsertJob(ctx context.Context, in store.NewJobInput) (*store.Job, bool, error)
	GetJob(ctx context.Context, id uuid.UUID) (*store.Job, error)
	TransitionJob(ctx context.Context, id uuid.UUID, event status.Event) (*store.Job, error)
	ListJobsByStatus(ctx context.Context, st status.Status, limit int) ([]store.Job, error)

	CreateApplication(ctx context.Context, jobID uuid.UUID, profile, company string) (*store.Application, error)
	GetApplication(ctx context.Context, id uuid.UUID) (*store.Application, error)
	GetApplicationByJob(ctx context.Context, jobID uuid.UUID) (*store.Application, error)
	TransitionApplication(ctx context.Context, id uuid.UUID, event status.Event, upd store.ApplicationUpdate) (*store.Application, error)
	ListApplicationsByStatus(ctx context.Context, st status.Status, limit int) ([]store.Application, error)
	CountRecentApplicationsByCompany(ctx context.Context, company string, since time.Time) (int, error)

	CleanupOld(ctx context.Context, jobRetention, applicationRetention time.Duration) (int64, int64, error)
}

// Engine owns the generation worker pool and the submission hook.
type Engine struct {
	store     Store
	filter    *filter.Filter
	generator generate.Generator
	submitter submit.Submitter
	gate      *review.Gate
	applicant submit.Applicant
	logger    *log.Logger
	cfg       *config.Config

	genQueue chan uuid.UUID
}

// New wires the engine. The gate's post-authorization hook is claimed here.
func New(st Store, f *filter.Filter, gen generate.Generator, sub submit.Submitter,
	gate *review.Gate, applicant submit.Applicant, logger *log.Logger, cfg *config.Config) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	e := &Engine{
		store:     st,
		filter:    f,
		generator: gen,
		submitter: sub,
		gate:      gate,
		applicant: applicant,
		logger:    logger,
		cfg:       cfg,
		genQueue:  make(chan uuid.UUID, 256),
	}
	gate.OnAuthorized(e.submitAuthorized)
	return e
}

// Run recovers in-flight work, then serves the generation queue with a
// bounded worker pool plus the retention sweep until ctx ends.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.recover(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	workers := e.cfg.Generation.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case id := <-e.genQueue:
					e.generateOne(ctx, id)
				}
			}
		})
	}
	g.Go(func() error { return e.retentionLoop(ctx) })
	return g.Wait()
}

// Ingest is the scheduler's sink: every posting gets a verdict and is
// persisted exactly once. Returns how many postings were new.
func (e *Engine) Ingest(ctx context.Context, src config.SourceConfig, postings []collector.RawPosting) (int, error) {
	var newCount int
	for _, p := range postings {
		externalID := p.ExternalID
		if externalID == "" {
			externalID = store.SyntheticExternalID(src.Name, p.Title, p.Company, p.Location)
		}

		verdict := e.filter.Evaluate(filter.Attributes{
			Title:        p.Title,
			Company:      p.Company,
			Description:  p.Description,
			ContractType: p.ContractType,
			SalaryRaw:    p.SalaryRaw,
		})

		in := store.NewJobInput{
			Source:       src.Name,
			ExternalID:   externalID,
			URL:          p.URL,
			Title:        p.Title,
			Company:      p.Company,
			Location:     p.Location,
			SalaryRaw:    p.SalaryRaw,
			ContractType: p.ContractType,
			Description:  p.Description,
			Profile:      src.Profile,
			Status:       status.Qualified,
		}
		if !verdict.Eligible {
			in.Status = status.RejectedByFilter
			in.VerdictReason = verdict.String()
		}

		job, isNew, err := e.store.UpsertJob(ctx, in)
		if err != nil {
			return newCount, err
		}
		if !isNew {
			continue
		}
		newCount++

		if job.Status == status.Qualified {
			e.startApplication(ctx, job)
		}
	}
	return newCount, nil
}

// startApplication creates the job's application and queues generation,
// unless the per-company cap says this company has had enough lately. A
// capped job stays qualified; the recovery sweep picks it up again once the
// window moves on.
func (e *Engine) startApplication(ctx context.Context, job *store.Job) {
	since := time.Now().Add(-time.Duration(e.cfg.CompanyCapDays) * 24 * time.Hour)
	n, err := e.store.CountRecentApplicationsByCompany(ctx, job.Company, since)
	if err != nil {
		e.logger.Printf("engine: company cap check failed job=%s error=%v", job.ID, err)
		return
	}
	if n >= e.cfg.MaxPerCompany {
		e.logger.Printf("engine: company cap reached company=%s job=%s", job.Company, job.ID)
		return
	}

	app, err := e.store.CreateApplication(ctx, job.ID, job.Profile, job.Company)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return
		}
		e.logger.Printf("engine: failed to create application job=%s error=%v", job.ID, err)
		return
	}
	e.enqueue(app.ID)
}

func (e *Engine) enqueue(id uuid.UUID) {
	select {
	case e.genQueue <- id:
	default:
		// Queue full; recovery re-discovers qualified applications.
		e.logger.Printf("engine: generation queue full, deferring application=%s", id)
	}
}

// generateOne moves one application qualified -> generating -> ready ->
// pending_review, or to failed_validation when the document is unusable.
func (e *Engine) generateOne(ctx context.Context, id uuid.UUID) {
	app, err := e.store.TransitionApplication(ctx, id, status.EventStartGeneration, store.ApplicationUpdate{
		TriggeredBy: "engine",
	})
	if err != nil {
		// Already picked up elsewhere or no longer eligible.
		return
	}

	job, err := e.store.GetJob(ctx, app.JobID)
	if err != nil {
		e.logger.Printf("engine: job lookup failed application=%s error=%v", id, err)
		return
	}

	doc, raw, err := e.generator.Generate(ctx, generate.Input{
		Title:       job.Title,
		Company:     job.Company,
		Location:    job.Location,
		Description: job.Description,
		Profile:     job.Profile,
	})
	if err != nil {
		e.logger.Printf("engine: generation failed application=%s error=%v", id, err)
		if _, terr := e.store.TransitionApplication(ctx, id, status.EventGenerationFailed, store.ApplicationUpdate{
			TriggeredBy: "engine",
			Note:        err.Error(),
		}); terr != nil {
			e.logger.Printf("engine: failed to record generation failure application=%s error=%v", id, terr)
		}
		return
	}

	if _, err := e.store.TransitionApplication(ctx, id, status.EventGenerationSucceeded, store.ApplicationUpdate{
		TriggeredBy:  "engine",
		Document:     raw,
		QualityScore: &doc.QualityScore,
	}); err != nil {
		e.logger.Printf("engine: failed to store document application=%s error=%v", id, err)
		return
	}

	e.queueReview(ctx, id)
}

func (e *Engine) queueReview(ctx context.Context, id uuid.UUID) {
	if _, err := e.store.TransitionApplication(ctx, id, status.EventQueueReview, store.ApplicationUpdate{
		TriggeredBy: "engine",
	}); err != nil {
		e.logger.Printf("engine: failed to queue review application=%s error=%v", id, err)
		return
	}
	e.gate.Arm(id)
}

// RetryGeneration is the operator path out of failed_validation.
func (e *Engine) RetryGeneration(ctx context.Context, id uuid.UUID, operator string) error {
	_, err := e.store.TransitionApplication(ctx, id, status.EventRetryGeneration, store.ApplicationUpdate{
		TriggeredBy: operator,
		Note:        "generation retry requested",
	})
	if err != nil {
		return err
	}
	e.enqueue(id)
	return nil
}

// submitAuthorized runs as the gate's post-authorization hook. Submission
// happens exactly once; a failed or unconfirmed attempt parks the
// application as ambiguous for manual follow-up instead of risking a
// double submission.
func (e *Engine) submitAuthorized(id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	app, err := e.store.GetApplication(ctx, id)
	if err != nil {
		e.logger.Printf("engine: submit lookup failed application=%s error=%v", id, err)
		return
	}
	if app.Status != status.Authorized {
		return
	}
	job, err := e.store.GetJob(ctx, app.JobID)
	if err != nil {
		e.logger.Printf("engine: submit job lookup failed application=%s error=%v", id, err)
		return
	}

	outcome, detail, err := e.submitter.Submit(ctx, submit.Request{
		URL:       job.URL,
		Applicant: e.applicant,
		Document:  app.Document,
	})
	if err != nil {
		e.logger.Printf("engine: submission error application=%s outcome=%s error=%v", id, outcome, err)
	}

	event := status.EventAmbiguousSubmission
	note := "no submission confirmation"
	if outcome == submit.Confirmed {
		event = status.EventConfirmSubmission
		note = "confirmation: " + detail
	} else if err != nil {
		note = err.Error()
	}

	if _, terr := e.store.TransitionApplication(ctx, id, event, store.ApplicationUpdate{
		TriggeredBy: "engine",
		Note:        note,
	}); terr != nil {
		e.logger.Printf("engine: failed to record submission application=%s error=%v", id, terr)
	}
}

// recover resumes whatever a previous process left mid-flight.
func (e *Engine) recover(ctx context.Context) error {
	// Qualified jobs that never got an application (crash or company cap).
	jobs, err := e.store.ListJobsByStatus(ctx, status.Qualified, 0)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if _, err := e.store.GetApplicationByJob(ctx, job.ID); errors.Is(err, store.ErrNotFound) {
			job := job
			e.startApplication(ctx, &job)
		}
	}

	// Applications waiting for or abandoned during generation.
	for _, st := range []status.Status{status.Qualified, status.Generating} {
		apps, err := e.store.ListApplicationsByStatus(ctx, st, 0)
		if err != nil {
			return err
		}
		for _, app := range apps {
			if st == status.Generating {
				// The document never landed; send it back through.
				if _, err := e.store.TransitionApplication(ctx, app.ID, status.EventGenerationFailed, store.ApplicationUpdate{
					TriggeredBy: "engine",
					Note:        "generation interrupted by restart",
				}); err != nil {
					continue
				}
				if _, err := e.store.TransitionApplication(ctx, app.ID, status.EventRetryGeneration, store.ApplicationUpdate{
					TriggeredBy: "engine",
					Note:        "resumed after restart",
				}); err != nil {
					continue
				}
			}
			e.enqueue(app.ID)
		}
	}

	// Documents that were ready but never queued.
	ready, err := e.store.ListApplicationsByStatus(ctx, status.Ready, 0)
	if err != nil {
		return err
	}
	for _, app := range ready {
		e.queueReview(ctx, app.ID)
	}

	// Tickets still waiting on a human keep their original deadline.
	pending, err := e.store.ListApplicationsByStatus(ctx, status.PendingReview, 0)
	if err != nil {
		return err
	}
	for _, app := range pending {
		e.gate.Rearm(app.ID, app.UpdatedAt)
	}

	// Authorized but never submitted.
	authorized, err := e.store.ListApplicationsByStatus(ctx, status.Authorized, 0)
	if err != nil {
		return err
	}
	for _, app := range authorized {
		e.submitAuthorized(app.ID)
	}
	return nil
}

func (e *Engine) retentionLoop(ctx context.Context) error {
	ticker := time.NewTicker(retentionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			jobs, apps, err := e.store.CleanupOld(ctx,
				time.Duration(e.cfg.JobRetentionDays)*24*time.Hour,
				time.Duration(e.cfg.ApplicationRetentionDays)*24*time.Hour)
			if err != nil {
				e.logger.Printf("engine: retention sweep failed error=%v", err)
				continue
			}
			if jobs > 0 || apps > 0 {
				e.logger.Printf("engine: retention sweep jobs_deleted=%d applications_deleted=%d", jobs, apps)
			}
		}
	}
}
