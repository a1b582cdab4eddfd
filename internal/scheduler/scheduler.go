// Package scheduler paces collection runs across sources. Each source gets a
// randomized delay between runs so traffic to any one board never falls into
// a fixed rhythm, and a circuit breaker disables sources that stop yielding
// new postings.
package scheduler

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/martagil/canjebot/internal/bus"
	"github.com/martagil/canjebot/internal/collector"
	"github.com/martagil/canjebot/internal/config"
	"github.com/martagil/canjebot/internal/store"
)

// tick is the granularity at which due times are checked. Delays are seconds
// to minutes, so one second is plenty.
const tick = time.Second

// maxBackoffFactor caps how far repeated failures can stretch a source's
// delay beyond its configured maximum.
const maxBackoffFactor = 10

// SourceStore is the slice of the store the scheduler needs.
type SourceStore interface {
	ListSources(ctx context.Context) ([]store.SourceState, error)
	RecordSourceRun(ctx context.Context, name, outcome string, ranAt time.Time, nextDelay time.Duration) (*store.SourceState, error)
	DisableSource(ctx context.Context, name, reason string) (*store.SourceState, error)
}

// Ingest consumes one run's postings and reports how many were new. The
// scheduler treats a run with zero new postings as empty.
type Ingest func(ctx context.Context, src config.SourceConfig, postings []collector.RawPosting) (newCount int, err error)

// Scheduler owns the run loop. One goroutine per due source; a source never
// has two runs in flight at once.
type Scheduler struct {
	store     SourceStore
	bus       *bus.Bus
	logger    *log.Logger
	ingest    Ingest
	threshold int

	sources    map[string]config.SourceConfig
	collectors map[string]collector.Collector

	mu       sync.Mutex
	inFlight map[string]bool
	rng      *rand.Rand
}

// New wires a scheduler over the configured sources. Collectors are built
// once per source; an unknown kind fails construction rather than at run
// time.
func New(st SourceStore, notifier *bus.Bus, logger *log.Logger, cfg *config.Config, ingest Ingest) (*Scheduler, error) {
	if logger == nil {
		logger = log.Default()
	}

	s := &Scheduler{
		store:      st,
		bus:        notifier,
		logger:     logger,
		ingest:     ingest,
		threshold:  cfg.CircuitBreakerThreshold,
		sources:    make(map[string]config.SourceConfig, len(cfg.Sources)),
		collectors: make(map[string]collector.Collector, len(cfg.Sources)),
		inFlight:   make(map[string]bool),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, src := range cfg.Sources {
		c, err := collector.New(src.Kind, src.Name, src.URL)
		if err != nil {
			return nil, err
		}
		s.sources[src.Name] = src
		s.collectors[src.Name] = c
	}
	return s, nil
}

// SetCollector swaps the adapter for one source. Used by tests.
func (s *Scheduler) SetCollector(name string, c collector.Collector) {
	s.collectors[name] = c
}

// Run ticks until the context is canceled, launching collection for every
// due source.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if err := s.RunDue(ctx, now); err != nil {
				s.logger.Printf("scheduler: cycle failed error=%v", err)
			}
		}
	}
}

// RunDue collects from every enabled source whose delay has elapsed, waiting
// for all launched runs to finish before returning. Sources already running
// from an earlier cycle are skipped.
func (s *Scheduler) RunDue(ctx context.Context, now time.Time) error {
	states, err := s.store.ListSources(ctx)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, state := range states {
		cfg, ok := s.sources[state.Name]
		if !ok || !state.Enabled || !s.due(state, now) {
			continue
		}
		if !s.markInFlight(state.Name) {
			continue
		}
		wg.Add(1)
		go func(cfg config.SourceConfig, state store.SourceState) {
			defer wg.Done()
			defer s.clearInFlight(cfg.Name)
			s.runSource(ctx, cfg, state, now)
		}(cfg, state)
	}
	wg.Wait()
	return nil
}

// due reports whether the source's randomized delay has elapsed. A source
// that has never run is due immediately.
func (s *Scheduler) due(state store.SourceState, now time.Time) bool {
	if state.LastRunAt == nil {
		return true
	}
	return !now.Before(state.LastRunAt.Add(state.NextDelay))
}

func (s *Scheduler) markInFlight(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[name] {
		return false
	}
	s.inFlight[name] = true
	return true
}

func (s *Scheduler) clearInFlight(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, name)
}

func (s *Scheduler) runSource(ctx context.Context, cfg config.SourceConfig, state store.SourceState, now time.Time) {
	postings, err := s.collectors[cfg.Name].Collect(ctx)
	if err != nil {
		s.recordFailure(ctx, cfg, state, now, err)
		return
	}

	newCount, err := s.ingest(ctx, cfg, postings)
	if err != nil {
		s.recordFailure(ctx, cfg, state, now, err)
		return
	}

	outcome := store.OutcomeOK
	if newCount == 0 {
		outcome = store.OutcomeEmpty
	}
	delay := s.drawDelay(cfg)
	updated, err := s.store.RecordSourceRun(ctx, cfg.Name, outcome, now, delay)
	if err != nil {
		s.logger.Printf("scheduler: failed to record run source=%s error=%v", cfg.Name, err)
		return
	}
	s.logger.Printf("scheduler: run completed source=%s postings=%d new=%d next_delay=%s",
		cfg.Name, len(postings), newCount, delay)
	s.publish(bus.Event{Name: bus.SourceRunCompleted, EntityID: cfg.Name, Detail: outcome})

	// Failures never feed the breaker; only a streak of genuinely empty
	// runs does.
	if outcome == store.OutcomeEmpty && updated.ConsecutiveEmpty >= s.threshold {
		reason := "circuit breaker: no new postings in consecutive runs"
		if _, err := s.store.DisableSource(ctx, cfg.Name, reason); err != nil {
			s.logger.Printf("scheduler: failed to disable source=%s error=%v", cfg.Name, err)
			return
		}
		s.logger.Printf("scheduler: circuit opened source=%s empty_runs=%d", cfg.Name, updated.ConsecutiveEmpty)
	}
}

func (s *Scheduler) recordFailure(ctx context.Context, cfg config.SourceConfig, state store.SourceState, now time.Time, cause error) {
	delay := s.backoffDelay(cfg, state)
	if _, err := s.store.RecordSourceRun(ctx, cfg.Name, store.OutcomeFailed, now, delay); err != nil {
		s.logger.Printf("scheduler: failed to record failure source=%s error=%v", cfg.Name, err)
		return
	}
	s.logger.Printf("scheduler: run failed source=%s next_delay=%s error=%v", cfg.Name, delay, cause)
	s.publish(bus.Event{Name: bus.SourceRunFailed, EntityID: cfg.Name, Detail: cause.Error()})
}

// drawDelay picks the next delay uniformly from the source's configured
// range.
func (s *Scheduler) drawDelay(cfg config.SourceConfig) time.Duration {
	min, max := cfg.MinDelay.Std(), cfg.MaxDelay.Std()
	if max <= min {
		return min
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return min + time.Duration(s.rng.Int63n(int64(max-min)+1))
}

// backoffDelay stretches the previous delay by the source's multiplier,
// capped so a flapping board cannot push itself out of rotation entirely.
func (s *Scheduler) backoffDelay(cfg config.SourceConfig, state store.SourceState) time.Duration {
	base := state.NextDelay
	if base <= 0 {
		base = cfg.MinDelay.Std()
	}
	mult := cfg.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	delay := time.Duration(float64(base) * mult)
	limit := time.Duration(maxBackoffFactor * float64(cfg.MaxDelay.Std()))
	if limit > 0 && delay > limit {
		delay = limit
	}
	return delay
}

func (s *Scheduler) publish(e bus.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}
