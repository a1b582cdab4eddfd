// Package server exposes the review API: operators inspect pending
// applications, authorize or reject them, and watch pipeline events live
// over SSE or WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/martagil/canjebot/internal/bus"
	"github.com/martagil/canjebot/internal/review"
	"github.com/martagil/canjebot/internal/status"
	"github.com/martagil/canjebot/internal/store"
)

// Store is the read-and-operate slice of the store the API needs.
type Store interface {
	ListJobsByStatus(ctx context.Context, st status.Status, limit int) ([]store.Job, error)
	CountJobsByStatus(ctx context.Context) (map[status.Status]int, error)
	GetApplication(ctx context.Context, id uuid.UUID) (*store.Application, error)
	ListApplicationsByStatus(ctx context.Context, st status.Status, limit int) ([]store.Application, error)
	CountApplicationsByStatus(ctx context.Context) (map[status.Status]int, error)
	ListTransitions(ctx context.Context, applicationID uuid.UUID) ([]store.TransitionRecord, error)
	ListSources(ctx context.Context) ([]store.SourceState, error)
	EnableSource(ctx context.Context, name string) (*store.SourceState, error)
}

// Retrier re-runs generation for an application that failed validation.
type Retrier interface {
	RetryGeneration(ctx context.Context, id uuid.UUID, operator string) error
}

// Server is the HTTP front end.
type Server struct {
	httpServer *http.Server
	store      Store
	gate       *review.Gate
	retrier    Retrier
	bus        *bus.Bus
	logger     *log.Logger
}

// New assembles the server. The bus powers the live event endpoints; nil
// disables them.
func New(port int, st Store, gate *review.Gate, retrier Retrier, notifier *bus.Bus, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{store: st, gate: gate, retrier: retrier, bus: notifier, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	mux.HandleFunc("GET /api/applications", s.handleListApplications)
	mux.HandleFunc("GET /api/applications/pending", s.handleListPending)
	mux.HandleFunc("GET /api/applications/{id}", s.handleGetApplication)
	mux.HandleFunc("GET /api/applications/{id}/events", s.handleListEvents)
	mux.HandleFunc("POST /api/applications/{id}/authorize", s.handleAuthorize)
	mux.HandleFunc("POST /api/applications/{id}/reject", s.handleReject)
	mux.HandleFunc("POST /api/applications/{id}/retry", s.handleRetry)

	mux.HandleFunc("GET /api/sources", s.handleListSources)
	mux.HandleFunc("POST /api/sources/{name}/enable", s.handleEnableSource)

	mux.HandleFunc("GET /api/events", s.handleEventStream)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.withLogging(s.withCORS(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // event streams stay open
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler exposes the routed handler. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("server: listening addr=%s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Printf("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Printf("server: %s %s duration=%v", r.Method, r.URL.Path, time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) jsonResponse(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Printf("server: failed to encode response error=%v", err)
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	s.jsonResponse(w, code, map[string]string{"error": message})
}
