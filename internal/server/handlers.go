package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/martagil/canjebot/internal/review"
	"github.com/martagil/canjebot/internal/status"
	"github.com/martagil/canjebot/internal/store"
)

func parseQueryInt(r *http.Request, key string, defaultValue, maxValue int) int {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val < 0 {
		return defaultValue
	}
	if maxValue > 0 && val > maxValue {
		return maxValue
	}
	return val
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid application ID")
		return uuid.Nil, false
	}
	return id, true
}

// decision is the body of authorize/reject/retry requests.
type decision struct {
	Operator string `json:"operator"`
	Reason   string `json:"reason,omitempty"`
}

func (s *Server) readDecision(w http.ResponseWriter, r *http.Request) (decision, bool) {
	var d decision
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return d, false
	}
	if d.Operator == "" {
		s.errorResponse(w, http.StatusBadRequest, "operator is required")
		return d, false
	}
	return d, true
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	st := status.Status(r.URL.Query().Get("status"))
	if st == "" {
		st = status.Qualified
	}
	if !status.Valid(st) {
		s.errorResponse(w, http.StatusBadRequest, "unknown status")
		return
	}
	limit := parseQueryInt(r, "limit", 50, 200)

	jobs, err := s.store.ListJobsByStatus(r.Context(), st, limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "database error: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"jobs": jobs, "status": st})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	jobCounts, err := s.store.CountJobsByStatus(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "database error: "+err.Error())
		return
	}
	appCounts, err := s.store.CountApplicationsByStatus(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "database error: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"jobs":         jobCounts,
		"applications": appCounts,
	})
}

func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	st := status.Status(r.URL.Query().Get("status"))
	if st == "" {
		st = status.PendingReview
	}
	if !status.Valid(st) {
		s.errorResponse(w, http.StatusBadRequest, "unknown status")
		return
	}
	limit := parseQueryInt(r, "limit", 50, 200)

	apps, err := s.store.ListApplicationsByStatus(r.Context(), st, limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "database error: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"applications": apps, "status": st})
}

// handleListPending includes each ticket's review deadline so the UI can
// show the countdown.
func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	apps, err := s.store.ListApplicationsByStatus(r.Context(), status.PendingReview, 0)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "database error: "+err.Error())
		return
	}

	deadlines := s.gate.Pending()
	type pendingItem struct {
		store.Application
		ReviewDeadline string `json:"review_deadline,omitempty"`
	}
	items := make([]pendingItem, 0, len(apps))
	for _, app := range apps {
		item := pendingItem{Application: app}
		if dl, ok := deadlines[app.ID]; ok {
			item.ReviewDeadline = dl.UTC().Format("2006-01-02T15:04:05Z07:00")
		}
		items = append(items, item)
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"applications": items})
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	app, err := s.store.GetApplication(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.errorResponse(w, http.StatusNotFound, "application not found")
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, "database error: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, app)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	records, err := s.store.ListTransitions(r.Context(), id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "database error: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"events": records})
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	d, ok := s.readDecision(w, r)
	if !ok {
		return
	}

	err := s.gate.Authorize(r.Context(), id, d.Operator)
	switch {
	case err == nil:
		s.jsonResponse(w, http.StatusOK, map[string]string{"result": "authorized"})
	case errors.Is(err, review.ErrExpired):
		s.errorResponse(w, http.StatusGone, "review window expired")
	case errors.Is(err, review.ErrNotPending):
		s.errorResponse(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrNotFound):
		s.errorResponse(w, http.StatusNotFound, "application not found")
	default:
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	d, ok := s.readDecision(w, r)
	if !ok {
		return
	}

	err := s.gate.Reject(r.Context(), id, d.Operator, d.Reason)
	switch {
	case err == nil:
		s.jsonResponse(w, http.StatusOK, map[string]string{"result": "rejected"})
	case errors.Is(err, review.ErrExpired):
		s.errorResponse(w, http.StatusGone, "review window expired")
	case errors.Is(err, review.ErrNotPending):
		s.errorResponse(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrNotFound):
		s.errorResponse(w, http.StatusNotFound, "application not found")
	default:
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	d, ok := s.readDecision(w, r)
	if !ok {
		return
	}

	err := s.retrier.RetryGeneration(r.Context(), id, d.Operator)
	switch {
	case err == nil:
		s.jsonResponse(w, http.StatusOK, map[string]string{"result": "retrying"})
	case errors.Is(err, status.ErrIllegalTransition):
		s.errorResponse(w, http.StatusConflict, "application did not fail validation")
	case errors.Is(err, store.ErrNotFound):
		s.errorResponse(w, http.StatusNotFound, "application not found")
	default:
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListSources(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "database error: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"sources": sources})
}

// handleEnableSource is the operator override after a circuit-breaker trip.
func (s *Server) handleEnableSource(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	src, err := s.store.EnableSource(r.Context(), name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.errorResponse(w, http.StatusNotFound, "source not found")
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, "database error: "+err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, src)
}
