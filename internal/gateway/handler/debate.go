package handler

import (
	"fmt"
	"net/http"

	"urbansim/internal/job"
)

// CreateDebate handles POST /api/debates. The referenced simulation must be
// COMPLETED; anything else is a precondition failure.
func (s *Service) CreateDebate(w http.ResponseWriter, r *http.Request) {
	var req job.DebateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", job.ErrInvalidArgument, err))
		return
	}
	j, err := s.orchestrator.CreateDebate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, creationResponse(j))
}

// ListDebates handles GET /api/debates. The simulationId query narrows the
// listing to debates launched from one simulation.
func (s *Service) ListDebates(w http.ResponseWriter, r *http.Request) {
	if simID := r.URL.Query().Get("simulationId"); simID != "" {
		jobs, err := s.jobs.ListBySimulation(r.Context(), job.KindDebate, simID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
		return
	}
	s.listJobs(w, r, job.KindDebate)
}

// GetDebate handles GET /api/debates/{id}.
func (s *Service) GetDebate(w http.ResponseWriter, r *http.Request) {
	s.getJob(w, r, job.KindDebate)
}

// CancelDebate handles POST /api/debates/{id}/cancel.
func (s *Service) CancelDebate(w http.ResponseWriter, r *http.Request) {
	s.cancelJob(w, r, job.KindDebate)
}
