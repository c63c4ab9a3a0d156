package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"urbansim/internal/job"
)

// CreateSimulation handles POST /api/simulations. The job record is returned
// immediately with status PENDING; progress arrives on the broadcast channel.
func (s *Service) CreateSimulation(w http.ResponseWriter, r *http.Request) {
	var req job.SimulationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", job.ErrInvalidArgument, err))
		return
	}
	j, err := s.orchestrator.CreateSimulation(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, creationResponse(j))
}

// ListSimulations handles GET /api/simulations.
func (s *Service) ListSimulations(w http.ResponseWriter, r *http.Request) {
	s.listJobs(w, r, job.KindSimulation)
}

// GetSimulation handles GET /api/simulations/{id}.
func (s *Service) GetSimulation(w http.ResponseWriter, r *http.Request) {
	s.getJob(w, r, job.KindSimulation)
}

// GetSimulationMetrics handles GET /api/simulations/{id}/metrics. Metrics only
// exist once the simulation completes; before that the projections are null.
func (s *Service) GetSimulationMetrics(w http.ResponseWriter, r *http.Request) {
	j, err := s.lookupJob(r, job.KindSimulation)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"jobId":   j.ID,
		"status":  j.Status,
		"metrics": rawOrNull(j.Metrics),
	})
}

// CancelSimulation handles POST /api/simulations/{id}/cancel.
func (s *Service) CancelSimulation(w http.ResponseWriter, r *http.Request) {
	s.cancelJob(w, r, job.KindSimulation)
}

// StreamSimulation handles GET /api/simulations/{id}/stream (SSE fallback).
func (s *Service) StreamSimulation(w http.ResponseWriter, r *http.Request) {
	s.streamJob(w, r, r.PathValue("id"), job.KindSimulation)
}

func (s *Service) listJobs(w http.ResponseWriter, r *http.Request, kind job.Kind) {
	jobs, err := s.jobs.List(r.Context(), kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Service) getJob(w http.ResponseWriter, r *http.Request, kind job.Kind) {
	j, err := s.lookupJob(r, kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Service) cancelJob(w http.ResponseWriter, r *http.Request, kind job.Kind) {
	if _, err := s.lookupJob(r, kind); err != nil {
		writeError(w, err)
		return
	}
	j, err := s.orchestrator.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// lookupJob fetches the path's job and hides kind mismatches behind 404 so a
// debate id cannot be read through the simulation routes.
func (s *Service) lookupJob(r *http.Request, kind job.Kind) (*job.Job, error) {
	id := r.PathValue("id")
	j, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if j.Kind != kind {
		return nil, fmt.Errorf("%w: job %s", job.ErrNotFound, id)
	}
	return j, nil
}

// creationResponse is the POST response shape: the job plus the channel name
// the client must subscribe to for live events.
func creationResponse(j *job.Job) map[string]any {
	return map[string]any{
		"job":     j,
		"channel": j.Channel(),
	}
}

func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
