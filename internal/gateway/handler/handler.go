// Package handler implements the REST JSON surface of the gateway. Creation
// endpoints delegate to the orchestrator; read endpoints go straight to the
// stores; streaming endpoints bridge to the poller and the event log.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"urbansim/internal/artifact"
	"urbansim/internal/job"
	"urbansim/internal/project"
	"urbansim/internal/stream"
)

// Service holds the gateway's request-path dependencies.
type Service struct {
	orchestrator *job.Orchestrator
	jobs         job.Store
	projects     project.Store
	eventLog     *stream.Log
	artifacts    artifact.Store
}

func NewService(orchestrator *job.Orchestrator, jobs job.Store, projects project.Store, eventLog *stream.Log, artifacts artifact.Store) *Service {
	return &Service{
		orchestrator: orchestrator,
		jobs:         jobs,
		projects:     projects,
		eventLog:     eventLog,
		artifacts:    artifacts,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response failed: %v", err)
	}
}

// writeError maps the error taxonomy onto HTTP statuses: invalid argument and
// precondition failures are the caller's fault, missing references are 404,
// everything else is a server error.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, job.ErrInvalidArgument), errors.Is(err, job.ErrPrecondition):
		status = http.StatusBadRequest
	case errors.Is(err, job.ErrNotFound), errors.Is(err, project.ErrNotFound), errors.Is(err, artifact.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
