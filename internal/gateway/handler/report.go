package handler

import (
	"fmt"
	"net/http"
	"strings"

	"urbansim/internal/job"
)

// CreateReport handles POST /api/reports. The project must exist; the
// simulation reference is optional and the report degrades without it.
func (s *Service) CreateReport(w http.ResponseWriter, r *http.Request) {
	var req job.ReportRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, fmt.Errorf("%w: %v", job.ErrInvalidArgument, err))
		return
	}
	j, err := s.orchestrator.CreateReport(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, creationResponse(j))
}

// ListReports handles GET /api/reports.
func (s *Service) ListReports(w http.ResponseWriter, r *http.Request) {
	s.listJobs(w, r, job.KindReport)
}

// GetReport handles GET /api/reports/{id}.
func (s *Service) GetReport(w http.ResponseWriter, r *http.Request) {
	s.getJob(w, r, job.KindReport)
}

// CancelReport handles POST /api/reports/{id}/cancel.
func (s *Service) CancelReport(w http.ResponseWriter, r *http.Request) {
	s.cancelJob(w, r, job.KindReport)
}

// StreamReport handles GET /api/reports/{id}/stream (SSE fallback).
func (s *Service) StreamReport(w http.ResponseWriter, r *http.Request) {
	s.streamJob(w, r, r.PathValue("id"), job.KindReport)
}

// ListReportArtifacts handles GET /api/reports/{id}/artifacts: the markdown
// files mirrored to object storage when the report completed.
func (s *Service) ListReportArtifacts(w http.ResponseWriter, r *http.Request) {
	j, err := s.lookupJob(r, job.KindReport)
	if err != nil {
		writeError(w, err)
		return
	}
	paths, err := s.artifacts.List(r.Context(), j.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if paths == nil {
		paths = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobId": j.ID, "artifacts": paths})
}

// GetReportArtifact handles GET /api/reports/{id}/artifacts/{path} and serves
// the section markdown as-is.
func (s *Service) GetReportArtifact(w http.ResponseWriter, r *http.Request) {
	j, err := s.lookupJob(r, job.KindReport)
	if err != nil {
		writeError(w, err)
		return
	}
	path := strings.TrimSpace(r.PathValue("path"))
	content, err := s.artifacts.Get(r.Context(), j.ID, path)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}
