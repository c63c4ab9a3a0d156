// Package job holds the persisted unit of long-running generation work and
// the machinery that advances it: stores, the runner lifecycle, and the
// orchestrator that validates preconditions and launches runners.
package job

import (
	"encoding/json"
	"errors"
	"time"
)

// Kind identifies what a job generates.
type Kind string

const (
	KindSimulation Kind = "simulation"
	KindDebate     Kind = "debate"
	KindReport     Kind = "report"
)

// Status is the job lifecycle state. Transitions are monotonic:
// PENDING -> RUNNING -> (COMPLETED | FAILED), enforced by the stores.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	// ErrNotFound means a referenced project/job identifier does not resolve.
	ErrNotFound = errors.New("job: not found")
	// ErrPrecondition means a dependent job was requested against a
	// prerequisite that does not exist or is not COMPLETED.
	ErrPrecondition = errors.New("job: precondition not met")
	// ErrDuplicateLaunch means a runner was started for a job not in PENDING.
	ErrDuplicateLaunch = errors.New("job: already launched")
	// ErrStatusConflict means a store update was rejected because the job is
	// no longer in the expected state. Terminal states never un-fail.
	ErrStatusConflict = errors.New("job: status transition rejected")
)

// Job is one persisted unit of generation work. Parameters is an opaque blob
// decoded by the kind-specific agent; Result and Metrics are set once terminal.
type Job struct {
	ID           string          `json:"id"`
	Kind         Kind            `json:"kind"`
	Status       Status          `json:"status"`
	ProjectID    string          `json:"projectId,omitempty"`
	AgentID      string          `json:"agentId,omitempty"`
	SimulationID string          `json:"simulationId,omitempty"`
	PolicyDocID  string          `json:"policyDocId,omitempty"`
	City         string          `json:"city,omitempty"`
	Parameters   json.RawMessage `json:"parameters,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	Metrics      json.RawMessage `json:"metrics,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	StartedAt    *time.Time      `json:"startedAt,omitempty"`
	CompletedAt  *time.Time      `json:"completedAt,omitempty"`
}

// Channel is the broadcast channel name for the job: "<kind>:<id>".
// Clients must subscribe with exactly this name to receive the job's events.
func (j *Job) Channel() string {
	return string(j.Kind) + ":" + j.ID
}
