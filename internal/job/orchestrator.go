package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"urbansim/internal/stream"
)

// ErrInvalidArgument means a creation request is missing a required field.
var ErrInvalidArgument = errors.New("job: invalid argument")

// ProjectChecker answers whether a project identifier resolves. Satisfied by
// the project store.
type ProjectChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// SimulationRequest creates a simulation job. Parameters carries the
// time-horizon / focus-area blob the simulation agent decodes.
type SimulationRequest struct {
	ProjectID   string          `json:"projectId"`
	AgentID     string          `json:"agentId"`
	City        string          `json:"city"`
	PolicyDocID string          `json:"policyDocId,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// DebateRequest creates a debate job against a completed simulation.
type DebateRequest struct {
	SimulationID string `json:"simulationId"`
	AgentID      string `json:"agentId"`
	Rounds       int    `json:"rounds"`
}

// ReportRequest creates a report job. The simulation reference is optional;
// report generation degrades gracefully without it.
type ReportRequest struct {
	ProjectID    string   `json:"projectId"`
	SimulationID string   `json:"simulationId,omitempty"`
	Title        string   `json:"title"`
	Sections     []string `json:"sections,omitempty"`
}

// Orchestrator validates preconditions, creates job records, and launches
// runners. Launch is fire-and-forget from the caller's perspective, but every
// in-flight run is tracked so failures are logged exactly once and shutdown
// can drain before exiting.
type Orchestrator struct {
	store    Store
	pub      Publisher
	projects ProjectChecker
	runs     map[Kind]RunFunc

	wg       sync.WaitGroup
	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewOrchestrator(store Store, pub Publisher, projects ProjectChecker, runs map[Kind]RunFunc) *Orchestrator {
	return &Orchestrator{
		store:    store,
		pub:      pub,
		projects: projects,
		runs:     runs,
		inflight: make(map[string]struct{}),
	}
}

// CreateSimulation is always allowed: a simulation has no prerequisite job.
func (o *Orchestrator) CreateSimulation(ctx context.Context, req SimulationRequest) (*Job, error) {
	if strings.TrimSpace(req.ProjectID) == "" {
		return nil, fmt.Errorf("%w: projectId is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(req.City) == "" {
		return nil, fmt.Errorf("%w: city is required", ErrInvalidArgument)
	}

	j := &Job{
		ID:          uuid.NewString(),
		Kind:        KindSimulation,
		Status:      StatusPending,
		ProjectID:   strings.TrimSpace(req.ProjectID),
		AgentID:     strings.TrimSpace(req.AgentID),
		PolicyDocID: strings.TrimSpace(req.PolicyDocID),
		City:        strings.TrimSpace(req.City),
		Parameters:  req.Parameters,
		CreatedAt:   time.Now().UTC(),
	}
	return o.createAndLaunch(ctx, j)
}

// CreateDebate requires the referenced simulation to exist and be COMPLETED.
func (o *Orchestrator) CreateDebate(ctx context.Context, req DebateRequest) (*Job, error) {
	simID := strings.TrimSpace(req.SimulationID)
	if simID == "" {
		return nil, fmt.Errorf("%w: simulationId is required", ErrInvalidArgument)
	}

	sim, err := o.store.Get(ctx, simID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: simulation %s does not exist", ErrPrecondition, simID)
		}
		return nil, err
	}
	if sim.Kind != KindSimulation {
		return nil, fmt.Errorf("%w: job %s is not a simulation", ErrPrecondition, simID)
	}
	if sim.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: simulation %s is %s, not COMPLETED", ErrPrecondition, simID, sim.Status)
	}

	rounds := req.Rounds
	if rounds <= 0 {
		rounds = 3
	}
	params, _ := json.Marshal(map[string]int{"rounds": rounds})

	j := &Job{
		ID:           uuid.NewString(),
		Kind:         KindDebate,
		Status:       StatusPending,
		ProjectID:    sim.ProjectID,
		AgentID:      strings.TrimSpace(req.AgentID),
		SimulationID: simID,
		City:         sim.City,
		Parameters:   params,
		CreatedAt:    time.Now().UTC(),
	}
	return o.createAndLaunch(ctx, j)
}

// CreateReport requires the project to exist. A missing or incomplete
// simulation is not a precondition failure; the aggregator degrades to
// "no simulation data available".
func (o *Orchestrator) CreateReport(ctx context.Context, req ReportRequest) (*Job, error) {
	projectID := strings.TrimSpace(req.ProjectID)
	if projectID == "" {
		return nil, fmt.Errorf("%w: projectId is required", ErrInvalidArgument)
	}
	if o.projects != nil {
		ok, err := o.projects.Exists(ctx, projectID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: project %s", ErrNotFound, projectID)
		}
	}

	params, _ := json.Marshal(map[string]any{
		"title":    strings.TrimSpace(req.Title),
		"sections": req.Sections,
	})

	j := &Job{
		ID:           uuid.NewString(),
		Kind:         KindReport,
		Status:       StatusPending,
		ProjectID:    projectID,
		SimulationID: strings.TrimSpace(req.SimulationID),
		Parameters:   params,
		CreatedAt:    time.Now().UTC(),
	}
	return o.createAndLaunch(ctx, j)
}

// Cancel forces a non-terminal job to FAILED. An in-flight generator call is
// not interrupted; its late result is discarded by the store's terminal-state
// guard. Canceling an already-terminal job is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (*Job, error) {
	err := o.store.Fail(ctx, id, time.Now().UTC())
	if err != nil && !errors.Is(err, ErrStatusConflict) {
		return nil, err
	}
	j, getErr := o.store.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if err == nil {
		o.pub.Publish(j.Channel(), stream.NewEvent(stream.EventError, string(j.Kind),
			stream.ErrorPayload{Error: "canceled by request"}))
	}
	return j, nil
}

func (o *Orchestrator) createAndLaunch(ctx context.Context, j *Job) (*Job, error) {
	run, ok := o.runs[j.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: no runner for kind %s", ErrInvalidArgument, j.Kind)
	}
	if err := o.store.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("create %s job: %w", j.Kind, err)
	}
	o.launch(j.ID, NewRunner(o.store, o.pub, run))
	return j, nil
}

// launch runs the job in the background. Failures after this point are only
// observable via the persisted FAILED status and the channel's error event;
// they must never reach the request path that created the job.
func (o *Orchestrator) launch(jobID string, runner *Runner) {
	o.mu.Lock()
	o.inflight[jobID] = struct{}{}
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.inflight, jobID)
			o.mu.Unlock()
		}()
		if err := runner.Execute(context.Background(), jobID); err != nil {
			log.Printf("job %s run failed: %v", jobID, err)
		}
	}()
}

// InFlight reports the number of currently running jobs.
func (o *Orchestrator) InFlight() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inflight)
}

// Drain waits for in-flight jobs to finish or the context to expire.
func (o *Orchestrator) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
