package job

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

type fakeProjects struct {
	known map[string]bool
}

func (f *fakeProjects) Exists(_ context.Context, id string) (bool, error) {
	return f.known[id], nil
}

func instantRun(result string) RunFunc {
	return func(_ context.Context, _ *Job, _ Emitter) (json.RawMessage, json.RawMessage, error) {
		return json.RawMessage(result), nil, nil
	}
}

func newTestOrchestrator(store Store, runs map[Kind]RunFunc) *Orchestrator {
	return NewOrchestrator(store, &capturePublisher{}, &fakeProjects{known: map[string]bool{"p1": true}}, runs)
}

func drain(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := o.Drain(ctx); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
}

func TestCreateSimulationValidatesInput(t *testing.T) {
	o := newTestOrchestrator(NewMemoryStore(), map[Kind]RunFunc{KindSimulation: instantRun(`{}`)})

	if _, err := o.CreateSimulation(context.Background(), SimulationRequest{City: "portland"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("missing projectId error = %v, want ErrInvalidArgument", err)
	}
	if _, err := o.CreateSimulation(context.Background(), SimulationRequest{ProjectID: "p1"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("missing city error = %v, want ErrInvalidArgument", err)
	}
}

func TestCreateSimulationRunsToCompletion(t *testing.T) {
	store := NewMemoryStore()
	o := newTestOrchestrator(store, map[Kind]RunFunc{KindSimulation: instantRun(`{"analysis":"done"}`)})

	j, err := o.CreateSimulation(context.Background(), SimulationRequest{ProjectID: "p1", City: "portland"})
	if err != nil {
		t.Fatalf("CreateSimulation() error = %v", err)
	}
	if j.Status != StatusPending {
		t.Fatalf("created status = %s, want PENDING", j.Status)
	}
	if j.Channel() != "simulation:"+j.ID {
		t.Fatalf("Channel() = %q", j.Channel())
	}

	drain(t, o)

	got, err := store.Get(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status after drain = %s, want COMPLETED", got.Status)
	}
}

func TestCreateDebateRequiresCompletedSimulation(t *testing.T) {
	store := NewMemoryStore()
	o := newTestOrchestrator(store, map[Kind]RunFunc{KindDebate: instantRun(`{}`)})
	ctx := context.Background()

	// Missing simulation.
	if _, err := o.CreateDebate(ctx, DebateRequest{SimulationID: "missing"}); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("missing simulation error = %v, want ErrPrecondition", err)
	}

	// Simulation exists but is still RUNNING.
	sim := &Job{ID: "sim-1", Kind: KindSimulation, Status: StatusPending, ProjectID: "p1", City: "portland", CreatedAt: time.Now().UTC()}
	if err := store.Create(ctx, sim); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.MarkRunning(ctx, sim.ID, time.Now().UTC()); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if _, err := o.CreateDebate(ctx, DebateRequest{SimulationID: "sim-1"}); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("running simulation error = %v, want ErrPrecondition", err)
	}

	// A non-simulation job cannot seed a debate.
	other := &Job{ID: "rep-1", Kind: KindReport, Status: StatusCompleted, ProjectID: "p1", CreatedAt: time.Now().UTC()}
	if err := store.Create(ctx, other); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := o.CreateDebate(ctx, DebateRequest{SimulationID: "rep-1"}); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("wrong kind error = %v, want ErrPrecondition", err)
	}
}

func TestCreateDebateInheritsSimulationContext(t *testing.T) {
	store := NewMemoryStore()
	o := newTestOrchestrator(store, map[Kind]RunFunc{KindDebate: instantRun(`{}`)})
	ctx := context.Background()

	sim := &Job{ID: "sim-1", Kind: KindSimulation, Status: StatusPending, ProjectID: "p1", City: "portland", CreatedAt: time.Now().UTC()}
	if err := store.Create(ctx, sim); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.MarkRunning(ctx, sim.ID, time.Now().UTC()); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if err := store.Complete(ctx, sim.ID, json.RawMessage(`{}`), nil, time.Now().UTC()); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	j, err := o.CreateDebate(ctx, DebateRequest{SimulationID: "sim-1"})
	if err != nil {
		t.Fatalf("CreateDebate() error = %v", err)
	}
	if j.ProjectID != "p1" || j.City != "portland" || j.SimulationID != "sim-1" {
		t.Fatalf("debate context = %+v", j)
	}
	var params struct {
		Rounds int `json:"rounds"`
	}
	if err := json.Unmarshal(j.Parameters, &params); err != nil {
		t.Fatalf("unmarshal parameters: %v", err)
	}
	if params.Rounds != 3 {
		t.Fatalf("default rounds = %d, want 3", params.Rounds)
	}
	drain(t, o)
}

func TestCreateReportRequiresExistingProject(t *testing.T) {
	o := newTestOrchestrator(NewMemoryStore(), map[Kind]RunFunc{KindReport: instantRun(`{}`)})

	if _, err := o.CreateReport(context.Background(), ReportRequest{ProjectID: "unknown"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown project error = %v, want ErrNotFound", err)
	}
	if _, err := o.CreateReport(context.Background(), ReportRequest{}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("missing projectId error = %v, want ErrInvalidArgument", err)
	}
}

func TestCreateReportAllowsMissingSimulation(t *testing.T) {
	o := newTestOrchestrator(NewMemoryStore(), map[Kind]RunFunc{KindReport: instantRun(`{}`)})

	j, err := o.CreateReport(context.Background(), ReportRequest{ProjectID: "p1", Title: "Q3 impact"})
	if err != nil {
		t.Fatalf("CreateReport() error = %v", err)
	}
	if j.Kind != KindReport {
		t.Fatalf("kind = %s, want report", j.Kind)
	}
	drain(t, o)
}

func TestCancelForcesFailedAndIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	started := make(chan struct{})
	release := make(chan struct{})
	blockingRun := func(_ context.Context, _ *Job, _ Emitter) (json.RawMessage, json.RawMessage, error) {
		close(started)
		<-release
		return json.RawMessage(`{}`), nil, nil
	}
	o := newTestOrchestrator(store, map[Kind]RunFunc{KindSimulation: blockingRun})

	j, err := o.CreateSimulation(context.Background(), SimulationRequest{ProjectID: "p1", City: "portland"})
	if err != nil {
		t.Fatalf("CreateSimulation() error = %v", err)
	}
	<-started

	canceled, err := o.Cancel(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if canceled.Status != StatusFailed {
		t.Fatalf("status after cancel = %s, want FAILED", canceled.Status)
	}

	// Canceling again is a no-op, not an error.
	again, err := o.Cancel(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("Cancel() again error = %v", err)
	}
	if again.Status != StatusFailed {
		t.Fatalf("status after second cancel = %s, want FAILED", again.Status)
	}

	// Let the blocked run finish; its late result must be discarded.
	close(release)
	drain(t, o)
	got, _ := store.Get(context.Background(), j.ID)
	if got.Status != StatusFailed {
		t.Fatalf("status after drain = %s, want FAILED", got.Status)
	}
	if len(got.Result) != 0 {
		t.Fatalf("late result persisted: %s", got.Result)
	}
}

func TestCancelUnknownJob(t *testing.T) {
	o := newTestOrchestrator(NewMemoryStore(), nil)
	if _, err := o.Cancel(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Cancel() error = %v, want ErrNotFound", err)
	}
}

func TestInFlightTracksRunningJobs(t *testing.T) {
	store := NewMemoryStore()
	started := make(chan struct{})
	release := make(chan struct{})
	blockingRun := func(_ context.Context, _ *Job, _ Emitter) (json.RawMessage, json.RawMessage, error) {
		close(started)
		<-release
		return json.RawMessage(`{}`), nil, nil
	}
	o := newTestOrchestrator(store, map[Kind]RunFunc{KindSimulation: blockingRun})

	if _, err := o.CreateSimulation(context.Background(), SimulationRequest{ProjectID: "p1", City: "portland"}); err != nil {
		t.Fatalf("CreateSimulation() error = %v", err)
	}
	<-started
	if got := o.InFlight(); got != 1 {
		t.Fatalf("InFlight() = %d, want 1", got)
	}

	close(release)
	drain(t, o)
	if got := o.InFlight(); got != 0 {
		t.Fatalf("InFlight() after drain = %d, want 0", got)
	}
}
