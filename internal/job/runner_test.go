package job

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"urbansim/internal/stream"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	channel string
	event   stream.Event
}

func (p *capturePublisher) Publish(channel string, evt stream.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{channel: channel, event: evt})
}

func (p *capturePublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.event.Kind)
	}
	return out
}

func newPendingJob(t *testing.T, store Store, kind Kind) *Job {
	t.Helper()
	j := &Job{
		ID:        "job-1",
		Kind:      kind,
		Status:    StatusPending,
		ProjectID: "p1",
		City:      "san francisco",
		CreatedAt: time.Now().UTC(),
	}
	if err := store.Create(context.Background(), j); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return j
}

func TestRunnerExecuteHappyPath(t *testing.T) {
	store := NewMemoryStore()
	pub := &capturePublisher{}
	newPendingJob(t, store, KindSimulation)

	run := func(_ context.Context, _ *Job, emit Emitter) (json.RawMessage, json.RawMessage, error) {
		emit.Progress("working", 50)
		return json.RawMessage(`{"analysis":"ok"}`), json.RawMessage(`{"m":1}`), nil
	}

	if err := NewRunner(store, pub, run).Execute(context.Background(), "job-1"); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	j, err := store.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if j.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", j.Status)
	}
	if string(j.Result) != `{"analysis":"ok"}` {
		t.Fatalf("result = %s", j.Result)
	}
	if j.StartedAt == nil || j.CompletedAt == nil {
		t.Fatalf("timestamps not set: started=%v completed=%v", j.StartedAt, j.CompletedAt)
	}

	want := []string{stream.EventStarted, stream.EventProgress, stream.EventCompleted}
	got := pub.kinds()
	if len(got) != len(want) {
		t.Fatalf("event kinds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %q, want %q", i, got[i], want[i])
		}
	}
	if pub.events[0].channel != "simulation:job-1" {
		t.Fatalf("channel = %q, want simulation:job-1", pub.events[0].channel)
	}
}

func TestRunnerExecuteFailurePath(t *testing.T) {
	store := NewMemoryStore()
	pub := &capturePublisher{}
	newPendingJob(t, store, KindSimulation)

	boom := errors.New("generator unavailable")
	run := func(_ context.Context, _ *Job, _ Emitter) (json.RawMessage, json.RawMessage, error) {
		return nil, nil, boom
	}

	err := NewRunner(store, pub, run).Execute(context.Background(), "job-1")
	if !errors.Is(err, boom) {
		t.Fatalf("Execute() error = %v, want wrapped %v", err, boom)
	}

	j, _ := store.Get(context.Background(), "job-1")
	if j.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", j.Status)
	}

	kinds := pub.kinds()
	if len(kinds) != 2 || kinds[0] != stream.EventStarted || kinds[1] != stream.EventError {
		t.Fatalf("event kinds = %v, want [started error]", kinds)
	}
	var payload stream.ErrorPayload
	if err := json.Unmarshal(pub.events[1].event.Data, &payload); err != nil {
		t.Fatalf("unmarshal error payload: %v", err)
	}
	if payload.Error != "generator unavailable" {
		t.Fatalf("error payload = %q", payload.Error)
	}
}

func TestRunnerExecuteRejectsDuplicateLaunch(t *testing.T) {
	store := NewMemoryStore()
	pub := &capturePublisher{}
	j := newPendingJob(t, store, KindDebate)
	if err := store.MarkRunning(context.Background(), j.ID, time.Now().UTC()); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}

	run := func(_ context.Context, _ *Job, _ Emitter) (json.RawMessage, json.RawMessage, error) {
		t.Fatal("run must not be invoked for a non-PENDING job")
		return nil, nil, nil
	}

	err := NewRunner(store, pub, run).Execute(context.Background(), j.ID)
	if !errors.Is(err, ErrDuplicateLaunch) {
		t.Fatalf("Execute() error = %v, want ErrDuplicateLaunch", err)
	}
	if len(pub.kinds()) != 0 {
		t.Fatalf("events published for duplicate launch: %v", pub.kinds())
	}
}

// A forced cancel that lands while the generator is still draining must win:
// the late result is discarded and no completed event is broadcast.
func TestRunnerExecuteDiscardsResultAfterForcedFailure(t *testing.T) {
	store := NewMemoryStore()
	pub := &capturePublisher{}
	j := newPendingJob(t, store, KindSimulation)

	run := func(ctx context.Context, _ *Job, _ Emitter) (json.RawMessage, json.RawMessage, error) {
		// Cancel arrives mid-run.
		if err := store.Fail(ctx, j.ID, time.Now().UTC()); err != nil {
			t.Errorf("Fail() error = %v", err)
		}
		return json.RawMessage(`{"analysis":"late"}`), nil, nil
	}

	if err := NewRunner(store, pub, run).Execute(context.Background(), j.ID); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	got, _ := store.Get(context.Background(), j.ID)
	if got.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED to stay terminal", got.Status)
	}
	if len(got.Result) != 0 {
		t.Fatalf("late result persisted: %s", got.Result)
	}
	for _, kind := range pub.kinds() {
		if kind == stream.EventCompleted {
			t.Fatalf("completed event broadcast after forced failure")
		}
	}
}

func TestMemoryStoreTerminalStatesNeverUnfail(t *testing.T) {
	store := NewMemoryStore()
	j := newPendingJob(t, store, KindReport)
	ctx := context.Background()

	if err := store.MarkRunning(ctx, j.ID, time.Now().UTC()); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if err := store.Fail(ctx, j.ID, time.Now().UTC()); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}

	if err := store.Complete(ctx, j.ID, nil, nil, time.Now().UTC()); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("Complete() after FAILED error = %v, want ErrStatusConflict", err)
	}
	if err := store.Fail(ctx, j.ID, time.Now().UTC()); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("Fail() after FAILED error = %v, want ErrStatusConflict", err)
	}
	if err := store.MarkRunning(ctx, j.ID, time.Now().UTC()); !errors.Is(err, ErrStatusConflict) {
		t.Fatalf("MarkRunning() after FAILED error = %v, want ErrStatusConflict", err)
	}
}
