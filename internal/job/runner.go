package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"urbansim/internal/stream"
)

// Publisher is the broadcast half the runner needs; satisfied by
// *stream.Broadcaster.
type Publisher interface {
	Publish(channel string, evt stream.Event)
}

// Emitter publishes lifecycle events on one job's channel with the job type
// pre-filled. It is handed to the kind-specific agent for token and progress
// reporting.
type Emitter struct {
	pub     Publisher
	channel string
	jobType string
}

func (e Emitter) Progress(message string, progress int) {
	e.emit(stream.EventProgress, stream.ProgressPayload{Message: message, Progress: progress})
}

func (e Emitter) Token(payload stream.TokenPayload) {
	e.emit(stream.EventToken, payload)
}

func (e Emitter) emit(kind string, payload any) {
	if e.pub == nil {
		return
	}
	e.pub.Publish(e.channel, stream.NewEvent(kind, e.jobType, payload))
}

// RunFunc is the kind-specific body of a job: build prompts, consume the
// generator stream, derive metrics. It returns the result and metrics blobs
// to persist, or an error that fails the job.
type RunFunc func(ctx context.Context, j *Job, emit Emitter) (result, metrics json.RawMessage, err error)

// Runner executes exactly one job from PENDING to a terminal state, emitting
// lifecycle events throughout. All mid-run failures are absorbed into job
// state plus an error event; the returned error exists so the orchestrator's
// fire-and-forget wrapper can log it.
type Runner struct {
	store Store
	pub   Publisher
	run   RunFunc
}

func NewRunner(store Store, pub Publisher, run RunFunc) *Runner {
	return &Runner{store: store, pub: pub, run: run}
}

func (r *Runner) Execute(ctx context.Context, jobID string) error {
	j, err := r.store.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}

	if err := r.store.MarkRunning(ctx, j.ID, time.Now().UTC()); err != nil {
		if err == ErrStatusConflict {
			return fmt.Errorf("%w: job %s is %s", ErrDuplicateLaunch, j.ID, j.Status)
		}
		return fmt.Errorf("mark job %s running: %w", j.ID, err)
	}

	channel := j.Channel()
	r.pub.Publish(channel, stream.NewEvent(stream.EventStarted, string(j.Kind), map[string]string{"jobId": j.ID}))

	emit := Emitter{pub: r.pub, channel: channel, jobType: string(j.Kind)}
	result, metrics, runErr := r.run(ctx, j, emit)
	if runErr != nil {
		return r.fail(ctx, j, runErr)
	}

	if err := r.store.Complete(ctx, j.ID, result, metrics, time.Now().UTC()); err != nil {
		if err == ErrStatusConflict {
			// The job was force-failed while the generator was draining.
			// The terminal state wins; the late result is discarded.
			log.Printf("job %s finished after forced termination; result discarded", j.ID)
			return nil
		}
		return r.fail(ctx, j, fmt.Errorf("persist result: %w", err))
	}

	r.pub.Publish(channel, stream.NewEvent(stream.EventCompleted, string(j.Kind), completedPayload(j.ID, result, metrics)))
	return nil
}

// fail moves the job to FAILED and emits the error event. The job must never
// be left stuck in RUNNING, so the store write happens before the broadcast.
func (r *Runner) fail(ctx context.Context, j *Job, cause error) error {
	if err := r.store.Fail(ctx, j.ID, time.Now().UTC()); err != nil && err != ErrStatusConflict {
		log.Printf("job %s fail persistence error: %v", j.ID, err)
	}
	r.pub.Publish(j.Channel(), stream.NewEvent(stream.EventError, string(j.Kind), stream.ErrorPayload{Error: cause.Error()}))
	return fmt.Errorf("job %s failed: %w", j.ID, cause)
}

func completedPayload(jobID string, result, metrics json.RawMessage) map[string]any {
	payload := map[string]any{
		"jobId":  jobID,
		"status": "completed",
	}
	if len(result) > 0 {
		payload["result"] = json.RawMessage(result)
	}
	if len(metrics) > 0 {
		payload["metrics"] = json.RawMessage(metrics)
	}
	return payload
}
