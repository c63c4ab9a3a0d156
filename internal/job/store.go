package job

import (
	"context"
	"encoding/json"
	"time"
)

// Store is the persistence contract for job records. Transition methods are
// conditional updates: they succeed only from the expected prior state and
// return ErrStatusConflict otherwise, which is what keeps terminal states
// terminal even when a forced cancel races a still-running generator.
type Store interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	// List returns jobs of a kind, newest first. Empty kind lists all jobs.
	List(ctx context.Context, kind Kind) ([]*Job, error)
	// ListBySimulation returns jobs of a kind referencing the simulation.
	ListBySimulation(ctx context.Context, kind Kind, simulationID string) ([]*Job, error)

	// MarkRunning transitions PENDING -> RUNNING and records the start time.
	MarkRunning(ctx context.Context, id string, at time.Time) error
	// Complete transitions RUNNING -> COMPLETED with result and metrics.
	Complete(ctx context.Context, id string, result, metrics json.RawMessage, at time.Time) error
	// Fail transitions any non-terminal state -> FAILED. Also used by cancel.
	Fail(ctx context.Context, id string, at time.Time) error
}
