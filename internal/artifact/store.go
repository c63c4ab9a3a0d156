// Package artifact persists rendered report sections keyed by (job, path),
// so completed reports stay downloadable independently of the job record.
package artifact

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("artifact not found")

// Store defines operations for persisting job artifacts.
type Store interface {
	Put(ctx context.Context, jobID, path string, content []byte) error
	Get(ctx context.Context, jobID, path string) ([]byte, error)
	List(ctx context.Context, jobID string) ([]string, error)
}
