// Package poll implements the pull-based fallback to the push channel:
// repeated reads of a persisted record until it reaches a terminal state.
package poll

import (
	"context"
	"time"
)

// Poller re-fetches a snapshot on a fixed interval and emits each one until
// the terminal predicate holds. Intermediate states may be coalesced or
// skipped between polls; the terminal snapshot is always emitted before the
// poller stops. It is transport-agnostic: the emit callback may write to an
// SSE response, a websocket, or a test channel.
type Poller[T any] struct {
	Interval time.Duration
	Fetch    func(ctx context.Context) (T, error)
	Terminal func(T) bool
}

// Run polls until the terminal predicate holds, the context is canceled, or
// either callback fails. The first fetch happens immediately.
func (p Poller[T]) Run(ctx context.Context, emit func(T) error) error {
	interval := p.Interval
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		snapshot, err := p.Fetch(ctx)
		if err != nil {
			return err
		}
		if err := emit(snapshot); err != nil {
			return err
		}
		if p.Terminal(snapshot) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
