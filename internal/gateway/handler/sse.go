package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"urbansim/internal/job"
	"urbansim/internal/poll"
)

const streamPollInterval = time.Second

// streamJob serves the pull-based fallback for clients that cannot hold a
// websocket: the job record is re-read once per second and pushed as SSE
// frames until it reaches a terminal state. Intermediate states may be
// skipped; the terminal snapshot is always the last frame.
func (s *Service) streamJob(w http.ResponseWriter, r *http.Request, id string, want job.Kind) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errors.New("streaming unsupported"))
		return
	}

	// Reject before committing to the event stream so missing jobs still get
	// a JSON 404.
	first, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if first.Kind != want {
		writeError(w, fmt.Errorf("%w: job %s", job.ErrNotFound, id))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	poller := poll.Poller[*job.Job]{
		Interval: streamPollInterval,
		Fetch: func(ctx context.Context) (*job.Job, error) {
			return s.jobs.Get(ctx, id)
		},
		Terminal: func(j *job.Job) bool { return j.Status.Terminal() },
	}
	err = poller.Run(r.Context(), func(j *job.Job) error {
		payload, err := json.Marshal(j)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", payload); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		// The stream is already committed; the disconnect or store failure is
		// only visible in the log.
		fmt.Fprintf(w, "event: error\ndata: {\"error\":%q}\n\n", err.Error())
		flusher.Flush()
	}
}
