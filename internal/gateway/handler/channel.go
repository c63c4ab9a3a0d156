package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"urbansim/internal/job"
	"urbansim/internal/stream"
)

// GetChannelEvents handles GET /api/channels/{channel}/events: the recorded
// tail of a broadcast channel, oldest first, for clients that subscribed late.
func (s *Service) GetChannelEvents(w http.ResponseWriter, r *http.Request) {
	channel := strings.TrimSpace(r.PathValue("channel"))
	if channel == "" || !strings.Contains(channel, ":") {
		writeError(w, fmt.Errorf("%w: channel must be <kind>:<jobId>", job.ErrInvalidArgument))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, fmt.Errorf("%w: limit must be a positive integer", job.ErrInvalidArgument))
			return
		}
		limit = n
	}

	events, err := s.eventLog.Recent(r.Context(), channel, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []stream.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channel": channel,
		"events":  events,
	})
}
