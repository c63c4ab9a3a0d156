package stream

import (
	"encoding/json"
	"time"
)

// Event kinds emitted over a job's channel, in lifecycle order.
const (
	EventStarted   = "started"
	EventProgress  = "progress"
	EventToken     = "token"
	EventCompleted = "completed"
	EventError     = "error"
)

// Event is one immutable lifecycle notification about a job. It is created by
// a job runner, fanned out by the Broadcaster, and never mutated afterwards.
type Event struct {
	Kind      string          `json:"type"`
	JobType   string          `json:"jobType"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent builds an event with the payload marshaled up front, so a slow
// subscriber can never observe a later mutation of the caller's value.
func NewEvent(kind, jobType string, payload any) Event {
	data, err := json.Marshal(payload)
	if err != nil {
		data = json.RawMessage(`{}`)
	}
	return Event{
		Kind:      kind,
		JobType:   jobType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// ProgressPayload carries a human-readable message and a 0-100 progress value.
type ProgressPayload struct {
	Message  string `json:"message"`
	Progress int    `json:"progress"`
}

// TokenPayload carries one generated chunk plus enough context to reassemble
// full documents on the consumer side. Side/Round are set for debate tokens,
// Section for report tokens.
type TokenPayload struct {
	Token   string `json:"token"`
	Side    string `json:"side,omitempty"`
	Round   int    `json:"round,omitempty"`
	Section string `json:"section,omitempty"`
}

// ErrorPayload carries the human-readable failure message.
type ErrorPayload struct {
	Error string `json:"error"`
}
