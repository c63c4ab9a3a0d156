package stream

import (
	"errors"
	"strings"
	"sync"
)

// ErrDuplicateSession is returned when a session identifier is registered twice.
// Correct transport semantics never produce this; it guards against caller bugs.
var ErrDuplicateSession = errors.New("stream: session already registered")

// Sender is the transport half of a session. Send must not block indefinitely;
// a failed send only costs that session its copy of the message.
type Sender interface {
	Send(msg OutboundMessage) error
}

type sessionEntry struct {
	sender Sender
	subs   map[string]struct{}
}

// Registry maps session identifiers to their subscription sets. It is owned by
// the server's connection-handling component, constructed once at startup, and
// shared by every websocket connection and broadcaster.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*sessionEntry)}
}

// Register adds a session with an empty subscription set.
func (r *Registry) Register(sessionID string, sender Sender) error {
	id := strings.TrimSpace(sessionID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return ErrDuplicateSession
	}
	r.sessions[id] = &sessionEntry{
		sender: sender,
		subs:   make(map[string]struct{}),
	}
	return nil
}

// Unregister removes the session and all of its subscriptions. It is a no-op
// for unknown identifiers, so disconnect paths can call it unconditionally.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	delete(r.sessions, strings.TrimSpace(sessionID))
	r.mu.Unlock()
}

// Subscribe adds a channel to the session's subscription set. A session that
// disconnected while the subscribe request was in flight is silently ignored.
func (r *Registry) Subscribe(sessionID, channel string) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return
	}
	r.mu.Lock()
	if entry, ok := r.sessions[strings.TrimSpace(sessionID)]; ok {
		entry.subs[channel] = struct{}{}
	}
	r.mu.Unlock()
}

// Unsubscribe removes a channel from the session's subscription set; no-op if
// either the session or the subscription is absent.
func (r *Registry) Unsubscribe(sessionID, channel string) {
	r.mu.Lock()
	if entry, ok := r.sessions[strings.TrimSpace(sessionID)]; ok {
		delete(entry.subs, strings.TrimSpace(channel))
	}
	r.mu.Unlock()
}

// SubscribersOf returns a snapshot of the senders currently subscribed to the
// channel. Callers iterate the snapshot without observing later mutations.
func (r *Registry) SubscribersOf(channel string) []Sender {
	channel = strings.TrimSpace(channel)
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Sender, 0, len(r.sessions))
	for _, entry := range r.sessions {
		if _, ok := entry.subs[channel]; ok {
			out = append(out, entry.sender)
		}
	}
	return out
}

// AllSenders returns a snapshot of every connected session's sender,
// regardless of subscriptions.
func (r *Registry) AllSenders() []Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Sender, 0, len(r.sessions))
	for _, entry := range r.sessions {
		out = append(out, entry.sender)
	}
	return out
}

// Len reports the number of connected sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
