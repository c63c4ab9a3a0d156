package job

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for local runs and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Job)}
}

func (s *MemoryStore) Create(_ context.Context, j *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *j
	s.byID[j.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, kind Kind) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, 0, len(s.byID))
	for _, j := range s.byID {
		if kind != "" && j.Kind != kind {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListBySimulation(_ context.Context, kind Kind, simulationID string) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, 0, 4)
	for _, j := range s.byID {
		if j.Kind != kind || j.SimulationID != strings.TrimSpace(simulationID) {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) MarkRunning(_ context.Context, id string, at time.Time) error {
	return s.transition(id, func(j *Job) error {
		if j.Status != StatusPending {
			return ErrStatusConflict
		}
		j.Status = StatusRunning
		j.StartedAt = &at
		return nil
	})
}

func (s *MemoryStore) Complete(_ context.Context, id string, result, metrics json.RawMessage, at time.Time) error {
	return s.transition(id, func(j *Job) error {
		if j.Status != StatusRunning {
			return ErrStatusConflict
		}
		j.Status = StatusCompleted
		j.Result = result
		j.Metrics = metrics
		j.CompletedAt = &at
		return nil
	})
}

func (s *MemoryStore) Fail(_ context.Context, id string, at time.Time) error {
	return s.transition(id, func(j *Job) error {
		if j.Status.Terminal() {
			return ErrStatusConflict
		}
		j.Status = StatusFailed
		j.CompletedAt = &at
		return nil
	})
}

func (s *MemoryStore) transition(id string, apply func(*Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return ErrNotFound
	}
	return apply(j)
}
