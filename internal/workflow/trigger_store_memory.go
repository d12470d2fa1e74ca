package workflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryTriggerStore keeps triggers in memory; restarts lose them, so it is
// only for tests and local runs.
type MemoryTriggerStore struct {
	mu       sync.Mutex
	triggers map[uuid.UUID]Trigger
	fired    map[uuid.UUID]bool
}

func NewMemoryTriggerStore() *MemoryTriggerStore {
	return &MemoryTriggerStore{
		triggers: make(map[uuid.UUID]Trigger),
		fired:    make(map[uuid.UUID]bool),
	}
}

func (s *MemoryTriggerStore) Add(_ context.Context, t Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers[t.ID] = t
	return nil
}

func (s *MemoryTriggerStore) Due(_ context.Context, now time.Time) ([]Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Trigger
	for triggerID, t := range s.triggers {
		if !s.fired[triggerID] && !t.FireAt.After(now) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out, nil
}

func (s *MemoryTriggerStore) MarkFired(_ context.Context, triggerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fired[triggerID] = true
	return nil
}

func (s *MemoryTriggerStore) MarkFailed(_ context.Context, triggerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.triggers[triggerID]
	if !ok {
		return nil
	}
	t.Attempts++
	s.triggers[triggerID] = t
	return nil
}
