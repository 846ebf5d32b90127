package events

import (
	"context"
	"sync"
)

// Memory records published events for inspection in tests.
type Memory struct {
	mu     sync.RWMutex
	events []FixtureCompleted
}

// NewMemory returns an empty in-memory publisher.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish records the event.
func (m *Memory) Publish(_ context.Context, event FixtureCompleted) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []FixtureCompleted {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]FixtureCompleted, len(m.events))
	copy(out, m.events)
	return out
}
