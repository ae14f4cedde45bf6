// Package cancel holds cooperative cancellation flags for running tasks.
// The orchestrator's page loop polls a task's flag once per page; Cancel
// only sets it.
package cancel

import (
	"context"
	"sync"
)

// Flags records cancellation requests by task ID.
type Flags interface {
	Request(ctx context.Context, taskID string) error
	Requested(ctx context.Context, taskID string) (bool, error)
	Clear(ctx context.Context, taskID string) error
}

// Memory is an in-process Flags implementation.
type Memory struct {
	mu    sync.RWMutex
	flags map[string]struct{}
}

// NewMemory creates an empty in-process flag set.
func NewMemory() *Memory {
	return &Memory{flags: make(map[string]struct{})}
}

func (m *Memory) Request(_ context.Context, taskID string) error {
	m.mu.Lock()
	m.flags[taskID] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Requested(_ context.Context, taskID string) (bool, error) {
	m.mu.RLock()
	_, ok := m.flags[taskID]
	m.mu.RUnlock()
	return ok, nil
}

func (m *Memory) Clear(_ context.Context, taskID string) error {
	m.mu.Lock()
	delete(m.flags, taskID)
	m.mu.Unlock()
	return nil
}
