package suspension

import (
	"context"
	"sync"

	id "caseflow/pkg/domain"
)

// Memory is an in-memory suspension list for tests and development.
type Memory struct {
	mu        sync.RWMutex
	suspended map[id.UserID]struct{}
}

func NewMemory() *Memory {
	return &Memory{suspended: make(map[id.UserID]struct{})}
}

func (m *Memory) Add(_ context.Context, userID id.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended[userID] = struct{}{}
	return nil
}

func (m *Memory) Remove(_ context.Context, userID id.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.suspended, userID)
	return nil
}

func (m *Memory) Contains(_ context.Context, userID id.UserID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.suspended[userID]
	return ok, nil
}
