package store

import (
	"context"
	"strings"
	"sync"

	"caseflow/internal/identity/models"
	"caseflow/internal/softdelete"
	id "caseflow/pkg/domain"
	"caseflow/pkg/platform/sentinel"
)

// InMemory is a map-backed user store for tests and development.
type InMemory struct {
	mu    sync.RWMutex
	users map[id.UserID]*models.User
}

func NewInMemory() *InMemory {
	return &InMemory{users: make(map[id.UserID]*models.User)}
}

func (s *InMemory) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[u.ID]; exists {
		return sentinel.ErrConflict
	}
	for _, existing := range s.users {
		if existing.TenantID == u.TenantID && existing.Email == u.Email && existing.Deletion.Live() {
			return sentinel.ErrConflict
		}
	}
	clone := *u
	s.users[u.ID] = &clone
	return nil
}

func (s *InMemory) FindByID(_ context.Context, userID id.UserID, scope softdelete.Scope) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok || !scope.Matches(&u.Deletion) {
		return nil, sentinel.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (s *InMemory) FindByEmail(_ context.Context, tenantID id.TenantID, email string, scope softdelete.Scope) (*models.User, error) {
	email = strings.ToLower(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.TenantID == tenantID && u.Email == email && scope.Matches(&u.Deletion) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) List(_ context.Context, tenantID id.TenantID, scope softdelete.Scope) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.User
	for _, u := range s.users {
		if u.TenantID != tenantID || !scope.Matches(&u.Deletion) {
			continue
		}
		clone := *u
		out = append(out, &clone)
	}
	return out, nil
}

func (s *InMemory) Update(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return sentinel.ErrNotFound
	}
	clone := *u
	s.users[u.ID] = &clone
	return nil
}
