package store

import (
	"context"
	"sync"

	"caseflow/internal/casefile/models"
	"caseflow/internal/softdelete"
	id "caseflow/pkg/domain"
	"caseflow/pkg/platform/sentinel"
)

// InMemory is a map-backed case store for tests and development. All reads
// go through the softdelete scope, so deleted cases are invisible by
// default exactly as with the postgres store.
type InMemory struct {
	mu    sync.RWMutex
	cases map[id.CaseID]*models.Case
}

func NewInMemory() *InMemory {
	return &InMemory{cases: make(map[id.CaseID]*models.Case)}
}

func (s *InMemory) Create(_ context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.cases[c.ID]; exists {
		return sentinel.ErrConflict
	}
	clone := *c
	s.cases[c.ID] = &clone
	return nil
}

func (s *InMemory) FindByID(_ context.Context, caseID id.CaseID, scope softdelete.Scope) (*models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[caseID]
	if !ok || !scope.Matches(&c.Deletion) {
		return nil, sentinel.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (s *InMemory) List(_ context.Context, tenantID id.TenantID, filter softdelete.Filter, scope softdelete.Scope) ([]*models.Case, error) {
	if err := softdelete.ValidateFilter(filter, scope); err != nil {
		return nil, err
	}
	effective := softdelete.EffectiveFilter(filter)

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Case
	for _, c := range s.cases {
		if c.TenantID != tenantID || !scope.Matches(&c.Deletion) {
			continue
		}
		if !matchesFilter(c, effective) {
			continue
		}
		clone := *c
		out = append(out, &clone)
	}
	return out, nil
}

func (s *InMemory) Count(ctx context.Context, tenantID id.TenantID, filter softdelete.Filter, scope softdelete.Scope) (int, error) {
	matched, err := s.List(ctx, tenantID, filter, scope)
	if err != nil {
		return 0, err
	}
	return len(matched), nil
}

// CountByStatus groups visible cases by workflow status; the aggregation
// path honors the same scope and filter guard as plain reads.
func (s *InMemory) CountByStatus(ctx context.Context, tenantID id.TenantID, filter softdelete.Filter, scope softdelete.Scope) (map[models.CaseStatus]int, error) {
	matched, err := s.List(ctx, tenantID, filter, scope)
	if err != nil {
		return nil, err
	}
	out := make(map[models.CaseStatus]int)
	for _, c := range matched {
		out[c.Status]++
	}
	return out, nil
}

func (s *InMemory) Update(_ context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[c.ID]; !ok {
		return sentinel.ErrNotFound
	}
	clone := *c
	s.cases[c.ID] = &clone
	return nil
}

func matchesFilter(c *models.Case, filter softdelete.Filter) bool {
	for key, want := range filter {
		switch key {
		case "status":
			if string(c.Status) != toString(want) {
				return false
			}
		case "category_id":
			if c.CategoryID.String() != toString(want) {
				return false
			}
		case "title":
			if c.Title != toString(want) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case interface{ String() string }:
		return s.String()
	default:
		return ""
	}
}
