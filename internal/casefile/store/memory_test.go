package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"caseflow/internal/casefile/models"
	"caseflow/internal/softdelete"
	id "caseflow/pkg/domain"
	"caseflow/pkg/platform/sentinel"
)

type InMemorySuite struct {
	suite.Suite
	store    *InMemory
	tenantID id.TenantID
	now      time.Time
}

func TestInMemorySuite(t *testing.T) {
	suite.Run(t, new(InMemorySuite))
}

func (s *InMemorySuite) SetupTest() {
	s.store = NewInMemory()
	s.tenantID = id.TenantID(uuid.New())
	s.now = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
}

func (s *InMemorySuite) newCase(title string) *models.Case {
	c, err := models.NewCase(id.CaseID(uuid.New()), s.tenantID, title, "", s.now)
	s.Require().NoError(err)
	return c
}

func (s *InMemorySuite) seed(title string, deleted bool) *models.Case {
	c := s.newCase(title)
	if deleted {
		actor := id.UserID(uuid.New())
		softdelete.Apply(&c.Deletion, nil, s.now, actor, "")
	}
	s.Require().NoError(s.store.Create(context.Background(), c))
	return c
}

func (s *InMemorySuite) TestCreateConflict() {
	c := s.seed("first", false)
	err := s.store.Create(context.Background(), c)
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *InMemorySuite) TestFindByIDScoped() {
	ctx := context.Background()
	live := s.seed("live", false)
	gone := s.seed("gone", true)

	found, err := s.store.FindByID(ctx, live.ID, softdelete.Default())
	s.Require().NoError(err)
	s.Equal(live.ID, found.ID)

	_, err = s.store.FindByID(ctx, gone.ID, softdelete.Default())
	s.ErrorIs(err, sentinel.ErrNotFound)

	found, err = s.store.FindByID(ctx, gone.ID, softdelete.IncludeDeleted())
	s.Require().NoError(err)
	s.Equal(gone.ID, found.ID)

	_, err = s.store.FindByID(ctx, live.ID, softdelete.OnlyDeleted())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *InMemorySuite) TestListScopes() {
	ctx := context.Background()
	s.seed("live", false)
	s.seed("gone", true)

	byScope := map[string]struct {
		scope softdelete.Scope
		want  int
	}{
		"default":  {softdelete.Default(), 1},
		"include":  {softdelete.IncludeDeleted(), 2},
		"only del": {softdelete.OnlyDeleted(), 1},
	}
	for name, tc := range byScope {
		s.Run(name, func() {
			cases, err := s.store.List(ctx, s.tenantID, nil, tc.scope)
			s.Require().NoError(err)
			s.Len(cases, tc.want)
		})
	}
}

func (s *InMemorySuite) TestListFiltersByField() {
	ctx := context.Background()
	open := s.seed("open case", false)
	closed := s.seed("closed case", false)
	closed.Status = models.CaseStatusClosed
	s.Require().NoError(s.store.Update(ctx, closed))

	cases, err := s.store.List(ctx, s.tenantID, softdelete.Filter{"status": "open"}, softdelete.Default())
	s.Require().NoError(err)
	s.Require().Len(cases, 1)
	s.Equal(open.ID, cases[0].ID)
}

func (s *InMemorySuite) TestManualDeletedFilterRejected() {
	ctx := context.Background()
	s.seed("live", false)
	filter := softdelete.Filter{"deleted_at": nil}

	_, err := s.store.List(ctx, s.tenantID, filter, softdelete.Default())
	s.ErrorIs(err, softdelete.ErrManualDeletedFilter)

	_, err = s.store.Count(ctx, s.tenantID, filter, softdelete.Default())
	s.ErrorIs(err, softdelete.ErrManualDeletedFilter)

	_, err = s.store.CountByStatus(ctx, s.tenantID, filter, softdelete.Default())
	s.ErrorIs(err, softdelete.ErrManualDeletedFilter)

	// With an explicit scope the reserved key is stripped, not matched.
	cases, err := s.store.List(ctx, s.tenantID, filter, softdelete.IncludeDeleted())
	s.Require().NoError(err)
	s.Len(cases, 1)
}

func (s *InMemorySuite) TestCountByStatus() {
	ctx := context.Background()
	s.seed("a", false)
	s.seed("b", false)
	s.seed("gone", true)

	counts, err := s.store.CountByStatus(ctx, s.tenantID, nil, softdelete.Default())
	s.Require().NoError(err)
	s.Equal(2, counts[models.CaseStatusOpen])

	counts, err = s.store.CountByStatus(ctx, s.tenantID, nil, softdelete.IncludeDeleted())
	s.Require().NoError(err)
	s.Equal(3, counts[models.CaseStatusOpen])
}

func (s *InMemorySuite) TestTenantIsolation() {
	ctx := context.Background()
	s.seed("mine", false)

	otherTenant := id.TenantID(uuid.New())
	cases, err := s.store.List(ctx, otherTenant, nil, softdelete.IncludeDeleted())
	s.Require().NoError(err)
	s.Empty(cases)
}

func (s *InMemorySuite) TestUpdateMissing() {
	c := s.newCase("ghost")
	err := s.store.Update(context.Background(), c)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
