//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"caseflow/internal/casefile/models"
	"caseflow/internal/casefile/store"
	"caseflow/internal/softdelete"
	id "caseflow/pkg/domain"
	"caseflow/pkg/platform/sentinel"
	"caseflow/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	tenantID id.TenantID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "cases"))
	s.tenantID = id.TenantID(uuid.New())
}

func (s *PostgresStoreSuite) newCase(title string) *models.Case {
	c, err := models.NewCase(id.CaseID(uuid.New()), s.tenantID, title, "summary", time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(err)
	return c
}

func (s *PostgresStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	c := s.newCase("Billing dispute")
	s.Require().NoError(s.store.Create(ctx, c))

	found, err := s.store.FindByID(ctx, c.ID, softdelete.Default())
	s.Require().NoError(err)
	s.Equal(c.Title, found.Title)
	s.Equal(c.TenantID, found.TenantID)
	s.True(found.Deletion.Live())
}

func (s *PostgresStoreSuite) TestCreateConflict() {
	ctx := context.Background()
	c := s.newCase("dup")
	s.Require().NoError(s.store.Create(ctx, c))
	s.ErrorIs(s.store.Create(ctx, c), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestDeletionRoundTrip() {
	ctx := context.Background()
	c := s.newCase("doomed")
	s.Require().NoError(s.store.Create(ctx, c))

	actor := id.UserID(uuid.New())
	now := time.Now().UTC().Truncate(time.Microsecond)
	s.Require().True(softdelete.Apply(&c.Deletion, nil, now, actor, "filed in error"))
	s.Require().NoError(s.store.Update(ctx, c))

	_, err := s.store.FindByID(ctx, c.ID, softdelete.Default())
	s.ErrorIs(err, sentinel.ErrNotFound)

	found, err := s.store.FindByID(ctx, c.ID, softdelete.IncludeDeleted())
	s.Require().NoError(err)
	s.Require().NotNil(found.Deletion.DeletedAt)
	s.True(found.Deletion.DeletedAt.Equal(now))
	s.Require().NotNil(found.Deletion.DeletedBy)
	s.Equal(actor, *found.Deletion.DeletedBy)
	s.Require().NotNil(found.Deletion.DeleteReason)
	s.Equal("filed in error", *found.Deletion.DeleteReason)

	s.Require().True(softdelete.Revert(&found.Deletion, nil, now.Add(time.Hour), actor))
	s.Require().NoError(s.store.Update(ctx, found))

	restored, err := s.store.FindByID(ctx, c.ID, softdelete.Default())
	s.Require().NoError(err)
	s.Require().Len(restored.Deletion.RestoreHistory, 1)
	s.Equal(actor, restored.Deletion.RestoreHistory[0].RestoredBy)
}

func (s *PostgresStoreSuite) TestListCountAndAggregate() {
	ctx := context.Background()
	a := s.newCase("alpha")
	b := s.newCase("beta")
	b.Status = models.CaseStatusClosed
	gone := s.newCase("gone")
	softdelete.Apply(&gone.Deletion, nil, time.Now().UTC(), id.UserID(uuid.New()), "")

	for _, c := range []*models.Case{a, b, gone} {
		s.Require().NoError(s.store.Create(ctx, c))
	}

	cases, err := s.store.List(ctx, s.tenantID, nil, softdelete.Default())
	s.Require().NoError(err)
	s.Len(cases, 2)

	count, err := s.store.Count(ctx, s.tenantID, softdelete.Filter{"status": "open"}, softdelete.Default())
	s.Require().NoError(err)
	s.Equal(1, count)

	counts, err := s.store.CountByStatus(ctx, s.tenantID, nil, softdelete.IncludeDeleted())
	s.Require().NoError(err)
	s.Equal(2, counts[models.CaseStatusOpen])
	s.Equal(1, counts[models.CaseStatusClosed])
}

func (s *PostgresStoreSuite) TestManualDeletedFilterRejected() {
	ctx := context.Background()
	filter := softdelete.Filter{"deleted_at": nil}

	_, err := s.store.List(ctx, s.tenantID, filter, softdelete.Default())
	s.ErrorIs(err, softdelete.ErrManualDeletedFilter)

	_, err = s.store.Count(ctx, s.tenantID, filter, softdelete.Default())
	s.ErrorIs(err, softdelete.ErrManualDeletedFilter)

	_, err = s.store.CountByStatus(ctx, s.tenantID, filter, softdelete.Default())
	s.ErrorIs(err, softdelete.ErrManualDeletedFilter)
}
