//go:build integration

package suspension_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"caseflow/internal/identity/store/suspension"
	id "caseflow/pkg/domain"
	"caseflow/pkg/testutil/containers"
)

type RedisSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	list  *suspension.Redis
}

func TestRedisSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisSuite))
}

func (s *RedisSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.list = suspension.NewRedis(s.redis.Client)
}

func (s *RedisSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisSuite) TestAddRemoveContains() {
	ctx := context.Background()
	userID := id.UserID(uuid.New())

	suspended, err := s.list.Contains(ctx, userID)
	s.Require().NoError(err)
	s.False(suspended)

	s.Require().NoError(s.list.Add(ctx, userID))
	suspended, err = s.list.Contains(ctx, userID)
	s.Require().NoError(err)
	s.True(suspended)

	// Adding twice is harmless.
	s.Require().NoError(s.list.Add(ctx, userID))

	s.Require().NoError(s.list.Remove(ctx, userID))
	suspended, err = s.list.Contains(ctx, userID)
	s.Require().NoError(err)
	s.False(suspended)
}

func (s *RedisSuite) TestIsolationBetweenUsers() {
	ctx := context.Background()
	first := id.UserID(uuid.New())
	second := id.UserID(uuid.New())

	s.Require().NoError(s.list.Add(ctx, first))

	suspended, err := s.list.Contains(ctx, second)
	s.Require().NoError(err)
	s.False(suspended)
}
