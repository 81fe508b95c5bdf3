package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks UserStore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"caseflow/internal/audit"
	auditmemory "caseflow/internal/audit/store/memory"
	"caseflow/internal/effects"
	"caseflow/internal/identity/models"
	"caseflow/internal/identity/service/mocks"
	"caseflow/internal/identity/store"
	"caseflow/internal/identity/store/suspension"
	"caseflow/internal/softdelete"
	id "caseflow/pkg/domain"
	dErrors "caseflow/pkg/domain-errors"
	"caseflow/pkg/platform/sentinel"
	"caseflow/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	users       *store.InMemory
	suspensions *suspension.Memory
	auditLog    *auditmemory.Store
	queue       *effects.Queue
	recorder    *effects.Recorder
	service     *Service

	tenantID id.TenantID
	actorID  id.UserID
	now      time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.users = store.NewInMemory()
	s.suspensions = suspension.NewMemory()
	s.auditLog = auditmemory.New()
	s.queue = effects.NewQueue()
	s.recorder = effects.NewRecorder(s.queue)
	s.service = New(s.users, s.suspensions, s.auditLog, s.recorder)

	s.tenantID = id.TenantID(uuid.New())
	s.actorID = id.UserID(uuid.New())
	s.now = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
}

func (s *ServiceSuite) ctx() context.Context {
	ctx := requestcontext.WithTenantID(context.Background(), s.tenantID)
	ctx = requestcontext.WithActorID(ctx, s.actorID)
	ctx = requestcontext.WithRequestID(ctx, "req-456")
	ctx = requestcontext.WithTime(ctx, s.now)
	return ctx
}

func (s *ServiceSuite) settle() {
	s.Require().Eventually(s.queue.Idle, 2*time.Second, time.Millisecond)
}

func (s *ServiceSuite) TestCreateUserDerivesNames() {
	u, err := s.service.CreateUser(s.ctx(), "jane.doe@example.com", "", "")
	s.Require().NoError(err)
	s.Equal("jane.doe@example.com", u.Email)
	s.Equal("Jane", u.FirstName)
	s.Equal("Doe", u.LastName)
	s.True(u.Active)
}

func (s *ServiceSuite) TestCreateUserRejectsDuplicateEmail() {
	_, err := s.service.CreateUser(s.ctx(), "dup@example.com", "A", "B")
	s.Require().NoError(err)

	_, err = s.service.CreateUser(s.ctx(), "dup@example.com", "C", "D")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *ServiceSuite) TestSoftDeleteSuspendsAccount() {
	ctx := s.ctx()
	u, err := s.service.CreateUser(ctx, "mark@example.com", "", "")
	s.Require().NoError(err)

	lockExpiry := s.now.Add(30 * time.Minute)
	u.LockedUntil = &lockExpiry
	s.Require().NoError(s.users.Update(ctx, u))

	deleted, err := s.service.SoftDeleteUser(ctx, u.ID, "offboarded")
	s.Require().NoError(err)
	s.False(deleted.Active)
	s.Nil(deleted.LockedUntil)
	s.Require().NotNil(deleted.Deletion.Snapshot)
	s.Equal(true, deleted.Deletion.Snapshot["active"])
	s.Equal(lockExpiry, deleted.Deletion.Snapshot["locked_until"])

	s.settle()
	suspended, err := s.suspensions.Contains(ctx, u.ID)
	s.Require().NoError(err)
	s.True(suspended)
}

func (s *ServiceSuite) TestRestoreReinstatesExactState() {
	ctx := s.ctx()
	u, err := s.service.CreateUser(ctx, "lena@example.com", "", "")
	s.Require().NoError(err)

	lockExpiry := s.now.Add(45 * time.Minute)
	u.LockedUntil = &lockExpiry
	s.Require().NoError(s.users.Update(ctx, u))

	_, err = s.service.SoftDeleteUser(ctx, u.ID, "")
	s.Require().NoError(err)

	restored, err := s.service.RestoreUser(ctx, u.ID)
	s.Require().NoError(err)
	s.True(restored.Active)
	s.Require().NotNil(restored.LockedUntil)
	s.True(restored.LockedUntil.Equal(lockExpiry))
	s.Nil(restored.Deletion.Snapshot)
	s.Len(restored.Deletion.RestoreHistory, 1)

	s.settle()
	suspended, err := s.suspensions.Contains(ctx, u.ID)
	s.Require().NoError(err)
	s.False(suspended)
}

func (s *ServiceSuite) TestRestorePreservesInactiveAccounts() {
	ctx := s.ctx()
	u, err := s.service.CreateUser(ctx, "idle@example.com", "", "")
	s.Require().NoError(err)

	u.Active = false
	s.Require().NoError(s.users.Update(ctx, u))

	_, err = s.service.SoftDeleteUser(ctx, u.ID, "")
	s.Require().NoError(err)

	restored, err := s.service.RestoreUser(ctx, u.ID)
	s.Require().NoError(err)
	s.False(restored.Active)
}

func (s *ServiceSuite) TestDeleteAndRestoreAreIdempotent() {
	ctx := s.ctx()
	u, err := s.service.CreateUser(ctx, "twice@example.com", "", "")
	s.Require().NoError(err)

	first, err := s.service.SoftDeleteUser(ctx, u.ID, "spam")
	s.Require().NoError(err)
	second, err := s.service.SoftDeleteUser(ctx, u.ID, "other")
	s.Require().NoError(err)
	s.Equal(first.Deletion.DeletedAt, second.Deletion.DeletedAt)
	s.Require().NotNil(second.Deletion.DeleteReason)
	s.Equal("spam", *second.Deletion.DeleteReason)

	_, err = s.service.RestoreUser(ctx, u.ID)
	s.Require().NoError(err)
	again, err := s.service.RestoreUser(ctx, u.ID)
	s.Require().NoError(err)
	s.Len(again.Deletion.RestoreHistory, 1)
}

func (s *ServiceSuite) TestDeletedUserHiddenFromDefaultReads() {
	ctx := s.ctx()
	u, err := s.service.CreateUser(ctx, "gone@example.com", "", "")
	s.Require().NoError(err)
	_, err = s.service.SoftDeleteUser(ctx, u.ID, "")
	s.Require().NoError(err)

	_, err = s.service.GetUser(ctx, u.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	listed, err := s.service.ListUsers(ctx, softdelete.Default())
	s.Require().NoError(err)
	s.Empty(listed)

	onlyDeleted, err := s.service.ListUsers(ctx, softdelete.OnlyDeleted())
	s.Require().NoError(err)
	s.Len(onlyDeleted, 1)
}

func (s *ServiceSuite) TestAuditTrailForUserLifecycle() {
	ctx := s.ctx()
	u, err := s.service.CreateUser(ctx, "trail@example.com", "", "")
	s.Require().NoError(err)
	_, err = s.service.SoftDeleteUser(ctx, u.ID, "cleanup")
	s.Require().NoError(err)
	_, err = s.service.RestoreUser(ctx, u.ID)
	s.Require().NoError(err)

	s.settle()
	events := s.auditLog.All()
	s.Require().Len(events, 3)
	s.Equal(audit.ActionUserCreated, events[0].Action)
	s.Equal(audit.ActionUserDeleted, events[1].Action)
	s.Equal(audit.ActionUserRestored, events[2].Action)
}

func (s *ServiceSuite) TestDeleteFailureLeavesSuspensionListUntouched() {
	ctrl := gomock.NewController(s.T())
	mockUsers := mocks.NewMockUserStore(ctrl)
	svc := New(mockUsers, s.suspensions, s.auditLog, s.recorder)

	ctx := s.ctx()
	userID := id.UserID(uuid.New())
	u, err := models.NewUser(userID, s.tenantID, "doomed@example.com", "", "", s.now)
	s.Require().NoError(err)

	mockUsers.EXPECT().FindByID(gomock.Any(), userID, softdelete.IncludeDeleted()).Return(u, nil)
	mockUsers.EXPECT().Update(gomock.Any(), gomock.Any()).Return(sentinel.ErrUnavailable)

	_, err = svc.SoftDeleteUser(ctx, userID, "doomed")
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	s.settle()
	suspended, err := s.suspensions.Contains(ctx, userID)
	s.Require().NoError(err)
	s.False(suspended)
	s.Empty(s.auditLog.All())
}
