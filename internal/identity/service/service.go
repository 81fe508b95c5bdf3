package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"caseflow/internal/audit"
	"caseflow/internal/effects"
	"caseflow/internal/identity/models"
	"caseflow/internal/identity/store/suspension"
	"caseflow/internal/platform/metrics"
	"caseflow/internal/softdelete"
	id "caseflow/pkg/domain"
	dErrors "caseflow/pkg/domain-errors"
	"caseflow/pkg/email"
	"caseflow/pkg/platform/middleware/metadata"
	"caseflow/pkg/platform/sentinel"
	"caseflow/pkg/platform/tx"
	"caseflow/pkg/requestcontext"
)

// UserStore is the persistence contract for users.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, userID id.UserID, scope softdelete.Scope) (*models.User, error)
	FindByEmail(ctx context.Context, tenantID id.TenantID, email string, scope softdelete.Scope) (*models.User, error)
	List(ctx context.Context, tenantID id.TenantID, scope softdelete.Scope) ([]*models.User, error)
	Update(ctx context.Context, u *models.User) error
}

// Service manages user accounts. Deleting a user suspends the account; the
// shared suspension list is synchronized by deferred effects after the
// deleting transaction commits.
type Service struct {
	users       UserStore
	suspensions suspension.List
	auditLog    audit.Store
	recorder    *effects.Recorder
	runner      *tx.Runner
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTxRunner(runner *tx.Runner) Option {
	return func(s *Service) { s.runner = runner }
}

// New constructs a Service.
func New(users UserStore, suspensions suspension.List, auditLog audit.Store, recorder *effects.Recorder, opts ...Option) *Service {
	s := &Service{
		users:       users,
		suspensions: suspensions,
		auditLog:    auditLog,
		recorder:    recorder,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.runner == nil {
		s.runner = tx.NewRunner(nil)
	}
	return s
}

// CreateUser provisions a user in the request's tenant. Names omitted by the
// caller are derived from the email's local part.
func (s *Service) CreateUser(ctx context.Context, address, firstName, lastName string) (*models.User, error) {
	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant scope required")
	}
	if firstName == "" && lastName == "" {
		firstName, lastName = email.NamesFromAddress(address)
	}

	var created *models.User
	err := s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		u, err := models.NewUser(id.UserID(uuid.New()), tenantID, address, firstName, lastName, requestcontext.Now(txCtx))
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeValidation, err.Error())
			}
			return err
		}
		if err := s.users.Create(txCtx, u); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "a user with this email already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
		}
		s.emitAudit(txCtx, audit.ActionUserCreated, u, "")
		created = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetUser returns a live user.
func (s *Service) GetUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	return s.findUser(ctx, userID, softdelete.Default())
}

// GetUserAnyState returns a user regardless of deletion state.
func (s *Service) GetUserAnyState(ctx context.Context, userID id.UserID) (*models.User, error) {
	return s.findUser(ctx, userID, softdelete.IncludeDeleted())
}

func (s *Service) findUser(ctx context.Context, userID id.UserID, scope softdelete.Scope) (*models.User, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user ID required")
	}
	u, err := s.users.FindByID(ctx, userID, scope)
	if err != nil {
		return nil, wrapUserErr(err)
	}
	return u, nil
}

// ListUsers lists users in the request's tenant under the given scope.
func (s *Service) ListUsers(ctx context.Context, scope softdelete.Scope) ([]*models.User, error) {
	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant scope required")
	}
	users, err := s.users.List(ctx, tenantID, scope)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list users")
	}
	return users, nil
}

// SoftDeleteUser deletes a user account. The account's activity and lock
// state are captured into a snapshot and the account is suspended; the
// shared suspension list is updated after commit. Deleting an
// already-deleted user is a no-op.
func (s *Service) SoftDeleteUser(ctx context.Context, userID id.UserID, reason string) (*models.User, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user ID required")
	}
	actor := requestcontext.ActorID(ctx)
	now := requestcontext.Now(ctx)

	var u *models.User
	deleted := false
	err := s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		loaded, err := s.users.FindByID(txCtx, userID, softdelete.IncludeDeleted())
		if err != nil {
			return wrapUserErr(err)
		}
		if softdelete.Apply(&loaded.Deletion, loaded, now, actor, reason) {
			loaded.UpdatedAt = now
			if err := s.users.Update(txCtx, loaded); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete user")
			}
			s.emitAudit(txCtx, audit.ActionUserDeleted, loaded, reason)
			s.emitSuspensionSync(txCtx, loaded.ID, true)
			deleted = true
		}
		u = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	if deleted && s.metrics != nil {
		s.metrics.UsersDeleted.Inc()
	}
	return u, nil
}

// RestoreUser brings a deleted user back, reinstating the exact activity and
// lock state captured at deletion. Restoring a live user is a no-op.
func (s *Service) RestoreUser(ctx context.Context, userID id.UserID) (*models.User, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user ID required")
	}
	actor := requestcontext.ActorID(ctx)
	now := requestcontext.Now(ctx)

	var u *models.User
	restored := false
	err := s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		loaded, err := s.users.FindByID(txCtx, userID, softdelete.IncludeDeleted())
		if err != nil {
			return wrapUserErr(err)
		}
		if softdelete.Revert(&loaded.Deletion, loaded, now, actor) {
			loaded.UpdatedAt = now
			if err := s.users.Update(txCtx, loaded); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to restore user")
			}
			s.emitAudit(txCtx, audit.ActionUserRestored, loaded, "")
			s.emitSuspensionSync(txCtx, loaded.ID, false)
			restored = true
		}
		u = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	if restored && s.metrics != nil {
		s.metrics.UsersRestored.Inc()
	}
	return u, nil
}

// IsSuspended consults the shared suspension list. Edge callers use this to
// cut off sessions of deleted accounts without a database read.
func (s *Service) IsSuspended(ctx context.Context, userID id.UserID) (bool, error) {
	suspended, err := s.suspensions.Contains(ctx, userID)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeUnavailable, "suspension list unavailable")
	}
	return suspended, nil
}

func (s *Service) emitAudit(ctx context.Context, action audit.Action, u *models.User, reason string) {
	event := audit.Event{
		Actor:       requestcontext.ActorID(ctx),
		Action:      action,
		Description: u.Email,
		Timestamp:   requestcontext.Now(ctx),
		RequestID:   requestcontext.RequestID(ctx),
		Metadata: map[string]any{
			"user_id":   u.ID.String(),
			"tenant_id": u.TenantID.String(),
		},
	}
	if reason != "" {
		event.Metadata["reason"] = reason
	}
	if ip := metadata.GetClientIP(ctx); ip != "" {
		event.Metadata["client_ip"] = ip
		event.Metadata["device"] = metadata.DeviceSummary(ctx)
	}

	s.logger.InfoContext(ctx, string(action),
		"user_id", u.ID.String(),
		"tenant_id", u.TenantID.String(),
		"request_id", event.RequestID,
		"event", string(action),
		"log_type", "audit",
	)

	s.recorder.EnqueueAfterCommit(ctx, effects.Effect{
		Kind:    effects.KindAuditWrite,
		Payload: map[string]any{"action": string(action), "user_id": u.ID.String()},
		Action: func(effectCtx context.Context) error {
			return s.auditLog.Append(effectCtx, event)
		},
	})
}

// emitSuspensionSync defers the suspension-list update until the deleting or
// restoring transaction commits. The list is downstream state; it must never
// reflect a rolled-back delete.
func (s *Service) emitSuspensionSync(ctx context.Context, userID id.UserID, suspend bool) {
	s.recorder.EnqueueAfterCommit(ctx, effects.Effect{
		Kind:    effects.KindSuspensionSync,
		Payload: map[string]any{"user_id": userID.String(), "suspend": suspend},
		Action: func(effectCtx context.Context) error {
			if suspend {
				return s.suspensions.Add(effectCtx, userID)
			}
			return s.suspensions.Remove(effectCtx, userID)
		},
	})
}

func wrapUserErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "user store failure")
}
