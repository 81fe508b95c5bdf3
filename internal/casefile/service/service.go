package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"caseflow/internal/audit"
	"caseflow/internal/casefile/models"
	"caseflow/internal/effects"
	"caseflow/internal/platform/metrics"
	"caseflow/internal/softdelete"
	id "caseflow/pkg/domain"
	dErrors "caseflow/pkg/domain-errors"
	"caseflow/pkg/platform/middleware/metadata"
	"caseflow/pkg/platform/sentinel"
	"caseflow/pkg/platform/tx"
	"caseflow/pkg/requestcontext"
)

// CaseStore is the persistence contract for cases. All reads take an
// explicit softdelete scope; the default scope excludes deleted cases.
type CaseStore interface {
	Create(ctx context.Context, c *models.Case) error
	FindByID(ctx context.Context, caseID id.CaseID, scope softdelete.Scope) (*models.Case, error)
	List(ctx context.Context, tenantID id.TenantID, filter softdelete.Filter, scope softdelete.Scope) ([]*models.Case, error)
	Count(ctx context.Context, tenantID id.TenantID, filter softdelete.Filter, scope softdelete.Scope) (int, error)
	CountByStatus(ctx context.Context, tenantID id.TenantID, filter softdelete.Filter, scope softdelete.Scope) (map[models.CaseStatus]int, error)
	Update(ctx context.Context, c *models.Case) error
}

// Service orchestrates case lifecycle management. Delete and restore are
// idempotent; their audit trail entries are commit-gated through the effect
// recorder so a rolled-back transaction leaves no trace downstream.
type Service struct {
	cases    CaseStore
	auditLog audit.Store
	recorder *effects.Recorder
	runner   *tx.Runner
	logger   *slog.Logger
	metrics  *metrics.Metrics
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
func New(cases CaseStore, auditLog audit.Store, recorder *effects.Recorder, opts ...Option) *Service {
	s := &Service{
		cases:    cases,
		auditLog: auditLog,
		recorder: recorder,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.runner == nil {
		s.runner = tx.NewRunner(nil)
	}
	return s
}

// CreateCase opens a new case in the request's tenant.
func (s *Service) CreateCase(ctx context.Context, title, summary string) (*models.Case, error) {
	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant scope required")
	}

	var created *models.Case
	err := s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		c, err := models.NewCase(id.CaseID(uuid.New()), tenantID, title, summary, requestcontext.Now(txCtx))
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeValidation, err.Error())
			}
			return err
		}
		if err := s.cases.Create(txCtx, c); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create case")
		}
		s.emitAudit(txCtx, audit.ActionCaseCreated, c, "")
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetCase returns a live case. Deleted cases are not found here; use
// GetCaseAnyState for admin views.
func (s *Service) GetCase(ctx context.Context, caseID id.CaseID) (*models.Case, error) {
	return s.findCase(ctx, caseID, softdelete.Default())
}

// GetCaseAnyState returns a case regardless of deletion state.
func (s *Service) GetCaseAnyState(ctx context.Context, caseID id.CaseID) (*models.Case, error) {
	return s.findCase(ctx, caseID, softdelete.IncludeDeleted())
}

// GetDeletedCase returns a case only if it has been deleted; a live case is
// not found under this view.
func (s *Service) GetDeletedCase(ctx context.Context, caseID id.CaseID) (*models.Case, error) {
	return s.findCase(ctx, caseID, softdelete.OnlyDeleted())
}

func (s *Service) findCase(ctx context.Context, caseID id.CaseID, scope softdelete.Scope) (*models.Case, error) {
	if caseID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "case ID required")
	}
	c, err := s.cases.FindByID(ctx, caseID, scope)
	if err != nil {
		return nil, wrapCaseErr(err)
	}
	return c, nil
}

// ListCases lists cases in the request's tenant under the given scope.
func (s *Service) ListCases(ctx context.Context, filter softdelete.Filter, scope softdelete.Scope) ([]*models.Case, error) {
	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant scope required")
	}
	cases, err := s.cases.List(ctx, tenantID, filter, scope)
	if err != nil {
		if errors.Is(err, softdelete.ErrManualDeletedFilter) {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid filter")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list cases")
	}
	return cases, nil
}

// CountCases counts cases in the request's tenant under the given scope.
func (s *Service) CountCases(ctx context.Context, filter softdelete.Filter, scope softdelete.Scope) (int, error) {
	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		return 0, dErrors.New(dErrors.CodeBadRequest, "tenant scope required")
	}
	count, err := s.cases.Count(ctx, tenantID, filter, scope)
	if err != nil {
		if errors.Is(err, softdelete.ErrManualDeletedFilter) {
			return 0, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid filter")
		}
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count cases")
	}
	return count, nil
}

// CountByStatus groups cases by workflow status. The aggregation honors the
// same scope and filter guard as plain reads.
func (s *Service) CountByStatus(ctx context.Context, filter softdelete.Filter, scope softdelete.Scope) (map[models.CaseStatus]int, error) {
	tenantID := requestcontext.TenantID(ctx)
	if tenantID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tenant scope required")
	}
	counts, err := s.cases.CountByStatus(ctx, tenantID, filter, scope)
	if err != nil {
		if errors.Is(err, softdelete.ErrManualDeletedFilter) {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid filter")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to aggregate cases")
	}
	return counts, nil
}

// SoftDeleteCase marks a case as deleted. Deleting an already-deleted case
// is a no-op that returns the case unchanged: the original deletion
// metadata is never overwritten.
func (s *Service) SoftDeleteCase(ctx context.Context, caseID id.CaseID, reason string) (*models.Case, error) {
	if caseID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "case ID required")
	}
	actor := requestcontext.ActorID(ctx)
	now := requestcontext.Now(ctx)

	var c *models.Case
	deleted := false
	err := s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		// Bypass the default filter so a repeat delete still finds the case.
		loaded, err := s.cases.FindByID(txCtx, caseID, softdelete.IncludeDeleted())
		if err != nil {
			return wrapCaseErr(err)
		}
		if softdelete.Apply(&loaded.Deletion, nil, now, actor, reason) {
			loaded.UpdatedAt = now
			if err := s.cases.Update(txCtx, loaded); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete case")
			}
			s.emitAudit(txCtx, audit.ActionCaseDeleted, loaded, reason)
			deleted = true
		}
		c = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	if deleted && s.metrics != nil {
		s.metrics.CasesDeleted.Inc()
	}
	return c, nil
}

// RestoreCase brings a deleted case back. Restoring a live case is a no-op.
func (s *Service) RestoreCase(ctx context.Context, caseID id.CaseID) (*models.Case, error) {
	if caseID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "case ID required")
	}
	actor := requestcontext.ActorID(ctx)
	now := requestcontext.Now(ctx)

	var c *models.Case
	restored := false
	err := s.runner.RunInTx(ctx, func(txCtx context.Context) error {
		loaded, err := s.cases.FindByID(txCtx, caseID, softdelete.IncludeDeleted())
		if err != nil {
			return wrapCaseErr(err)
		}
		if softdelete.Revert(&loaded.Deletion, nil, now, actor) {
			loaded.UpdatedAt = now
			if err := s.cases.Update(txCtx, loaded); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to restore case")
			}
			s.emitAudit(txCtx, audit.ActionCaseRestored, loaded, "")
			restored = true
		}
		c = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	if restored && s.metrics != nil {
		s.metrics.CasesRestored.Inc()
	}
	return c, nil
}

// emitAudit logs the action synchronously and buffers a commit-gated audit
// write. The effect's action captures the event by value; it runs on the
// queue's own context after the request has completed.
func (s *Service) emitAudit(ctx context.Context, action audit.Action, c *models.Case, reason string) {
	requestID := requestcontext.RequestID(ctx)
	event := audit.Event{
		Actor:       requestcontext.ActorID(ctx),
		Action:      action,
		Description: c.Title,
		Timestamp:   requestcontext.Now(ctx),
		RequestID:   requestID,
		Metadata: map[string]any{
			"case_id":   c.ID.String(),
			"tenant_id": c.TenantID.String(),
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
		"case_id", c.ID.String(),
		"tenant_id", c.TenantID.String(),
		"request_id", requestID,
		"event", string(action),
		"log_type", "audit",
	)

	s.recorder.EnqueueAfterCommit(ctx, effects.Effect{
		Kind:    effects.KindAuditWrite,
		Payload: map[string]any{"action": string(action), "case_id": c.ID.String()},
		Action: func(effectCtx context.Context) error {
			return s.auditLog.Append(effectCtx, event)
		},
	})
}

func wrapCaseErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "case not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "case store failure")
}
