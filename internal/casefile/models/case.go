package models

import (
	"strings"
	"time"

	"caseflow/internal/softdelete"
	id "caseflow/pkg/domain"
	dErrors "caseflow/pkg/domain-errors"
)

// CaseStatus is the workflow state of a case.
type CaseStatus string

const (
	CaseStatusOpen       CaseStatus = "open"
	CaseStatusInProgress CaseStatus = "in_progress"
	CaseStatusClosed     CaseStatus = "closed"
)

// Valid reports whether the status is one of the known workflow states.
func (s CaseStatus) Valid() bool {
	switch s {
	case CaseStatusOpen, CaseStatusInProgress, CaseStatusClosed:
		return true
	}
	return false
}

// Case is a tenant-scoped case record.
//
// Invariants:
//   - Title is non-empty and at most 200 characters
//   - Status is one of the CaseStatus values
//   - Deletion state follows the softdelete metadata invariants; the case's
//     workflow status is orthogonal to it and survives delete/restore
//     untouched
type Case struct {
	ID         id.CaseID           `json:"id"`
	TenantID   id.TenantID         `json:"tenant_id"`
	Title      string              `json:"title"`
	Summary    string              `json:"summary,omitempty"`
	Status     CaseStatus          `json:"status"`
	CategoryID id.CategoryID       `json:"category_id,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
	Deletion   softdelete.Metadata `json:"deletion,omitempty"`
}

// NewCase constructs an open case, validating invariants.
func NewCase(caseID id.CaseID, tenantID id.TenantID, title, summary string, now time.Time) (*Case, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "case title cannot be empty")
	}
	if len(title) > 200 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "case title must be 200 characters or less")
	}
	return &Case{
		ID:        caseID,
		TenantID:  tenantID,
		Title:     title,
		Summary:   strings.TrimSpace(summary),
		Status:    CaseStatusOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
