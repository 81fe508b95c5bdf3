package models

import (
	"strings"
	"time"

	"caseflow/internal/softdelete"
	id "caseflow/pkg/domain"
	dErrors "caseflow/pkg/domain-errors"
)

// Snapshot keys for the suspendable fields.
const (
	snapshotKeyActive      = "active"
	snapshotKeyLockedUntil = "locked_until"
)

// User is a tenant-scoped user account.
//
// Users are Suspendable: deleting a user disables the account (Active false,
// lock cleared) after capturing those fields, and restoring writes the
// captured values back verbatim, lock expiry included.
type User struct {
	ID          id.UserID           `json:"id"`
	TenantID    id.TenantID         `json:"tenant_id"`
	Email       string              `json:"email"`
	FirstName   string              `json:"first_name"`
	LastName    string              `json:"last_name"`
	Active      bool                `json:"active"`
	LockedUntil *time.Time          `json:"locked_until,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	Deletion    softdelete.Metadata `json:"deletion,omitempty"`
}

// NewUser constructs an active user, validating invariants.
func NewUser(userID id.UserID, tenantID id.TenantID, email, firstName, lastName string, now time.Time) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user email must be a valid address")
	}
	return &User{
		ID:        userID,
		TenantID:  tenantID,
		Email:     email,
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CaptureState snapshots the fields Suspend is about to clear.
func (u *User) CaptureState() softdelete.Snapshot {
	snapshot := softdelete.Snapshot{
		snapshotKeyActive: u.Active,
	}
	if u.LockedUntil != nil {
		snapshot[snapshotKeyLockedUntil] = *u.LockedUntil
	}
	return snapshot
}

// Suspend disables the account while it is deleted.
func (u *User) Suspend() {
	u.Active = false
	u.LockedUntil = nil
}

// Reinstate writes the captured values back verbatim.
func (u *User) Reinstate(snapshot softdelete.Snapshot) {
	if active, ok := snapshot[snapshotKeyActive].(bool); ok {
		u.Active = active
	}
	u.LockedUntil = nil
	// A snapshot that has been through JSON persistence carries the lock
	// expiry as an RFC 3339 string instead of a time.Time.
	switch lockedUntil := snapshot[snapshotKeyLockedUntil].(type) {
	case time.Time:
		until := lockedUntil
		u.LockedUntil = &until
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, lockedUntil); err == nil {
			u.LockedUntil = &parsed
		}
	}
}
