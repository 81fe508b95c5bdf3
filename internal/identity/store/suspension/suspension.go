// Package suspension tracks which user accounts are currently suspended
// because their user record is soft-deleted. Edge systems (session checks,
// API gateways) consult this list without touching the primary database.
//
// The list is downstream state: it is updated by deferred effects after the
// deleting transaction commits, never inside it.
package suspension

import (
	"context"

	id "caseflow/pkg/domain"
)

// List is the suspended-account set.
type List interface {
	Add(ctx context.Context, userID id.UserID) error
	Remove(ctx context.Context, userID id.UserID) error
	Contains(ctx context.Context, userID id.UserID) (bool, error)
}
