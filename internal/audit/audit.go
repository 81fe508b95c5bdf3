// Package audit defines the append-only audit trail consumed by delete,
// restore and lifecycle operations. Events are emitted from domain logic as
// commit-gated effects; stores expose Append and reads only, so the trail is
// immutable by construction.
package audit

import (
	"context"
	"time"

	id "caseflow/pkg/domain"
)

// Action names the audited operation.
type Action string

const (
	ActionCaseCreated  Action = "case_created"
	ActionCaseDeleted  Action = "case_deleted"
	ActionCaseRestored Action = "case_restored"
	ActionUserCreated  Action = "user_created"
	ActionUserDeleted  Action = "user_deleted"
	ActionUserRestored Action = "user_restored"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Actor       id.UserID
	Action      Action
	Description string
	Timestamp   time.Time
	RequestID   string
	Metadata    map[string]any
}

// Store persists audit events. There is deliberately no update or delete:
// immutability of the trail is part of the contract.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByActor(ctx context.Context, actor id.UserID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
