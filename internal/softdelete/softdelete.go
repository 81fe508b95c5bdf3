// Package softdelete implements soft deletion as a capability shared by
// every persistable entity type.
//
// Entities embed Metadata; stores scope reads through Scope so deleted rows
// are excluded by default; services drive the LIVE -> DELETED -> LIVE
// transitions through Apply and Revert. Entities whose mutable status must
// be suspended while deleted (identity records with activity and lock
// state) implement Suspendable: their live-state fields are captured into a
// snapshot on delete and written back verbatim on restore.
package softdelete

import (
	"time"

	id "caseflow/pkg/domain"
)

// Restoration is one entry in an entity's append-only restore history.
type Restoration struct {
	RestoredAt time.Time `json:"restored_at"`
	RestoredBy id.UserID `json:"restored_by"`
}

// Snapshot holds the pre-deletion values of an entity's suspended fields.
// It exists only while the entity is deleted.
type Snapshot map[string]any

// Suspendable is implemented by entities whose live state must be disabled
// during deletion. CaptureState and Reinstate must round-trip exactly: every
// field Suspend touches is captured, and Reinstate writes the captured
// values back verbatim.
type Suspendable interface {
	CaptureState() Snapshot
	Suspend()
	Reinstate(Snapshot)
}

// Metadata carries an entity's deletion state.
//
// Invariants:
//   - the entity is live iff DeletedAt is nil
//   - a live entity never carries a Snapshot
//   - the first delete wins: a second delete never overwrites DeletedAt,
//     DeletedBy or DeleteReason
type Metadata struct {
	DeletedAt      *time.Time    `json:"deleted_at,omitempty"`
	DeletedBy      *id.UserID    `json:"deleted_by,omitempty"`
	DeleteReason   *string       `json:"delete_reason,omitempty"`
	RestoreHistory []Restoration `json:"restore_history,omitempty"`
	Snapshot       Snapshot      `json:"deleted_state_snapshot,omitempty"`
}

// Live reports whether the entity is not soft-deleted.
func (m *Metadata) Live() bool { return m.DeletedAt == nil }

// Apply soft-deletes the entity. Already-deleted entities are left untouched
// and false is returned; callers treat that as an idempotent no-op. When the
// entity is Suspendable, its live state is captured into the snapshot and
// then suspended.
func Apply(meta *Metadata, entity Suspendable, now time.Time, actor id.UserID, reason string) bool {
	if !meta.Live() {
		return false
	}
	deletedAt := now
	meta.DeletedAt = &deletedAt
	meta.DeletedBy = &actor
	if reason != "" {
		meta.DeleteReason = &reason
	}
	if entity != nil {
		meta.Snapshot = entity.CaptureState()
		entity.Suspend()
	}
	return true
}

// Revert restores a soft-deleted entity. Live entities are left untouched
// and false is returned. The deletion fields are cleared, a restoration is
// appended to the history, and any snapshot is written back and removed.
func Revert(meta *Metadata, entity Suspendable, now time.Time, actor id.UserID) bool {
	if meta.Live() {
		return false
	}
	meta.DeletedAt = nil
	meta.DeletedBy = nil
	meta.DeleteReason = nil
	meta.RestoreHistory = append(meta.RestoreHistory, Restoration{
		RestoredAt: now,
		RestoredBy: actor,
	})
	if meta.Snapshot != nil {
		if entity != nil {
			entity.Reinstate(meta.Snapshot)
		}
		meta.Snapshot = nil
	}
	return true
}
