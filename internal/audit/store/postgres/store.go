package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"caseflow/internal/audit"
	id "caseflow/pkg/domain"
	txcontext "caseflow/pkg/platform/tx"
)

// Store persists audit events in PostgreSQL. Inserts join the request's
// transaction when one is carried in context; reads always use the pool.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append inserts an audit event. There are no update or delete statements in
// this package; the audit_events table is append-only.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	query := `
		INSERT INTO audit_events (id, actor_id, action, description, timestamp, request_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	var actor *uuid.UUID
	if !event.Actor.IsNil() {
		a := uuid.UUID(event.Actor)
		actor = &a
	}
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		actor,
		string(event.Action),
		event.Description,
		event.Timestamp,
		event.RequestID,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByActor returns events for a specific actor, newest first.
func (s *Store) ListByActor(ctx context.Context, actor id.UserID) ([]audit.Event, error) {
	query := `
		SELECT actor_id, action, description, timestamp, request_id, metadata
		FROM audit_events
		WHERE actor_id = $1
		ORDER BY timestamp DESC
	`
	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(actor))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT actor_id, action, description, timestamp, request_id, metadata
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			event    audit.Event
			actor    *uuid.UUID
			action   string
			metadata []byte
		)
		if err := rows.Scan(&actor, &action, &event.Description, &event.Timestamp, &event.RequestID, &metadata); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		if actor != nil {
			event.Actor = id.UserID(*actor)
		}
		event.Action = audit.Action(action)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &event.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// Schema returns the DDL for the audit_events table. Used by integration
// tests and the migration entrypoint.
func Schema() string {
	return `
		CREATE TABLE IF NOT EXISTS audit_events (
			id UUID PRIMARY KEY,
			actor_id UUID,
			action TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			timestamp TIMESTAMPTZ NOT NULL,
			request_id TEXT NOT NULL DEFAULT '',
			metadata JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_audit_events_actor ON audit_events (actor_id, timestamp DESC);
	`
}
