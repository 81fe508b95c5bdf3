package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"caseflow/internal/identity/models"
	"caseflow/internal/softdelete"
	id "caseflow/pkg/domain"
	"caseflow/pkg/platform/sentinel"
	txcontext "caseflow/pkg/platform/tx"
)

// Postgres persists users in PostgreSQL. Writes join the request's
// transaction when one is carried in context.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbHandle interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) handle(ctx context.Context) dbHandle {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const userColumns = `id, tenant_id, email, first_name, last_name, active, locked_until,
	created_at, updated_at, deleted_at, deleted_by, delete_reason, restore_history, state_snapshot`

func (s *Postgres) Create(ctx context.Context, u *models.User) error {
	history, snapshot, err := marshalDeletion(&u.Deletion)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = s.handle(ctx).ExecContext(ctx, query,
		uuid.UUID(u.ID), uuid.UUID(u.TenantID), u.Email, u.FirstName, u.LastName,
		u.Active, u.LockedUntil,
		u.CreatedAt, u.UpdatedAt,
		u.Deletion.DeletedAt, deletedBy(u.Deletion.DeletedBy), u.Deletion.DeleteReason, history, snapshot,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, userID id.UserID, scope softdelete.Scope) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if cond := scope.SQLCondition("deleted_at"); cond != "" {
		query += " AND " + cond
	}
	row := s.handle(ctx).QueryRowContext(ctx, query, uuid.UUID(userID))
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return u, err
}

func (s *Postgres) FindByEmail(ctx context.Context, tenantID id.TenantID, email string, scope softdelete.Scope) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = $1 AND email = $2`
	if cond := scope.SQLCondition("deleted_at"); cond != "" {
		query += " AND " + cond
	}
	row := s.handle(ctx).QueryRowContext(ctx, query, uuid.UUID(tenantID), email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return u, err
}

func (s *Postgres) List(ctx context.Context, tenantID id.TenantID, scope softdelete.Scope) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = $1`
	if cond := scope.SQLCondition("deleted_at"); cond != "" {
		query += " AND " + cond
	}
	rows, err := s.handle(ctx).QueryContext(ctx, query+" ORDER BY created_at DESC", uuid.UUID(tenantID))
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Postgres) Update(ctx context.Context, u *models.User) error {
	history, snapshot, err := marshalDeletion(&u.Deletion)
	if err != nil {
		return err
	}
	query := `
		UPDATE users
		SET email = $2, first_name = $3, last_name = $4, active = $5, locked_until = $6,
			updated_at = $7, deleted_at = $8, deleted_by = $9, delete_reason = $10,
			restore_history = $11, state_snapshot = $12
		WHERE id = $1
	`
	res, err := s.handle(ctx).ExecContext(ctx, query,
		uuid.UUID(u.ID), u.Email, u.FirstName, u.LastName, u.Active, u.LockedUntil,
		u.UpdatedAt, u.Deletion.DeletedAt, deletedBy(u.Deletion.DeletedBy), u.Deletion.DeleteReason,
		history, snapshot,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u         models.User
		userID    uuid.UUID
		tenantID  uuid.UUID
		deletedBy *uuid.UUID
		history   []byte
		snapshot  []byte
	)
	err := row.Scan(&userID, &tenantID, &u.Email, &u.FirstName, &u.LastName,
		&u.Active, &u.LockedUntil,
		&u.CreatedAt, &u.UpdatedAt,
		&u.Deletion.DeletedAt, &deletedBy, &u.Deletion.DeleteReason, &history, &snapshot)
	if err != nil {
		return nil, err
	}
	u.ID = id.UserID(userID)
	u.TenantID = id.TenantID(tenantID)
	if deletedBy != nil {
		by := id.UserID(*deletedBy)
		u.Deletion.DeletedBy = &by
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &u.Deletion.RestoreHistory); err != nil {
			return nil, fmt.Errorf("unmarshal restore history: %w", err)
		}
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &u.Deletion.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal state snapshot: %w", err)
		}
	}
	return &u, nil
}

func marshalDeletion(meta *softdelete.Metadata) (history, snapshot []byte, err error) {
	if len(meta.RestoreHistory) > 0 {
		history, err = json.Marshal(meta.RestoreHistory)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal restore history: %w", err)
		}
	}
	if meta.Snapshot != nil {
		snapshot, err = json.Marshal(meta.Snapshot)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal state snapshot: %w", err)
		}
	}
	return history, snapshot, nil
}

func deletedBy(actor *id.UserID) *uuid.UUID {
	if actor == nil {
		return nil
	}
	u := uuid.UUID(*actor)
	return &u
}

// Schema returns the DDL for the users table. Used by integration tests and
// the migration entrypoint.
func Schema() string {
	return `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			email TEXT NOT NULL,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			locked_until TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			deleted_at TIMESTAMPTZ,
			deleted_by UUID,
			delete_reason TEXT,
			restore_history JSONB,
			state_snapshot JSONB
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_tenant_email_live
			ON users (tenant_id, email) WHERE deleted_at IS NULL;
	`
}
