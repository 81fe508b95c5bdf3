package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"caseflow/internal/casefile/models"
	"caseflow/internal/softdelete"
	id "caseflow/pkg/domain"
	"caseflow/pkg/platform/sentinel"
	txcontext "caseflow/pkg/platform/tx"
)

// Postgres persists cases in PostgreSQL. Writes join the request's
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

const caseColumns = `id, tenant_id, title, summary, status, category_id,
	created_at, updated_at, deleted_at, deleted_by, delete_reason, restore_history`

func (s *Postgres) Create(ctx context.Context, c *models.Case) error {
	history, err := marshalHistory(c.Deletion.RestoreHistory)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO cases (` + caseColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.handle(ctx).ExecContext(ctx, query,
		uuid.UUID(c.ID), uuid.UUID(c.TenantID), c.Title, c.Summary, string(c.Status),
		nullableUUID(uuid.UUID(c.CategoryID)),
		c.CreatedAt, c.UpdatedAt,
		c.Deletion.DeletedAt, deletedBy(c.Deletion.DeletedBy), c.Deletion.DeleteReason, history,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, caseID id.CaseID, scope softdelete.Scope) (*models.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = $1`
	if cond := scope.SQLCondition("deleted_at"); cond != "" {
		query += " AND " + cond
	}
	row := s.handle(ctx).QueryRowContext(ctx, query, uuid.UUID(caseID))
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return c, err
}

func (s *Postgres) List(ctx context.Context, tenantID id.TenantID, filter softdelete.Filter, scope softdelete.Scope) ([]*models.Case, error) {
	query, args, err := buildListQuery("SELECT "+caseColumns, tenantID, filter, scope)
	if err != nil {
		return nil, err
	}
	rows, err := s.handle(ctx).QueryContext(ctx, query+" ORDER BY created_at DESC", args...)
	if err != nil {
		return nil, fmt.Errorf("query cases: %w", err)
	}
	defer rows.Close()

	var out []*models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Postgres) Count(ctx context.Context, tenantID id.TenantID, filter softdelete.Filter, scope softdelete.Scope) (int, error) {
	query, args, err := buildListQuery("SELECT COUNT(*)", tenantID, filter, scope)
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.handle(ctx).QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count cases: %w", err)
	}
	return count, nil
}

// CountByStatus groups visible cases by workflow status. The aggregation
// honors the same scope and filter guard as plain reads.
func (s *Postgres) CountByStatus(ctx context.Context, tenantID id.TenantID, filter softdelete.Filter, scope softdelete.Scope) (map[models.CaseStatus]int, error) {
	query, args, err := buildListQuery("SELECT status, COUNT(*)", tenantID, filter, scope)
	if err != nil {
		return nil, err
	}
	rows, err := s.handle(ctx).QueryContext(ctx, query+" GROUP BY status", args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate cases: %w", err)
	}
	defer rows.Close()

	out := make(map[models.CaseStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan aggregation row: %w", err)
		}
		out[models.CaseStatus(status)] = count
	}
	return out, rows.Err()
}

func (s *Postgres) Update(ctx context.Context, c *models.Case) error {
	history, err := marshalHistory(c.Deletion.RestoreHistory)
	if err != nil {
		return err
	}
	query := `
		UPDATE cases
		SET title = $2, summary = $3, status = $4, category_id = $5, updated_at = $6,
			deleted_at = $7, deleted_by = $8, delete_reason = $9, restore_history = $10
		WHERE id = $1
	`
	res, err := s.handle(ctx).ExecContext(ctx, query,
		uuid.UUID(c.ID), c.Title, c.Summary, string(c.Status),
		nullableUUID(uuid.UUID(c.CategoryID)), c.UpdatedAt,
		c.Deletion.DeletedAt, deletedBy(c.Deletion.DeletedBy), c.Deletion.DeleteReason, history,
	)
	if err != nil {
		return fmt.Errorf("update case: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update case: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// buildListQuery assembles the WHERE clause shared by list, count and
// aggregation reads, enforcing the manual deleted_at guard first.
func buildListQuery(selectClause string, tenantID id.TenantID, filter softdelete.Filter, scope softdelete.Scope) (string, []any, error) {
	if err := softdelete.ValidateFilter(filter, scope); err != nil {
		return "", nil, err
	}
	effective := softdelete.EffectiveFilter(filter)

	conditions := []string{"tenant_id = $1"}
	args := []any{uuid.UUID(tenantID)}
	for key, value := range effective {
		switch key {
		case "status", "title":
			args = append(args, toString(value))
		case "category_id":
			args = append(args, toString(value))
		default:
			return "", nil, fmt.Errorf("unsupported filter field %q", key)
		}
		conditions = append(conditions, fmt.Sprintf("%s = $%d", key, len(args)))
	}
	if cond := scope.SQLCondition("deleted_at"); cond != "" {
		conditions = append(conditions, cond)
	}
	return selectClause + " FROM cases WHERE " + strings.Join(conditions, " AND "), args, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*models.Case, error) {
	var (
		c          models.Case
		caseID     uuid.UUID
		tenantID   uuid.UUID
		status     string
		categoryID *uuid.UUID
		deletedBy  *uuid.UUID
		history    []byte
	)
	err := row.Scan(&caseID, &tenantID, &c.Title, &c.Summary, &status, &categoryID,
		&c.CreatedAt, &c.UpdatedAt,
		&c.Deletion.DeletedAt, &deletedBy, &c.Deletion.DeleteReason, &history)
	if err != nil {
		return nil, err
	}
	c.ID = id.CaseID(caseID)
	c.TenantID = id.TenantID(tenantID)
	c.Status = models.CaseStatus(status)
	if categoryID != nil {
		c.CategoryID = id.CategoryID(*categoryID)
	}
	if deletedBy != nil {
		by := id.UserID(*deletedBy)
		c.Deletion.DeletedBy = &by
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &c.Deletion.RestoreHistory); err != nil {
			return nil, fmt.Errorf("unmarshal restore history: %w", err)
		}
	}
	return &c, nil
}

func marshalHistory(history []softdelete.Restoration) ([]byte, error) {
	if len(history) == 0 {
		return nil, nil
	}
	out, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("marshal restore history: %w", err)
	}
	return out, nil
}

func nullableUUID(u uuid.UUID) *uuid.UUID {
	if u == uuid.Nil {
		return nil
	}
	return &u
}

func deletedBy(actor *id.UserID) *uuid.UUID {
	if actor == nil {
		return nil
	}
	u := uuid.UUID(*actor)
	return &u
}

// Schema returns the DDL for the cases table. Used by integration tests and
// the migration entrypoint.
func Schema() string {
	return `
		CREATE TABLE IF NOT EXISTS cases (
			id UUID PRIMARY KEY,
			tenant_id UUID NOT NULL,
			title TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			category_id UUID,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			deleted_at TIMESTAMPTZ,
			deleted_by UUID,
			delete_reason TEXT,
			restore_history JSONB
		);
		CREATE INDEX IF NOT EXISTS idx_cases_tenant ON cases (tenant_id, created_at DESC);
	`
}
