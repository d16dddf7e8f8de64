package repository

import (
	"context"
	"database/sql"

	"session-auth/internal/audit/domain"
	"session-auth/internal/db"
)

// SQLRepository stores audit logs in Postgres or SQLite.
type SQLRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewSQLRepository returns an audit log repository backed by conn.
func NewSQLRepository(conn *sql.DB, dialect db.Dialect) *SQLRepository {
	return &SQLRepository{db: conn, dialect: dialect}
}

// Create persists the audit log. The audit log must have ID and CreatedAt set.
func (r *SQLRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	meta := a.Metadata
	if meta == "" {
		meta = "{}"
	}
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(`INSERT INTO audit_logs
		(id, user_id, action, resource, device, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`),
		a.ID, sql.NullString{String: a.UserID, Valid: a.UserID != ""},
		a.Action, a.Resource, a.Device, meta, a.CreatedAt.UTC(),
	)
	return err
}

// ListByUser returns audit logs for the user, newest first, paginated by limit and offset.
// Returns (nil, error) only on database errors.
func (r *SQLRepository) ListByUser(ctx context.Context, userID string, limit, offset int32) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(`SELECT id, user_id, action, resource, device, metadata, created_at
		FROM audit_logs WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`), userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a         domain.AuditLog
			uid       sql.NullString
			createdAt db.Timestamp
		)
		if err := rows.Scan(&a.ID, &uid, &a.Action, &a.Resource, &a.Device, &a.Metadata, &createdAt); err != nil {
			return nil, err
		}
		a.UserID = uid.String
		a.CreatedAt = createdAt.Time
		out = append(out, &a)
	}
	return out, rows.Err()
}
