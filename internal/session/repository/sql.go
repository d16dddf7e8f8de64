package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"session-auth/internal/db"
	"session-auth/internal/session/domain"
)

const sessionColumns = `id, user_id, token_fingerprint, device, expires_at, revoked, created_at`

// SQLRepository stores the refresh token ledger in the refresh_tokens table.
type SQLRepository struct {
	db      *sql.DB
	dialect db.Dialect
	now     func() time.Time
}

// NewSQLRepository returns a ledger backed by conn. now may be nil (time.Now).
func NewSQLRepository(conn *sql.DB, dialect db.Dialect, now func() time.Time) *SQLRepository {
	if now == nil {
		now = time.Now
	}
	return &SQLRepository{db: conn, dialect: dialect, now: now}
}

// Store inserts a new ledger entry. A blank device is recorded as domain.DefaultDevice.
func (r *SQLRepository) Store(ctx context.Context, userID, fingerprint, device string, expiresAt time.Time) (*domain.Session, error) {
	s := &domain.Session{
		ID:               uuid.New().String(),
		UserID:           userID,
		TokenFingerprint: fingerprint,
		Device:           domain.DeviceOrDefault(device),
		ExpiresAt:        expiresAt.UTC(),
		CreatedAt:        r.now().UTC(),
	}
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(`INSERT INTO refresh_tokens (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`),
		s.ID, s.UserID, s.TokenFingerprint, s.Device, s.ExpiresAt, false, s.CreatedAt,
	)
	if err != nil {
		err = db.ClassifyError(err)
		switch {
		case errors.Is(err, db.ErrUniqueViolation):
			return nil, fmt.Errorf("%w: %w", ErrDuplicateFingerprint, err)
		case errors.Is(err, db.ErrForeignKeyViolation):
			return nil, fmt.Errorf("%w: %w", ErrUnknownUser, err)
		}
		return nil, err
	}
	return s, nil
}

// Consume deletes and returns the non-revoked entry in a single statement, so
// two concurrent callers cannot both observe it. An entry found past its
// expiry is still deleted and reported as ErrExpired.
func (r *SQLRepository) Consume(ctx context.Context, fingerprint string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(`DELETE FROM refresh_tokens
		WHERE token_fingerprint = $1 AND revoked = false
		RETURNING `+sessionColumns), fingerprint)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !s.Usable(r.now()) {
		return s, ErrExpired
	}
	return s, nil
}

// RevokeByFingerprint deletes the entry for fingerprint if present.
func (r *SQLRepository) RevokeByFingerprint(ctx context.Context, fingerprint string) error {
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(`DELETE FROM refresh_tokens WHERE token_fingerprint = $1`), fingerprint)
	return err
}

// RevokeAllForUser flags all of the user's entries revoked.
func (r *SQLRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(`UPDATE refresh_tokens SET revoked = true
		WHERE user_id = $1 AND revoked = false`), userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PurgeExpired deletes revoked entries and entries that expired at or before before.
func (r *SQLRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(`DELETE FROM refresh_tokens
		WHERE expires_at <= $1 OR revoked = true`), before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanSession(row *sql.Row) (*domain.Session, error) {
	var (
		s         domain.Session
		expiresAt db.Timestamp
		createdAt db.Timestamp
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.TokenFingerprint, &s.Device, &expiresAt, &s.Revoked, &createdAt); err != nil {
		return nil, err
	}
	s.ExpiresAt = expiresAt.Time
	s.CreatedAt = createdAt.Time
	return &s, nil
}
