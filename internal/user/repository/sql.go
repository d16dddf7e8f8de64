package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"session-auth/internal/db"
	"session-auth/internal/user/domain"
)

const userColumns = `id, email, name, avatar_url, password_hash, federated_subject_id,
	auth_provider, last_login_at, created_at, updated_at`

// SQLRepository stores users in Postgres or SQLite.
type SQLRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewSQLRepository returns a user repository backed by conn.
func NewSQLRepository(conn *sql.DB, dialect db.Dialect) *SQLRepository {
	return &SQLRepository{db: conn, dialect: dialect}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *SQLRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT `+userColumns+` FROM users WHERE id = $1`), id)
	return scanUser(row)
}

// GetByEmail returns the user with the given email, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *SQLRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT `+userColumns+` FROM users WHERE email = $1`), email)
	return scanUser(row)
}

// GetByFederatedSubject returns the user linked to subject, or nil if none is.
func (r *SQLRepository) GetByFederatedSubject(ctx context.Context, subject string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT `+userColumns+` FROM users WHERE federated_subject_id = $1`), subject)
	return scanUser(row)
}

// Create persists the user. The user must have ID and timestamps set; they are not assigned by this method.
// Returns ErrConflict when the email or federated subject already exists.
func (r *SQLRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(`INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`),
		u.ID, u.Email, u.Name, u.AvatarURL,
		nullString(u.PasswordHash), nullString(u.FederatedSubjectID),
		string(u.AuthProvider), nullTime(u.LastLoginAt),
		u.CreatedAt.UTC(), u.UpdatedAt.UTC(),
	)
	return translate(err)
}

// UpdateFederationLink sets federated_subject_id and auth_provider = federated
// on a user that has no subject yet.
func (r *SQLRepository) UpdateFederationLink(ctx context.Context, userID, subject string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(`UPDATE users
		SET federated_subject_id = $2, auth_provider = $3, updated_at = $4
		WHERE id = $1 AND federated_subject_id IS NULL`),
		userID, subject, string(domain.AuthProviderFederated), at.UTC(),
	)
	if err != nil {
		return translate(err)
	}
	if err := requireOneRow(res); !errors.Is(err, ErrNotFound) {
		return err
	}
	u, err := r.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if u == nil {
		return ErrNotFound
	}
	return ErrAlreadyLinked
}

// TouchLastLogin records a successful login at the given time.
func (r *SQLRepository) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(`UPDATE users SET last_login_at = $2 WHERE id = $1`),
		userID, at.UTC())
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u            domain.User
		passwordHash sql.NullString
		subject      sql.NullString
		provider     string
		lastLogin    db.Timestamp
		createdAt    db.Timestamp
		updatedAt    db.Timestamp
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.AvatarURL, &passwordHash, &subject,
		&provider, &lastLogin, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.PasswordHash = passwordHash.String
	u.FederatedSubjectID = subject.String
	u.AuthProvider = domain.AuthProvider(provider)
	u.LastLoginAt = lastLogin.Ptr()
	u.CreatedAt = createdAt.Time
	u.UpdatedAt = updatedAt.Time
	return &u, nil
}

func translate(err error) error {
	err = db.ClassifyError(err)
	if errors.Is(err, db.ErrUniqueViolation) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
