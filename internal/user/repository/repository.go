package repository

import (
	"context"
	"errors"
	"time"

	"session-auth/internal/user/domain"
)

// ErrConflict is returned by Create and UpdateFederationLink when the email or
// federated subject is already taken by another user.
var ErrConflict = errors.New("user: email or federated subject already in use")

// ErrNotFound is returned by updates that match no user.
var ErrNotFound = errors.New("user: not found")

// ErrAlreadyLinked is returned by UpdateFederationLink when the user already
// carries a federated subject.
var ErrAlreadyLinked = errors.New("user: already linked to a federated subject")

// Repository defines persistence for users.
type Repository interface {
	// GetByID returns the user or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByEmail returns the user or nil if not found. email must already be normalized.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// GetByFederatedSubject returns the user linked to subject or nil if none is.
	GetByFederatedSubject(ctx context.Context, subject string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	// UpdateFederationLink binds subject to an unlinked user and sets
	// auth_provider to federated. The password hash is left untouched. A user
	// that is already linked is not modified and yields ErrAlreadyLinked.
	UpdateFederationLink(ctx context.Context, userID, subject string, at time.Time) error
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
}
