package repository

import (
	"context"
	"errors"
	"time"

	"session-auth/internal/session/domain"
)

var (
	// ErrNotFound means no usable ledger entry matched the fingerprint.
	ErrNotFound = errors.New("session: not found")
	// ErrExpired means the entry existed but had expired; it has been removed.
	ErrExpired = errors.New("session: expired")
	// ErrDuplicateFingerprint is returned by Store when the fingerprint is already recorded.
	ErrDuplicateFingerprint = errors.New("session: duplicate token fingerprint")
	// ErrUnknownUser is returned by Store when the user does not exist.
	ErrUnknownUser = errors.New("session: unknown user")
)

// Repository is the refresh token ledger.
type Repository interface {
	Store(ctx context.Context, userID, fingerprint, device string, expiresAt time.Time) (*domain.Session, error)
	// Consume atomically removes the non-revoked entry for fingerprint and
	// returns it. Of two concurrent calls for the same fingerprint at most one
	// gets the entry.
	Consume(ctx context.Context, fingerprint string) (*domain.Session, error)
	// RevokeByFingerprint removes the entry. A missing entry is not an error.
	RevokeByFingerprint(ctx context.Context, fingerprint string) error
	// RevokeAllForUser marks every entry of the user revoked and returns how many were.
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
	// PurgeExpired deletes entries that expired before the given time or are revoked.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}
