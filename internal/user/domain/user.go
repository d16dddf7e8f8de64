package domain

import (
	"errors"
	"strings"
	"time"
)

// User is the core identity entity.
type User struct {
	ID                 string
	Email              string
	Name               string
	AvatarURL          string
	PasswordHash       string // empty when the user has no local password
	FederatedSubjectID string // empty until linked to a federated identity
	AuthProvider       AuthProvider
	LastLoginAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AuthProvider records how the user was created or last linked.
type AuthProvider string

const (
	AuthProviderLocal     AuthProvider = "local"
	AuthProviderFederated AuthProvider = "federated"
)

// NormalizeEmail trims and lower-cases an email so it can be used as a lookup key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasPassword reports whether the user can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// IsFederationLinked reports whether the user is linked to a federated subject.
func (u *User) IsFederationLinked() bool {
	return u.FederatedSubjectID != ""
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	switch u.AuthProvider {
	case AuthProviderLocal:
		if !u.HasPassword() {
			return errors.New("local user requires a password hash")
		}
	case AuthProviderFederated:
		if !u.IsFederationLinked() {
			return errors.New("federated user requires a subject id")
		}
	default:
		return errors.New("unknown auth provider")
	}
	return nil
}

// Profile is the response-safe view of a User. It carries no credential material.
type Profile struct {
	ID           string
	Email        string
	Name         string
	AvatarURL    string
	AuthProvider AuthProvider
	LastLoginAt  *time.Time
	CreatedAt    time.Time
}

// Profile returns the response-safe projection of u.
func (u *User) Profile() Profile {
	return Profile{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		AvatarURL:    u.AvatarURL,
		AuthProvider: u.AuthProvider,
		LastLoginAt:  u.LastLoginAt,
		CreatedAt:    u.CreatedAt,
	}
}
