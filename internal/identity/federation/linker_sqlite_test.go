package federation

import (
	"context"
	"errors"
	"testing"
	"time"

	"session-auth/internal/db"
	"session-auth/internal/db/dbtest"
	userdomain "session-auth/internal/user/domain"
	userrepo "session-auth/internal/user/repository"
)

func newSQLiteLinker(t *testing.T) (*Linker, *userrepo.SQLRepository) {
	t.Helper()
	repo := userrepo.NewSQLRepository(dbtest.NewSQLite(t), db.DialectSQLite)
	return NewLinker(repo, nil, nil), repo
}

func TestLinkerSQLite_EmailChangedAtProvider(t *testing.T) {
	ctx := context.Background()
	l, repo := newSQLiteLinker(t)

	first, err := l.ResolveOrCreate(ctx, &FederatedClaims{Subject: "sub-1", Email: "old@example.com", EmailVerified: true})
	if err != nil {
		t.Fatalf("first login: %v", err)
	}
	again, err := l.ResolveOrCreate(ctx, &FederatedClaims{Subject: "sub-1", Email: "new@example.com", EmailVerified: true})
	if err != nil {
		t.Fatalf("login after email change: %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("user id = %q, want %q", again.ID, first.ID)
	}
	if u, err := repo.GetByEmail(ctx, "new@example.com"); err != nil || u != nil {
		t.Errorf("GetByEmail(new) = %+v, %v; want nil, nil", u, err)
	}
}

func TestLinkerSQLite_LinkSubjectOwnedElsewhere(t *testing.T) {
	ctx := context.Background()
	l, repo := newSQLiteLinker(t)

	if _, err := l.ResolveOrCreate(ctx, &FederatedClaims{Subject: "sub-1", Email: "old@example.com", EmailVerified: true}); err != nil {
		t.Fatalf("first login: %v", err)
	}
	now := time.Now().UTC()
	local := &userdomain.User{
		ID:           "local-1",
		Email:        "new@example.com",
		PasswordHash: "$2a$10$hash",
		AuthProvider: userdomain.AuthProviderLocal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := repo.Create(ctx, local); err != nil {
		t.Fatalf("create local user: %v", err)
	}

	_, err := l.ResolveOrCreate(ctx, &FederatedClaims{Subject: "sub-1", Email: "new@example.com", EmailVerified: true})
	if !errors.Is(err, ErrFederationLinkDenied) {
		t.Fatalf("want ErrFederationLinkDenied, got %v", err)
	}
	stored, err := repo.GetByID(ctx, "local-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.FederatedSubjectID != "" || stored.AuthProvider != userdomain.AuthProviderLocal {
		t.Errorf("local user must stay unlinked, got %+v", stored)
	}
}
