package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func linkInput(verified bool) LinkInput {
	return LinkInput{
		User:   LinkUser{ID: "u1", Email: "a@example.com", AuthProvider: "local", HasPassword: true},
		Claims: LinkClaims{Subject: "sub-1", Email: "a@example.com", EmailVerified: verified},
	}
}

func TestOPALinkEvaluator_HealthCheck(t *testing.T) {
	e, err := NewOPALinkEvaluator(context.Background(), "")
	if err != nil {
		t.Fatalf("NewOPALinkEvaluator: %v", err)
	}
	if err := e.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestOPALinkEvaluator_DefaultPolicy(t *testing.T) {
	ctx := context.Background()
	e, err := NewOPALinkEvaluator(ctx, "")
	if err != nil {
		t.Fatalf("NewOPALinkEvaluator: %v", err)
	}

	allow, err := e.AllowLink(ctx, linkInput(true))
	if err != nil {
		t.Fatalf("AllowLink: %v", err)
	}
	if !allow {
		t.Error("verified email should be allowed to link")
	}

	allow, err = e.AllowLink(ctx, linkInput(false))
	if err != nil {
		t.Fatalf("AllowLink: %v", err)
	}
	if allow {
		t.Error("unverified email must not link")
	}

	in := linkInput(true)
	in.Claims.Email = "other@example.com"
	if allow, _ := e.AllowLink(ctx, in); allow {
		t.Error("email mismatch must not link")
	}
}

func TestOPALinkEvaluator_CustomPolicy(t *testing.T) {
	ctx := context.Background()
	policy := `package sessionauth.federation

default allow_link := false

allow_link if {
	input.claims.email_verified
	not input.user.has_password
}
`
	e, err := NewOPALinkEvaluator(ctx, policy)
	if err != nil {
		t.Fatalf("NewOPALinkEvaluator: %v", err)
	}
	allow, err := e.AllowLink(ctx, linkInput(true))
	if err != nil {
		t.Fatalf("AllowLink: %v", err)
	}
	if allow {
		t.Error("policy forbids linking password accounts")
	}
}

func TestOPALinkEvaluator_UndefinedRuleDenies(t *testing.T) {
	ctx := context.Background()
	e, err := NewOPALinkEvaluator(ctx, "package sessionauth.federation\n\nsomething_else := true\n")
	if err != nil {
		t.Fatalf("NewOPALinkEvaluator: %v", err)
	}
	allow, err := e.AllowLink(ctx, linkInput(true))
	if err != nil {
		t.Fatalf("AllowLink: %v", err)
	}
	if allow {
		t.Error("undefined allow_link should deny")
	}
}

func TestNewOPALinkEvaluator_InvalidPolicy(t *testing.T) {
	if _, err := NewOPALinkEvaluator(context.Background(), "package broken\n\nallow_link if {"); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestLoadLinkPolicy(t *testing.T) {
	p, err := LoadLinkPolicy("")
	if err != nil || p != DefaultLinkPolicy {
		t.Fatalf("LoadLinkPolicy(\"\") = %q, %v", p, err)
	}
	path := filepath.Join(t.TempDir(), "link.rego")
	if err := os.WriteFile(path, []byte("package sessionauth.federation\n"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	p, err = LoadLinkPolicy(path)
	if err != nil || p != "package sessionauth.federation\n" {
		t.Fatalf("LoadLinkPolicy(file) = %q, %v", p, err)
	}
	if _, err := LoadLinkPolicy(filepath.Join(t.TempDir(), "missing.rego")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
