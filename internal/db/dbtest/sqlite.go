// Package dbtest opens migrated SQLite databases for tests.
package dbtest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"session-auth/internal/db"
	"session-auth/internal/db/migrate"
)

// NewSQLite creates a fresh SQLite database file under t.TempDir, applies all
// migrations and returns an open connection that is closed on cleanup.
func NewSQLite(t testing.TB) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auth.db")
	if err := migrate.Run(db.DialectSQLite, path, "up"); err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	conn, err := db.Open(db.DialectSQLite, path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
