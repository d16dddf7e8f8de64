package migrate

import (
	"database/sql"
	"testing"
)

func tableExists(t *testing.T, conn *sql.DB, name string) bool {
	t.Helper()
	var count int
	err := conn.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return count > 0
}
