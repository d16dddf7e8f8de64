package db

import "embed"

// MigrationFS embeds SQL migration files, one directory per dialect
// (migrations/postgres, migrations/sqlite). Used by the migrate runner.
//
//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var MigrationFS embed.FS

// MigrationDir returns the directory inside MigrationFS holding the dialect's migrations.
func MigrationDir(d Dialect) string {
	return "migrations/" + string(d)
}
