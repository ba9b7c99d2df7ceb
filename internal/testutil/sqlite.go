// Package testutil holds helpers shared by package tests.
package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"flowbar/backend/internal/db"
)

// OpenDB opens a migrated SQLite database in a temp dir, closed on cleanup.
func OpenDB(t testing.TB) *sql.DB {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	if err := db.RunMigrations(database, ""); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return database
}
