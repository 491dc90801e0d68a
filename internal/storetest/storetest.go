// Package storetest opens throwaway, fully migrated stores for package tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/ent-store/internal/infrastructure/database"
	_ "github.com/nerrad567/ent-store/migrations" // registers the embedded schema
)

// OpenDB opens a migrated database in the test's temp dir with the given driver.
// The database is closed when the test completes.
func OpenDB(tb testing.TB, driver string) *database.DB {
	tb.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(tb.TempDir(), "entstore-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
		Driver:      driver,
	})
	if err != nil {
		tb.Fatalf("opening test database: %v", err)
	}
	tb.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if _, err := db.Migrate(context.Background()); err != nil {
		tb.Fatalf("migrating test database: %v", err)
	}
	return db
}

// OpenGuard returns a Guard over a migrated cgo-driver database.
func OpenGuard(tb testing.TB) *database.Guard {
	tb.Helper()
	return database.NewGuard(OpenDB(tb, database.DriverCGO))
}

// OpenGuardWithDriver returns a Guard over a migrated database using driver.
func OpenGuardWithDriver(tb testing.TB, driver string) *database.Guard {
	tb.Helper()
	return database.NewGuard(OpenDB(tb, driver))
}

// Count runs a COUNT query under the guard.
func Count(tb testing.TB, g *database.Guard, query string, args ...any) int {
	tb.Helper()

	var n int
	err := g.Do(context.Background(), func(ctx context.Context, s *database.Session) error {
		return s.QueryRowContext(ctx, query, args...).Scan(&n)
	})
	if err != nil {
		tb.Fatalf("counting rows: %v", err)
	}
	return n
}
