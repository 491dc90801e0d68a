// Package database provides SQLite connectivity for the trainer store.
//
// This package manages:
//   - The single connection to the embedded database file (DB)
//   - Schema migrations against an integer manifest version (Migrate)
//   - Serialised, transaction-aware access to that connection (Guard, Session)
//
// Two SQLite bindings are available: github.com/mattn/go-sqlite3 (cgo,
// default) and modernc.org/sqlite (pure Go). Both are registered; Config.Driver
// picks one.
//
// Security Considerations:
//   - All queries use parameterised statements (no SQL injection)
//   - Database file permissions are set to 0600 (owner read/write only)
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: "./data/entstore.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//
//	// Run migrations before anything else touches the store
//	if _, err := db.Migrate(ctx); err != nil {
//	    db.Close()
//	    return err
//	}
//
//	guard := database.NewGuard(db)
//	defer guard.Close()
//
//	err = guard.Transaction(ctx, func(ctx context.Context, s *database.Session) error {
//	    _, err := s.ExecContext(ctx, "UPDATE saved_skins SET save_name = ? WHERE id = ?", name, slot)
//	    return err
//	})
//
// Migration Strategy:
//
// Migration files are named NNNN_description.up.sql with an optional
// NNNN_description.down.sql. The numeric prefix is the manifest version.
// Every pending migration for one upgrade runs in a single transaction,
// so a failed upgrade leaves the store exactly as it was.
package database
