package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Migration filename parsing constants.
const (
	// migrationFilenameParts is the expected number of parts in a migration filename.
	// Format: NNNN_description.up.sql (2 parts when split on the first "_")
	migrationFilenameParts = 2
)

// MigrationsFS should be set by the main package to embed migration files.
// This allows the migrations to be compiled into the binary.
//
// Usage in a migrations package:
//
//	//go:embed *.sql
//	var migrationsFS embed.FS
//
//	func init() {
//	    database.MigrationsFS = migrationsFS
//	    database.MigrationsDir = "."
//	}
var MigrationsFS embed.FS

// MigrationsDir is the directory within MigrationsFS containing migration files.
// Can be set to "." if files are at the root of the embedded filesystem.
var MigrationsDir = "migrations"

// Migration represents a single database migration.
type Migration struct {
	// Version is the manifest version this migration brings the store to.
	// Taken from the numeric filename prefix (e.g., 0003_saved_skins.up.sql is version 3).
	Version int

	// Name is the human-readable migration name.
	Name string

	// UpSQL contains the SQL to apply this migration.
	UpSQL string

	// DownSQL contains the SQL to rollback this migration.
	DownSQL string
}

// MigrationRecord represents a row in the schema_migrations table.
type MigrationRecord struct {
	Version   int
	Name      string
	AppliedAt time.Time
}

// execQuerier is satisfied by both *sql.DB and *sql.Tx.
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Migrate brings the stored schema up to the newest embedded migration.
//
// # Atomicity
//
// All pending migrations run in ONE transaction together with the manifest
// update. If migration N fails, every statement from migrations 1..N is
// rolled back and the store keeps its previous manifest version.
//
// This method:
//  1. Creates the manifest tables if they don't exist
//  2. Reads the stored manifest version
//  3. Rejects a store whose version is newer than the embedded set
//  4. Applies each migration above the stored version, in order
//  5. Records each migration and writes the new manifest version
//
// A store that is already current performs no writes: the transaction is
// rolled back and 0 is returned.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - int: Number of migrations applied
//   - error: ErrMigrationFailed (or ErrSchemaTooNew) if the upgrade could not complete
func (db *DB) Migrate(ctx context.Context) (int, error) {
	migrations, err := loadMigrations()
	if err != nil {
		return 0, fmt.Errorf("%w: loading migrations: %w", ErrMigrationFailed, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if err := createManifestTables(ctx, tx); err != nil {
		return 0, fmt.Errorf("%w: creating manifest tables: %w", ErrMigrationFailed, err)
	}

	current, err := readManifestVersion(ctx, tx)
	if err != nil {
		return 0, fmt.Errorf("%w: reading manifest version: %w", ErrMigrationFailed, err)
	}

	latest := latestVersion(migrations)
	if current > latest {
		return 0, fmt.Errorf("%w: %w: stored %d, known %d", ErrMigrationFailed, ErrSchemaTooNew, current, latest)
	}

	pending := pendingMigrations(migrations, current)
	if len(pending) == 0 {
		return 0, nil // Already current
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, m := range pending {
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			return 0, fmt.Errorf("%w: applying migration %04d (%s): %w", ErrMigrationFailed, m.Version, m.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, now,
		); err != nil {
			return 0, fmt.Errorf("%w: recording migration %04d: %w", ErrMigrationFailed, m.Version, err)
		}
	}

	if err := writeManifestVersion(ctx, tx, latest, now); err != nil {
		return 0, fmt.Errorf("%w: writing manifest version: %w", ErrMigrationFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: committing migrations: %w", ErrMigrationFailed, err)
	}
	return len(pending), nil
}

// MigrateDown rolls back the most recent migration.
// This is primarily for development and testing.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: If rollback fails
func (db *DB) MigrateDown(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	exists, err := manifestExists(ctx, tx)
	if err != nil {
		return err
	}
	if !exists {
		return nil // Nothing to rollback
	}

	current, err := readManifestVersion(ctx, tx)
	if err != nil {
		return fmt.Errorf("reading manifest version: %w", err)
	}
	if current == 0 {
		return nil // Nothing to rollback
	}

	var migration *Migration
	previous := 0
	for i := range migrations {
		m := migrations[i]
		if m.Version == current {
			migration = &migrations[i]
		} else if m.Version < current && m.Version > previous {
			previous = m.Version
		}
	}

	if migration == nil {
		return fmt.Errorf("migration %04d not found in filesystem", current)
	}

	if migration.DownSQL == "" {
		return fmt.Errorf("migration %04d has no down SQL", current)
	}

	if _, err := tx.ExecContext(ctx, migration.DownSQL); err != nil {
		return fmt.Errorf("executing down SQL: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version = ?", current); err != nil {
		return fmt.Errorf("removing migration record: %w", err)
	}

	if err := writeManifestVersion(ctx, tx, previous, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("writing manifest version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rollback: %w", err)
	}
	return nil
}

// GetMigrationStatus returns the applied and pending migrations.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - applied: Migrations recorded in the store, oldest first
//   - pending: Embedded migrations above the stored manifest version
//   - error: If status cannot be determined
func (db *DB) GetMigrationStatus(ctx context.Context) (applied []MigrationRecord, pending []Migration, err error) {
	migrations, err := loadMigrations()
	if err != nil {
		return nil, nil, fmt.Errorf("loading migrations: %w", err)
	}

	current, err := db.SchemaVersion(ctx)
	if err != nil {
		return nil, nil, err
	}

	applied, err = getAppliedMigrations(ctx, db.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("getting applied migrations: %w", err)
	}

	return applied, pendingMigrations(migrations, current), nil
}

// SchemaVersion returns the stored manifest version, or 0 for a store that
// has never been migrated.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	exists, err := manifestExists(ctx, db.DB)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	version, err := readManifestVersion(ctx, db.DB)
	if err != nil {
		return 0, fmt.Errorf("reading manifest version: %w", err)
	}
	return version, nil
}

// LatestVersion returns the highest version among the embedded migrations.
func LatestVersion() (int, error) {
	migrations, err := loadMigrations()
	if err != nil {
		return 0, err
	}
	return latestVersion(migrations), nil
}

// createManifestTables creates the manifest and history tables.
func createManifestTables(ctx context.Context, q execQuerier) error {
	_, err := q.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_manifest (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			version INTEGER NOT NULL,
			updated_at TEXT NOT NULL
		) STRICT;
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL
		) STRICT;
	`)
	return err
}

// manifestExists reports whether the manifest table has been created.
func manifestExists(ctx context.Context, q execQuerier) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_manifest'",
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking manifest table: %w", err)
	}
	return count > 0, nil
}

// readManifestVersion returns the stored version, 0 when no row exists.
func readManifestVersion(ctx context.Context, q execQuerier) (int, error) {
	var version int
	err := q.QueryRowContext(ctx, "SELECT version FROM schema_manifest WHERE id = 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

// writeManifestVersion upserts the single manifest row.
func writeManifestVersion(ctx context.Context, q execQuerier, version int, now string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO schema_manifest (id, version, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET version = excluded.version, updated_at = excluded.updated_at
	`, version, now)
	return err
}

// getAppliedMigrations returns all recorded migrations, oldest first.
func getAppliedMigrations(ctx context.Context, q execQuerier) ([]MigrationRecord, error) {
	exists, err := manifestExists(ctx, q)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	rows, err := q.QueryContext(ctx,
		"SELECT version, name, applied_at FROM schema_migrations ORDER BY version",
	)
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	var records []MigrationRecord
	for rows.Next() {
		var r MigrationRecord
		var appliedAt string
		if err := rows.Scan(&r.Version, &r.Name, &appliedAt); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}
		// Parse timestamp - ignore error as format is controlled by us
		r.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt) //nolint:errcheck // Format is controlled
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return records, nil
}

// pendingMigrations returns the migrations above version, in order.
func pendingMigrations(migrations []Migration, version int) []Migration {
	var pending []Migration
	for _, m := range migrations {
		if m.Version > version {
			pending = append(pending, m)
		}
	}
	return pending
}

// latestVersion returns the highest version, 0 for an empty set.
func latestVersion(migrations []Migration) int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}

// loadMigrations loads all migration files from the embedded filesystem.
func loadMigrations() ([]Migration, error) {
	// Check if MigrationsFS has been set
	var empty embed.FS
	if MigrationsFS == empty {
		return nil, nil // No embedded migrations
	}

	entries, err := fs.ReadDir(MigrationsFS, MigrationsDir)
	if err != nil {
		// Directory might not exist if no migrations
		return nil, nil
	}

	upFiles, downFiles, err := categoriseMigrationFiles(entries)
	if err != nil {
		return nil, err
	}

	migrations, err := buildMigrations(upFiles, downFiles)
	if err != nil {
		return nil, err
	}

	// Sort by version (oldest first)
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// categoriseMigrationFiles groups migration files by version and direction.
// Two files claiming the same version and direction is an error.
func categoriseMigrationFiles(entries []fs.DirEntry) (upFiles, downFiles map[int]string, err error) {
	upFiles = make(map[int]string)
	downFiles = make(map[int]string)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		version, isUp, ok := parseMigrationFilename(name)
		if !ok {
			continue
		}

		target := downFiles
		if isUp {
			target = upFiles
		}
		if existing, dup := target[version]; dup {
			return nil, nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, existing, name)
		}
		target[version] = name
	}

	return upFiles, downFiles, nil
}

// parseMigrationFilename extracts version and direction from a migration filename.
// Returns version, isUp (true for .up.sql, false for .down.sql), and ok (true if valid).
// Version 0 is reserved for an unmigrated store and is rejected.
func parseMigrationFilename(name string) (version int, isUp bool, ok bool) {
	if !strings.HasSuffix(name, ".sql") {
		return 0, false, false
	}

	base := strings.TrimSuffix(name, ".sql")

	switch {
	case strings.HasSuffix(base, ".up"):
		isUp = true
		base = strings.TrimSuffix(base, ".up")
	case strings.HasSuffix(base, ".down"):
		isUp = false
		base = strings.TrimSuffix(base, ".down")
	default:
		return 0, false, false
	}

	// Extract version (NNNN from NNNN_description)
	parts := strings.SplitN(base, "_", migrationFilenameParts)
	if len(parts) < migrationFilenameParts || parts[1] == "" {
		return 0, false, false
	}

	version, err := strconv.Atoi(parts[0])
	if err != nil || version <= 0 {
		return 0, false, false
	}

	return version, isUp, true
}

// buildMigrations creates Migration structs from categorised files.
// A down file without a matching up file is ignored.
func buildMigrations(upFiles, downFiles map[int]string) ([]Migration, error) {
	var migrations []Migration

	for version, upFile := range upFiles {
		m, err := buildMigration(version, upFile, downFiles[version])
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, m)
	}

	return migrations, nil
}

// buildMigration creates a single Migration from its files.
func buildMigration(version int, upFile, downFile string) (Migration, error) {
	upSQL, err := fs.ReadFile(MigrationsFS, filepath.Join(MigrationsDir, upFile))
	if err != nil {
		return Migration{}, fmt.Errorf("reading %s: %w", upFile, err)
	}

	m := Migration{
		Version: version,
		Name:    extractMigrationName(upFile),
		UpSQL:   string(upSQL),
	}

	if downFile != "" {
		downSQL, err := fs.ReadFile(MigrationsFS, filepath.Join(MigrationsDir, downFile))
		if err != nil {
			return Migration{}, fmt.Errorf("reading %s: %w", downFile, err)
		}
		m.DownSQL = string(downSQL)
	}

	return m, nil
}

// extractMigrationName extracts a human-readable name from the filename.
// Example: "0002_saved_vehicles.up.sql" -> "saved_vehicles"
func extractMigrationName(filename string) string {
	base := strings.TrimSuffix(filename, ".sql")
	base = strings.TrimSuffix(base, ".up")
	base = strings.TrimSuffix(base, ".down")

	parts := strings.SplitN(base, "_", migrationFilenameParts)
	if len(parts) == migrationFilenameParts {
		return parts[1] // The description part
	}
	return base
}
