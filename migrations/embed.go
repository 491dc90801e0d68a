// Package migrations embeds SQL migration files into the binary.
//
// This allows the store to run migrations without needing the SQL files
// present on the filesystem - they're compiled into the executable.
//
// Files are named NNNN_description.up.sql / NNNN_description.down.sql; the
// numeric prefix is the manifest version the migration brings the store to.
package migrations

import (
	"embed"

	"github.com/nerrad567/ent-store/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	// Register embedded migrations with the database package.
	// The embed directive above captures all .sql files in this directory.
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // Files are at root of embedded FS
}
