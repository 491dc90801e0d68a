package database

import "errors"

// Domain-specific errors for the storage layer.
var (
	// ErrConnection is returned when the database file cannot be opened or created.
	ErrConnection = errors.New("database: connection failed")

	// ErrMigrationFailed is returned when a schema upgrade step fails.
	// The store is left at its previous manifest version.
	ErrMigrationFailed = errors.New("database: migration failed")

	// ErrSchemaTooNew is returned when the stored manifest version is ahead of the embedded migrations.
	ErrSchemaTooNew = errors.New("database: schema version is newer than this build")

	// ErrTransaction is returned when a multi-statement unit fails and is rolled back.
	ErrTransaction = errors.New("database: transaction failed")

	// ErrTransactionActive is returned when a transaction is begun while one is already open.
	ErrTransactionActive = errors.New("database: transaction already begun")

	// ErrNoTransaction is returned when ending a transaction that was never begun.
	ErrNoTransaction = errors.New("database: no transaction in progress")

	// ErrClosed is returned when the guard is used after Close.
	ErrClosed = errors.New("database: store is closed")

	// ErrSessionReleased is returned when a session is used after Release.
	ErrSessionReleased = errors.New("database: session already released")
)
