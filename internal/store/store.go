package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nerrad567/ent-store/internal/audit"
	"github.com/nerrad567/ent-store/internal/infrastructure/config"
	"github.com/nerrad567/ent-store/internal/infrastructure/database"
	"github.com/nerrad567/ent-store/internal/kvstore"
	"github.com/nerrad567/ent-store/internal/observe"
	"github.com/nerrad567/ent-store/internal/propset"
	"github.com/nerrad567/ent-store/internal/skin"
	"github.com/nerrad567/ent-store/internal/vehicle"

	_ "github.com/nerrad567/ent-store/migrations" // registers the embedded schema
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = database.ErrClosed

// Logger is the subset of the structured logger the store uses.
// *slog.Logger and *logging.Logger satisfy it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Option configures Open.
type Option func(*options)

type options struct {
	logger        Logger
	observers     []observe.Observer
	journalSource string
}

// WithLogger sets the logger for lifecycle messages and failed operations.
func WithLogger(logger Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithObserver adds an observer that receives every store operation.
func WithObserver(observer observe.Observer) Option {
	return func(o *options) { o.observers = append(o.observers, observer) }
}

// WithJournal records every successful change in audit_logs, tagged with source.
func WithJournal(source string) Option {
	return func(o *options) { o.journalSource = source }
}

// Store is an open, migrated store.
type Store struct {
	KV       *kvstore.Store
	Vehicles *vehicle.SQLiteRepository
	Skins    *skin.SQLiteRepository
	PropSets *propset.SQLiteRepository
	Audit    *audit.SQLiteRepository

	db      *database.DB
	guard   *database.Guard
	logger  Logger
	applied int
	version int

	closeOnce sync.Once
	closeErr  error
}

// Open opens the database at cfg.Path, brings its schema up to date and
// returns a ready store.
//
// Any failure, including a failed migration, closes the connection and
// returns an error; the caller must not retry operations on a nil store.
//
// Returns:
//   - *Store: Ready for use
//   - error: wrapping database.ErrConnection or database.ErrMigrationFailed
func Open(ctx context.Context, cfg config.DatabaseConfig, opts ...Option) (*Store, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Path,
		Driver:      cfg.Driver,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		o.logger.Error("store open failed", "path", cfg.Path, "error", err)
		return nil, err
	}

	applied, err := db.Migrate(ctx)
	if err != nil {
		db.Close() //nolint:errcheck // Already failing
		o.logger.Error("store migration failed", "path", cfg.Path, "error", err)
		return nil, err
	}

	version, err := db.SchemaVersion(ctx)
	if err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("reading schema version: %w", err)
	}

	guard := database.NewGuard(db)
	s := &Store{
		db:      db,
		guard:   guard,
		logger:  o.logger,
		version: version,
		applied: applied,
		Audit:   audit.NewSQLiteRepository(guard),
	}

	observers := []observe.Observer{observe.LogObserver(o.logger)}
	if o.journalSource != "" {
		observers = append(observers, audit.NewJournal(s.Audit, o.journalSource, o.logger))
	}
	observers = append(observers, o.observers...)
	observer := observe.Multi(observers...)

	s.KV = kvstore.New(guard, observer)
	s.Vehicles = vehicle.NewSQLiteRepository(guard, observer)
	s.Skins = skin.NewSQLiteRepository(guard, observer)
	s.PropSets = propset.NewSQLiteRepository(guard, observer)

	o.logger.Info("store opened",
		"path", db.Path(),
		"driver", db.Driver(),
		"schema_version", version,
		"migrations_applied", applied,
	)
	return s, nil
}

// MigrationsApplied returns how many migrations Open applied.
func (s *Store) MigrationsApplied() int {
	return s.applied
}

// SchemaVersion returns the schema version the store was opened at.
func (s *Store) SchemaVersion() int {
	return s.version
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.db.Path()
}

// Guard returns the access guard. Callers running their own statements must
// hold it for the duration, like every store operation does.
func (s *Store) Guard() *database.Guard {
	return s.guard
}

// Status reports the schema state of the open store.
type Status struct {
	Path          string
	Driver        string
	SchemaVersion int
	LatestVersion int
	Applied       []database.MigrationRecord
}

// Status reads the manifest and migration history.
func (s *Store) Status(ctx context.Context) (*Status, error) {
	st := &Status{Path: s.db.Path(), Driver: s.db.Driver()}

	err := s.guard.Do(ctx, func(ctx context.Context, sess *database.Session) error {
		if err := sess.HealthCheck(ctx); err != nil {
			return err
		}
		version, err := sess.SchemaVersion(ctx)
		if err != nil {
			return err
		}
		st.SchemaVersion = version

		applied, _, err := s.db.GetMigrationStatus(ctx)
		if err != nil {
			return err
		}
		st.Applied = applied
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading store status: %w", err)
	}

	latest, err := database.LatestVersion()
	if err != nil {
		return nil, err
	}
	st.LatestVersion = latest
	return st, nil
}

// Stats returns connection pool statistics.
func (s *Store) Stats() sql.DBStats {
	return s.db.Stats()
}

// MigrateDown reverts the newest applied migration and returns the schema
// version left in place. Development use only.
func (s *Store) MigrateDown(ctx context.Context) (int, error) {
	var version int
	err := s.guard.Do(ctx, func(ctx context.Context, sess *database.Session) error {
		if err := s.db.MigrateDown(ctx); err != nil {
			return err
		}
		v, err := sess.SchemaVersion(ctx)
		version = v
		return err
	})
	if err != nil {
		return 0, err
	}
	s.logger.Warn("store migrated down", "path", s.db.Path(), "schema_version", version)
	return version, nil
}

// Close waits for the in-flight operation and closes the database.
// Safe to call more than once and on a nil store.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.closeErr = s.guard.Close()
		if s.closeErr != nil {
			s.logger.Error("store close failed", "error", s.closeErr)
			return
		}
		s.logger.Info("store closed", "path", s.db.Path())
	})
	return s.closeErr
}
