package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Guard serialises every use of the single database connection.
//
// A caller holds the guard for the full duration of an operation, including
// any transaction it opens, so statements from two goroutines are never
// interleaved on the connection. Every access, read or write, takes the same
// exclusive lock. There is no acquire timeout.
//
// Guarded operations must not call back into another guarded operation;
// the mutex is not reentrant.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Guard struct {
	mu     sync.Mutex
	db     *DB
	closed bool
}

// NewGuard takes ownership of db. After this call the connection must only
// be reached through the returned Guard.
func NewGuard(db *DB) *Guard {
	return &Guard{db: db}
}

// Acquire locks the guard and returns a session bound to it.
// The caller must call Session.Release, typically via defer.
//
// Returns:
//   - *Session: Exclusive access to the connection
//   - error: ErrClosed if the guard has been closed
func (g *Guard) Acquire() (*Session, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, ErrClosed
	}
	return &Session{guard: g}, nil
}

// Do runs fn while holding the guard. The guard is released on every exit
// path, including a panic inside fn.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	s, err := g.Acquire()
	if err != nil {
		return err
	}
	defer s.Release()

	return fn(ctx, s)
}

// Transaction runs fn inside a transaction while holding the guard.
// If fn returns an error or the commit fails the transaction is rolled back
// and the error is reported as ErrTransaction. Callbacks registered with
// Session.AfterCommit run only after a successful commit.
//
// Example:
//
//	err := guard.Transaction(ctx, func(ctx context.Context, s *database.Session) error {
//	    if _, err := s.ExecContext(ctx, deleteChildren, slot); err != nil {
//	        return err
//	    }
//	    _, err := s.ExecContext(ctx, deleteParent, slot)
//	    return err
//	})
func (g *Guard) Transaction(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	return g.Do(ctx, func(ctx context.Context, s *Session) error {
		if err := s.BeginTransaction(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrTransaction, err)
		}
		if err := fn(ctx, s); err != nil {
			return fmt.Errorf("%w: %w", ErrTransaction, err)
		}
		if err := s.EndTransaction(); err != nil {
			return fmt.Errorf("%w: %w", ErrTransaction, err)
		}
		return nil
	})
}

// Close waits for any in-flight operation, closes the connection and marks
// the guard closed. Later acquisitions return ErrClosed. Safe to call more
// than once.
func (g *Guard) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}
	g.closed = true
	return g.db.Close()
}

// Closed reports whether Close has been called.
func (g *Guard) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Session is exclusive, scoped access to the connection. Statements issued
// through a session run inside its transaction when one has begun.
//
// A Session is not safe for concurrent use; it belongs to the goroutine that
// acquired it.
type Session struct {
	guard       *Guard
	tx          *sql.Tx
	afterCommit []func()
	released    bool
}

// InTransaction reports whether a transaction has begun and not yet ended.
func (s *Session) InTransaction() bool {
	return s.tx != nil
}

// BeginTransaction opens a transaction on the session.
//
// Returns:
//   - error: ErrTransactionActive if a transaction has already begun
func (s *Session) BeginTransaction(ctx context.Context) error {
	if s.released {
		return ErrSessionReleased
	}
	if s.tx != nil {
		return ErrTransactionActive
	}

	tx, err := s.guard.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	s.tx = tx
	return nil
}

// EndTransaction commits the open transaction and then runs the callbacks
// queued with AfterCommit, still under the guard.
func (s *Session) EndTransaction() error {
	if s.tx == nil {
		return ErrNoTransaction
	}

	tx := s.tx
	s.tx = nil
	callbacks := s.afterCommit
	s.afterCommit = nil

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	for _, fn := range callbacks {
		fn()
	}
	return nil
}

// RollbackTransaction aborts the open transaction and drops queued callbacks.
func (s *Session) RollbackTransaction() error {
	if s.tx == nil {
		return ErrNoTransaction
	}

	tx := s.tx
	s.tx = nil
	s.afterCommit = nil

	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}

// AfterCommit queues fn to run once the current transaction commits.
// Outside a transaction fn runs immediately.
func (s *Session) AfterCommit(fn func()) {
	if s.tx == nil {
		fn()
		return
	}
	s.afterCommit = append(s.afterCommit, fn)
}

// Release rolls back any transaction still open and unlocks the guard.
// Safe to call more than once.
func (s *Session) Release() {
	if s.released {
		return
	}
	s.released = true

	if s.tx != nil {
		s.tx.Rollback() //nolint:errcheck // Abandoned transaction; nothing to report
		s.tx = nil
	}
	s.afterCommit = nil
	s.guard.mu.Unlock()
}

// ExecContext executes a statement on the transaction, or the connection when none is open.
func (s *Session) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if s.released {
		return nil, ErrSessionReleased
	}
	if s.tx != nil {
		return s.tx.ExecContext(ctx, query, args...)
	}
	return s.guard.db.ExecContext(ctx, query, args...)
}

// QueryContext executes a query that returns rows.
func (s *Session) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if s.released {
		return nil, ErrSessionReleased
	}
	if s.tx != nil {
		return s.tx.QueryContext(ctx, query, args...)
	}
	return s.guard.db.DB.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query that returns at most one row.
func (s *Session) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	if s.tx != nil {
		return s.tx.QueryRowContext(ctx, query, args...)
	}
	return s.guard.db.QueryRowContext(ctx, query, args...)
}

// PrepareContext prepares a statement for repeated execution within the session.
// The caller must close the statement before releasing the session.
func (s *Session) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	if s.released {
		return nil, ErrSessionReleased
	}
	if s.tx != nil {
		return s.tx.PrepareContext(ctx, query)
	}
	return s.guard.db.PrepareContext(ctx, query)
}

// HealthCheck verifies the connection while the guard is held.
func (s *Session) HealthCheck(ctx context.Context) error {
	return s.guard.db.HealthCheck(ctx)
}

// SchemaVersion returns the stored manifest version.
func (s *Session) SchemaVersion(ctx context.Context) (int, error) {
	return s.guard.db.SchemaVersion(ctx)
}

// Path returns the database file path.
func (s *Session) Path() string {
	return s.guard.db.Path()
}
