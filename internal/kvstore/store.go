package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nerrad567/ent-store/internal/infrastructure/database"
	"github.com/nerrad567/ent-store/internal/observe"
)

// Store reads and writes flags and settings through the access guard.
type Store struct {
	guard    *database.Guard
	observer observe.Observer

	// Guarded by guard; never touched without holding it.
	flags    map[string]bool
	settings map[string]string
}

// New creates a Store. A nil observer discards operation reports.
func New(guard *database.Guard, observer observe.Observer) *Store {
	if observer == nil {
		observer = observe.Nop
	}
	return &Store{
		guard:    guard,
		observer: observer,
		flags:    make(map[string]bool),
		settings: make(map[string]string),
	}
}

// StoreFeatureEnabledPairs upserts each binding's current value by name in a
// single transaction. Bindings whose value matches the cache, or an earlier
// binding of the same name in the batch, are skipped; the last one wins.
// Any failure rolls back the whole batch and leaves the cache untouched.
func (s *Store) StoreFeatureEnabledPairs(ctx context.Context, bindings []FlagBinding) (err error) {
	span := observe.Start(s.observer, observe.FamilyFlags, observe.ActionStore, -1)
	written := 0
	defer func() { span.Done(ctx, written, err) }()

	if err := validateBindings(bindings); err != nil {
		return err
	}

	const query = `INSERT INTO feature_flags (name, enabled) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET enabled = excluded.enabled`

	return s.guard.Transaction(ctx, func(ctx context.Context, sess *database.Session) error {
		stmt, err := sess.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("preparing flag upsert: %w", err)
		}
		defer stmt.Close()

		changed := make(map[string]bool, len(bindings))
		for _, b := range bindings {
			value := *b.Enabled
			if current, ok := currentFlag(changed, s.flags, b.Name); ok && current == value {
				continue
			}
			if _, err := stmt.ExecContext(ctx, b.Name, value); err != nil {
				return fmt.Errorf("storing flag %s: %w", b.Name, err)
			}
			changed[b.Name] = value
		}

		sess.AfterCommit(func() {
			for name, value := range changed {
				s.flags[name] = value
			}
			written = len(changed)
		})
		return nil
	})
}

// LoadFeatureEnabledPairs reads each named flag. Found values are written to
// the binding's target and the cache, and mark Updated when one is supplied.
// Missing names leave the target at its default.
func (s *Store) LoadFeatureEnabledPairs(ctx context.Context, bindings []FlagBinding) (err error) {
	span := observe.Start(s.observer, observe.FamilyFlags, observe.ActionLoad, -1)
	found := 0
	defer func() { span.Done(ctx, found, err) }()

	if err := validateBindings(bindings); err != nil {
		return err
	}

	const query = `SELECT enabled FROM feature_flags WHERE name = ?`

	return s.guard.Do(ctx, func(ctx context.Context, sess *database.Session) error {
		for _, b := range bindings {
			var enabled bool
			err := sess.QueryRowContext(ctx, query, b.Name).Scan(&enabled)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("loading flag %s: %w", b.Name, err)
			}

			*b.Enabled = enabled
			if b.Updated != nil {
				*b.Updated = true
			}
			s.flags[b.Name] = enabled
			found++
		}
		return nil
	})
}

// currentFlag returns the value name will hold once the batch commits:
// an earlier entry of the same batch wins over the cache.
func currentFlag(batch, cache map[string]bool, name string) (bool, bool) {
	if v, ok := batch[name]; ok {
		return v, true
	}
	v, ok := cache[name]
	return v, ok
}

func currentSetting(batch, cache map[string]string, name string) (string, bool) {
	if v, ok := batch[name]; ok {
		return v, true
	}
	v, ok := cache[name]
	return v, ok
}

// StoreSettingPairs upserts each setting by name in a single transaction.
// Settings whose value matches the cache, or an earlier entry of the same
// name in the batch, are skipped; the last one wins.
func (s *Store) StoreSettingPairs(ctx context.Context, settings []Setting) (err error) {
	span := observe.Start(s.observer, observe.FamilySettings, observe.ActionStore, -1)
	written := 0
	defer func() { span.Done(ctx, written, err) }()

	for i, st := range settings {
		if st.Name == "" {
			return fmt.Errorf("%w: setting %d has no name", ErrInvalidBinding, i)
		}
	}

	const query = `INSERT INTO settings (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value`

	return s.guard.Transaction(ctx, func(ctx context.Context, sess *database.Session) error {
		stmt, err := sess.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("preparing setting upsert: %w", err)
		}
		defer stmt.Close()

		changed := make(map[string]string, len(settings))
		for _, st := range settings {
			if current, ok := currentSetting(changed, s.settings, st.Name); ok && current == st.Value {
				continue
			}
			if _, err := stmt.ExecContext(ctx, st.Name, st.Value); err != nil {
				return fmt.Errorf("storing setting %s: %w", st.Name, err)
			}
			changed[st.Name] = st.Value
		}

		sess.AfterCommit(func() {
			for name, value := range changed {
				s.settings[name] = value
			}
			written = len(changed)
		})
		return nil
	})
}

// LoadSettingPairs returns every stored setting in insertion order and
// refreshes the cache from it.
func (s *Store) LoadSettingPairs(ctx context.Context) (settings []Setting, err error) {
	span := observe.Start(s.observer, observe.FamilySettings, observe.ActionLoad, -1)
	defer func() { span.Done(ctx, len(settings), err) }()

	const query = `SELECT name, value FROM settings ORDER BY id`

	err = s.guard.Do(ctx, func(ctx context.Context, sess *database.Session) error {
		rows, err := sess.QueryContext(ctx, query)
		if err != nil {
			return fmt.Errorf("querying settings: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var st Setting
			if err := rows.Scan(&st.Name, &st.Value); err != nil {
				return fmt.Errorf("scanning setting: %w", err)
			}
			settings = append(settings, st)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating settings: %w", err)
		}

		for _, st := range settings {
			s.settings[st.Name] = st.Value
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// CachedFlag returns the cached value of a flag and whether it is cached.
func (s *Store) CachedFlag(name string) (enabled, ok bool, err error) {
	err = s.guard.Do(context.Background(), func(context.Context, *database.Session) error {
		enabled, ok = s.flags[name]
		return nil
	})
	return enabled, ok, err
}

// CachedSetting returns the cached value of a setting and whether it is cached.
func (s *Store) CachedSetting(name string) (value string, ok bool, err error) {
	err = s.guard.Do(context.Background(), func(context.Context, *database.Session) error {
		value, ok = s.settings[name]
		return nil
	})
	return value, ok, err
}
