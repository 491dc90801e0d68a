package propset

import (
	"context"
	"fmt"

	"github.com/nerrad567/ent-store/internal/infrastructure/database"
	"github.com/nerrad567/ent-store/internal/observe"
	"github.com/nerrad567/ent-store/internal/snapshot"
)

// Family is the saved prop set table layout.
var Family = snapshot.Family{
	Name:        "propset",
	ParentTable: "saved_propsets",
	ChildTables: []string{"saved_prop_instances"},
}

// Repository defines the persistence operations for saved prop sets.
type Repository interface {
	Save(ctx context.Context, items []PropInstance, saveName string, slot snapshot.Slot) (snapshot.Slot, error)
	List(ctx context.Context, index snapshot.Slot) ([]PropSet, error)
	Populate(ctx context.Context, set *PropSet) error
	Instances(ctx context.Context, parent snapshot.Slot) ([]PropInstance, error)
	Delete(ctx context.Context, slot snapshot.Slot) error
	DeleteChildren(ctx context.Context, slot snapshot.Slot) error
	Rename(ctx context.Context, name string, slot snapshot.Slot) error
}

// SQLiteRepository implements Repository using SQLite behind the access guard.
type SQLiteRepository struct {
	guard    *database.Guard
	observer observe.Observer
}

// NewSQLiteRepository creates a new SQLite-backed prop set repository.
func NewSQLiteRepository(guard *database.Guard, observer observe.Observer) *SQLiteRepository {
	if observer == nil {
		observer = observe.Nop
	}
	return &SQLiteRepository{guard: guard, observer: observer}
}

const instanceColumns = `id, parent_id, model, title, counter,
	pos_x, pos_y, pos_z, pitch, roll, yaw,
	is_immovable, is_invincible, has_gravity, alpha`

// Save stores items as a prop set named saveName. With a slot set, the set
// in that slot and all of its instances are replaced. An empty item list
// saves an empty set.
func (r *SQLiteRepository) Save(ctx context.Context, items []PropInstance, saveName string, slot snapshot.Slot) (saved snapshot.Slot, err error) {
	span := observe.Start(r.observer, observe.FamilyPropSet, observe.ActionSave, int64(slot)).Named(saveName)
	rows := 0
	defer func() { span.At(int64(saved)).Done(ctx, rows, err) }()

	saved = snapshot.SlotUnset
	if err := slot.Validate(); err != nil {
		return saved, err
	}

	err = r.guard.Transaction(ctx, func(ctx context.Context, s *database.Session) error {
		if slot.IsSet() {
			if _, err := Family.Delete(ctx, s, slot); err != nil {
				return err
			}
		}

		result, err := s.ExecContext(ctx,
			"INSERT INTO saved_propsets (id, save_name) VALUES (?, ?)", slot.Arg(), saveName)
		if err != nil {
			return fmt.Errorf("inserting prop set: %w", err)
		}
		id, err := snapshot.InsertedSlot(result)
		if err != nil {
			return err
		}

		if err := insertInstances(ctx, s, id, items); err != nil {
			return err
		}

		s.AfterCommit(func() {
			saved = id
			rows = 1 + len(items)
		})
		return nil
	})
	if err != nil {
		return snapshot.SlotUnset, fmt.Errorf("saving prop set %q: %w", saveName, err)
	}
	return saved, nil
}

func insertInstances(ctx context.Context, s *database.Session, parent snapshot.Slot, items []PropInstance) error {
	if len(items) == 0 {
		return nil
	}

	const query = `INSERT INTO saved_prop_instances (parent_id, model, title, counter,
		pos_x, pos_y, pos_z, pitch, roll, yaw,
		is_immovable, is_invincible, has_gravity, alpha)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := s.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing instance insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range items {
		_, err := stmt.ExecContext(ctx,
			int64(parent), p.Model, p.Title, p.Counter,
			p.Position.X, p.Position.Y, p.Position.Z,
			p.Rotation.Pitch, p.Rotation.Roll, p.Rotation.Yaw,
			p.Immovable, p.Invincible, p.HasGravity, p.Alpha,
		)
		if err != nil {
			return fmt.Errorf("inserting instance %d (%s): %w", i, p.Title, err)
		}
	}
	return nil
}

// List returns saved prop sets with Size set and Items nil.
// AllEntries returns every set.
func (r *SQLiteRepository) List(ctx context.Context, index snapshot.Slot) (sets []PropSet, err error) {
	span := observe.Start(r.observer, observe.FamilyPropSet, observe.ActionList, int64(index))
	defer func() { span.Done(ctx, len(sets), err) }()

	if err := index.Validate(); err != nil {
		return nil, err
	}

	query := `SELECT p.id, p.save_name, p.created_at,
		(SELECT COUNT(*) FROM saved_prop_instances i WHERE i.parent_id = p.id)
		FROM saved_propsets p`
	var args []any
	if index != snapshot.AllEntries {
		query += " WHERE p.id = ?"
		args = append(args, int64(index))
	}
	query += " ORDER BY p.id"

	sets = []PropSet{}
	err = r.guard.Do(ctx, func(ctx context.Context, s *database.Session) error {
		rows, err := s.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("querying prop sets: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var set PropSet
			var createdAt string
			if err := rows.Scan(&set.Slot, &set.SaveName, &createdAt, &set.Size); err != nil {
				return fmt.Errorf("scanning prop set: %w", err)
			}
			if set.CreatedAt, err = snapshot.ParseTime(createdAt); err != nil {
				return err
			}
			sets = append(sets, set)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return sets, nil
}

// Populate loads the instances of set and refreshes its Size.
func (r *SQLiteRepository) Populate(ctx context.Context, set *PropSet) (err error) {
	if set == nil {
		return ErrNilPropSet
	}

	span := observe.Start(r.observer, observe.FamilyPropSet, observe.ActionPopulate, int64(set.Slot))
	defer func() { span.Done(ctx, len(set.Items), err) }()

	return r.guard.Do(ctx, func(ctx context.Context, s *database.Session) error {
		items, err := loadInstances(ctx, s, set.Slot)
		if err != nil {
			return err
		}
		set.Items = items
		set.Size = len(items)
		return nil
	})
}

// Instances returns the placed props of the set in parent, in save order.
func (r *SQLiteRepository) Instances(ctx context.Context, parent snapshot.Slot) (items []PropInstance, err error) {
	span := observe.Start(r.observer, observe.FamilyPropSet, observe.ActionInstances, int64(parent))
	defer func() { span.Done(ctx, len(items), err) }()

	err = r.guard.Do(ctx, func(ctx context.Context, s *database.Session) error {
		loaded, err := loadInstances(ctx, s, parent)
		items = loaded
		return err
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func loadInstances(ctx context.Context, s *database.Session, parent snapshot.Slot) ([]PropInstance, error) {
	query := "SELECT " + instanceColumns + " FROM saved_prop_instances WHERE parent_id = ? ORDER BY id"

	rows, err := s.QueryContext(ctx, query, int64(parent))
	if err != nil {
		return nil, fmt.Errorf("querying instances of prop set %d: %w", parent, err)
	}
	defer rows.Close()

	items := []PropInstance{}
	for rows.Next() {
		p, err := scanInstanceRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning prop instance: %w", err)
		}
		items = append(items, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating prop instances: %w", err)
	}
	return items, nil
}

func scanInstanceRow(scanner snapshot.RowScanner) (*PropInstance, error) {
	var p PropInstance
	var immovable, invincible, gravity int

	err := scanner.Scan(
		&p.ID, &p.ParentID, &p.Model, &p.Title, &p.Counter,
		&p.Position.X, &p.Position.Y, &p.Position.Z,
		&p.Rotation.Pitch, &p.Rotation.Roll, &p.Rotation.Yaw,
		&immovable, &invincible, &gravity, &p.Alpha,
	)
	if err != nil {
		return nil, err
	}

	p.Immovable = immovable != 0
	p.Invincible = invincible != 0
	p.HasGravity = gravity != 0
	return &p, nil
}

// Delete removes the prop set in slot and all of its instances.
func (r *SQLiteRepository) Delete(ctx context.Context, slot snapshot.Slot) (err error) {
	span := observe.Start(r.observer, observe.FamilyPropSet, observe.ActionDelete, int64(slot))
	rows := 0
	defer func() { span.Done(ctx, rows, err) }()

	if err := snapshot.RequireSet(slot); err != nil {
		return err
	}

	err = r.guard.Transaction(ctx, func(ctx context.Context, s *database.Session) error {
		n, err := Family.Delete(ctx, s, slot)
		rows = n
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting prop set %d: %w", slot, err)
	}
	return nil
}

// DeleteChildren removes the instances of slot, leaving an empty set.
func (r *SQLiteRepository) DeleteChildren(ctx context.Context, slot snapshot.Slot) (err error) {
	span := observe.Start(r.observer, observe.FamilyPropSet, observe.ActionDeleteChildren, int64(slot))
	rows := 0
	defer func() { span.Done(ctx, rows, err) }()

	if err := snapshot.RequireSet(slot); err != nil {
		return err
	}

	err = r.guard.Transaction(ctx, func(ctx context.Context, s *database.Session) error {
		n, err := Family.DeleteChildren(ctx, s, slot)
		rows = n
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting instances of prop set %d: %w", slot, err)
	}
	return nil
}

// Rename changes the save name of the prop set in slot.
func (r *SQLiteRepository) Rename(ctx context.Context, name string, slot snapshot.Slot) (err error) {
	span := observe.Start(r.observer, observe.FamilyPropSet, observe.ActionRename, int64(slot)).Named(name)
	rows := 0
	defer func() { span.Done(ctx, rows, err) }()

	if err := snapshot.RequireSet(slot); err != nil {
		return err
	}

	return r.guard.Do(ctx, func(ctx context.Context, s *database.Session) error {
		n, err := Family.Rename(ctx, s, name, slot)
		rows = n
		return err
	})
}

var _ Repository = (*SQLiteRepository)(nil)
