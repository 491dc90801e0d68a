package skin

import (
	"context"
	"fmt"

	"github.com/nerrad567/ent-store/internal/infrastructure/database"
	"github.com/nerrad567/ent-store/internal/observe"
	"github.com/nerrad567/ent-store/internal/snapshot"
)

// Family is the saved skin table layout.
var Family = snapshot.Family{
	Name:        "skin",
	ParentTable: "saved_skins",
	ChildTables: []string{"saved_skin_components", "saved_skin_props"},
}

// Repository defines the persistence operations for saved skins.
type Repository interface {
	Save(ctx context.Context, sk *Skin, saveName string, slot snapshot.Slot) (snapshot.Slot, error)
	List(ctx context.Context, index snapshot.Slot) ([]Skin, error)
	Populate(ctx context.Context, sk *Skin) error
	Delete(ctx context.Context, slot snapshot.Slot) error
	DeleteChildren(ctx context.Context, slot snapshot.Slot) error
	Rename(ctx context.Context, name string, slot snapshot.Slot) error
}

// SQLiteRepository implements Repository using SQLite behind the access guard.
type SQLiteRepository struct {
	guard    *database.Guard
	observer observe.Observer
}

// NewSQLiteRepository creates a new SQLite-backed skin repository.
func NewSQLiteRepository(guard *database.Guard, observer observe.Observer) *SQLiteRepository {
	if observer == nil {
		observer = observe.Nop
	}
	return &SQLiteRepository{guard: guard, observer: observer}
}

// Save stores sk under saveName, replacing the entry in slot when one is set.
func (r *SQLiteRepository) Save(ctx context.Context, sk *Skin, saveName string, slot snapshot.Slot) (saved snapshot.Slot, err error) {
	span := observe.Start(r.observer, observe.FamilySkin, observe.ActionSave, int64(slot)).Named(saveName)
	rows := 0
	defer func() { span.At(int64(saved)).Done(ctx, rows, err) }()

	saved = snapshot.SlotUnset
	if sk == nil {
		return saved, ErrNilSkin
	}
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
			"INSERT INTO saved_skins (id, save_name, model) VALUES (?, ?, ?)",
			slot.Arg(), saveName, sk.Model)
		if err != nil {
			return fmt.Errorf("inserting skin: %w", err)
		}
		id, err := snapshot.InsertedSlot(result)
		if err != nil {
			return err
		}

		n, err := insertChildren(ctx, s, id, sk)
		if err != nil {
			return err
		}

		s.AfterCommit(func() {
			saved = id
			rows = 1 + n
		})
		return nil
	})
	if err != nil {
		return snapshot.SlotUnset, fmt.Errorf("saving skin %q: %w", saveName, err)
	}
	return saved, nil
}

func insertChildren(ctx context.Context, s *database.Session, parent snapshot.Slot, sk *Skin) (int, error) {
	for _, c := range sk.Components {
		if _, err := s.ExecContext(ctx,
			"INSERT INTO saved_skin_components (parent_id, slot_id, drawable, texture) VALUES (?, ?, ?, ?)",
			int64(parent), c.SlotID, c.Drawable, c.Texture,
		); err != nil {
			return 0, fmt.Errorf("inserting component %d: %w", c.SlotID, err)
		}
	}
	for _, p := range sk.Props {
		if _, err := s.ExecContext(ctx,
			"INSERT INTO saved_skin_props (parent_id, prop_id, drawable, texture) VALUES (?, ?, ?, ?)",
			int64(parent), p.PropID, p.Drawable, p.Texture,
		); err != nil {
			return 0, fmt.Errorf("inserting prop %d: %w", p.PropID, err)
		}
	}
	return len(sk.Components) + len(sk.Props), nil
}

// List returns saved skins without children. AllEntries returns every entry.
func (r *SQLiteRepository) List(ctx context.Context, index snapshot.Slot) (skins []Skin, err error) {
	span := observe.Start(r.observer, observe.FamilySkin, observe.ActionList, int64(index))
	defer func() { span.Done(ctx, len(skins), err) }()

	if err := index.Validate(); err != nil {
		return nil, err
	}

	query := "SELECT id, save_name, model, created_at FROM saved_skins"
	var args []any
	if index != snapshot.AllEntries {
		query += " WHERE id = ?"
		args = append(args, int64(index))
	}
	query += " ORDER BY id"

	skins = []Skin{}
	err = r.guard.Do(ctx, func(ctx context.Context, s *database.Session) error {
		rows, err := s.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("querying skins: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			sk, err := scanSkinRow(rows)
			if err != nil {
				return fmt.Errorf("scanning skin: %w", err)
			}
			skins = append(skins, *sk)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return skins, nil
}

// Populate loads the components and props of sk.
func (r *SQLiteRepository) Populate(ctx context.Context, sk *Skin) (err error) {
	if sk == nil {
		return ErrNilSkin
	}

	span := observe.Start(r.observer, observe.FamilySkin, observe.ActionPopulate, int64(sk.Slot))
	defer func() { span.Done(ctx, len(sk.Components)+len(sk.Props), err) }()

	return r.guard.Do(ctx, func(ctx context.Context, s *database.Session) error {
		components, err := loadComponents(ctx, s, sk.Slot)
		if err != nil {
			return err
		}
		props, err := loadProps(ctx, s, sk.Slot)
		if err != nil {
			return err
		}
		sk.Components = components
		sk.Props = props
		return nil
	})
}

func loadComponents(ctx context.Context, s *database.Session, parent snapshot.Slot) ([]Component, error) {
	rows, err := s.QueryContext(ctx,
		"SELECT id, parent_id, slot_id, drawable, texture FROM saved_skin_components WHERE parent_id = ? ORDER BY id",
		int64(parent))
	if err != nil {
		return nil, fmt.Errorf("querying components of skin %d: %w", parent, err)
	}
	defer rows.Close()

	components := []Component{}
	for rows.Next() {
		var c Component
		if err := rows.Scan(&c.ID, &c.ParentID, &c.SlotID, &c.Drawable, &c.Texture); err != nil {
			return nil, fmt.Errorf("scanning component: %w", err)
		}
		components = append(components, c)
	}
	return components, rows.Err()
}

func loadProps(ctx context.Context, s *database.Session, parent snapshot.Slot) ([]Prop, error) {
	rows, err := s.QueryContext(ctx,
		"SELECT id, parent_id, prop_id, drawable, texture FROM saved_skin_props WHERE parent_id = ? ORDER BY id",
		int64(parent))
	if err != nil {
		return nil, fmt.Errorf("querying props of skin %d: %w", parent, err)
	}
	defer rows.Close()

	props := []Prop{}
	for rows.Next() {
		var p Prop
		if err := rows.Scan(&p.ID, &p.ParentID, &p.PropID, &p.Drawable, &p.Texture); err != nil {
			return nil, fmt.Errorf("scanning prop: %w", err)
		}
		props = append(props, p)
	}
	return props, rows.Err()
}

// Delete removes the skin in slot together with its components and props.
func (r *SQLiteRepository) Delete(ctx context.Context, slot snapshot.Slot) (err error) {
	span := observe.Start(r.observer, observe.FamilySkin, observe.ActionDelete, int64(slot))
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
		return fmt.Errorf("deleting skin %d: %w", slot, err)
	}
	return nil
}

// DeleteChildren removes the components and props of slot.
func (r *SQLiteRepository) DeleteChildren(ctx context.Context, slot snapshot.Slot) (err error) {
	span := observe.Start(r.observer, observe.FamilySkin, observe.ActionDeleteChildren, int64(slot))
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
		return fmt.Errorf("deleting children of skin %d: %w", slot, err)
	}
	return nil
}

// Rename changes the save name of the skin in slot.
func (r *SQLiteRepository) Rename(ctx context.Context, name string, slot snapshot.Slot) (err error) {
	span := observe.Start(r.observer, observe.FamilySkin, observe.ActionRename, int64(slot)).Named(name)
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

func scanSkinRow(scanner snapshot.RowScanner) (*Skin, error) {
	var sk Skin
	var createdAt string
	if err := scanner.Scan(&sk.Slot, &sk.SaveName, &sk.Model, &createdAt); err != nil {
		return nil, err
	}

	var err error
	sk.CreatedAt, err = snapshot.ParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &sk, nil
}

var _ Repository = (*SQLiteRepository)(nil)
