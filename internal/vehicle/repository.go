package vehicle

import (
	"context"
	"fmt"

	"github.com/nerrad567/ent-store/internal/infrastructure/database"
	"github.com/nerrad567/ent-store/internal/observe"
	"github.com/nerrad567/ent-store/internal/snapshot"
)

// Family is the saved vehicle table layout.
var Family = snapshot.Family{
	Name:        "vehicle",
	ParentTable: "saved_vehicles",
	ChildTables: []string{"saved_vehicle_extras", "saved_vehicle_mods"},
}

// Repository defines the persistence operations for saved vehicles.
type Repository interface {
	Save(ctx context.Context, v *Vehicle, saveName string, slot snapshot.Slot) (snapshot.Slot, error)
	List(ctx context.Context, index snapshot.Slot) ([]Vehicle, error)
	Populate(ctx context.Context, v *Vehicle) error
	Delete(ctx context.Context, slot snapshot.Slot) error
	DeleteChildren(ctx context.Context, slot snapshot.Slot) error
	Rename(ctx context.Context, name string, slot snapshot.Slot) error
}

// SQLiteRepository implements Repository using SQLite behind the access guard.
type SQLiteRepository struct {
	guard    *database.Guard
	observer observe.Observer
}

// NewSQLiteRepository creates a new SQLite-backed vehicle repository.
// A nil observer discards operation reports.
func NewSQLiteRepository(guard *database.Guard, observer observe.Observer) *SQLiteRepository {
	if observer == nil {
		observer = observe.Nop
	}
	return &SQLiteRepository{guard: guard, observer: observer}
}

const vehicleColumns = `id, save_name, created_at, model,
	colour_primary, colour_secondary, colour_extra_pearl, colour_extra_wheel,
	colour_mod1_type, colour_mod1_colour, colour_mod1_p3, colour_mod2_type, colour_mod2_colour,
	colour_custom1_r, colour_custom1_g, colour_custom1_b,
	colour_custom2_r, colour_custom2_g, colour_custom2_b,
	livery, plate_text, plate_type, wheel_type, window_tint,
	burstable_tyres, custom_tyres, dirt_level, fade_level, convertible_roof_up,
	neon_r, neon_g, neon_b, neon_left, neon_right, neon_front, neon_back,
	tyre_smoke_r, tyre_smoke_g, tyre_smoke_b,
	dashboard_colour, interior_colour`

// Save stores v under saveName. With slot unset a new slot is allocated;
// with a slot set, the entry in that slot and all its children are replaced.
// The parent and every child are written in one transaction.
func (r *SQLiteRepository) Save(ctx context.Context, v *Vehicle, saveName string, slot snapshot.Slot) (saved snapshot.Slot, err error) {
	span := observe.Start(r.observer, observe.FamilyVehicle, observe.ActionSave, int64(slot)).Named(saveName)
	rows := 0
	defer func() { span.At(int64(saved)).Done(ctx, rows, err) }()

	saved = snapshot.SlotUnset
	if v == nil {
		return saved, ErrNilVehicle
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

		id, err := insertVehicle(ctx, s, v, saveName, slot)
		if err != nil {
			return err
		}

		extras, err := insertExtras(ctx, s, id, v.Extras)
		if err != nil {
			return err
		}
		mods, err := insertMods(ctx, s, id, v.Mods)
		if err != nil {
			return err
		}

		s.AfterCommit(func() {
			saved = id
			rows = 1 + extras + mods
		})
		return nil
	})
	if err != nil {
		return snapshot.SlotUnset, fmt.Errorf("saving vehicle %q: %w", saveName, err)
	}
	return saved, nil
}

// insertVehicle writes the parent row, reusing slot as the id when set.
func insertVehicle(ctx context.Context, s *database.Session, v *Vehicle, saveName string, slot snapshot.Slot) (snapshot.Slot, error) {
	const query = `INSERT INTO saved_vehicles (id, save_name, model,
		colour_primary, colour_secondary, colour_extra_pearl, colour_extra_wheel,
		colour_mod1_type, colour_mod1_colour, colour_mod1_p3, colour_mod2_type, colour_mod2_colour,
		colour_custom1_r, colour_custom1_g, colour_custom1_b,
		colour_custom2_r, colour_custom2_g, colour_custom2_b,
		livery, plate_text, plate_type, wheel_type, window_tint,
		burstable_tyres, custom_tyres, dirt_level, fade_level, convertible_roof_up,
		neon_r, neon_g, neon_b, neon_left, neon_right, neon_front, neon_back,
		tyre_smoke_r, tyre_smoke_g, tyre_smoke_b,
		dashboard_colour, interior_colour)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := s.ExecContext(ctx, query,
		slot.Arg(), saveName, v.Model,
		v.ColourPrimary, v.ColourSecondary, v.ColourExtraPearl, v.ColourExtraWheel,
		v.ColourMod1Type, v.ColourMod1Colour, v.ColourMod1P3, v.ColourMod2Type, v.ColourMod2Colour,
		v.CustomPrimary.R, v.CustomPrimary.G, v.CustomPrimary.B,
		v.CustomSecondary.R, v.CustomSecondary.G, v.CustomSecondary.B,
		v.Livery, v.PlateText, v.PlateType, v.WheelType, v.WindowTint,
		v.BurstableTyres, v.CustomTyres, v.DirtLevel, v.FadeLevel, v.ConvertibleRoofUp,
		v.NeonColour.R, v.NeonColour.G, v.NeonColour.B,
		v.NeonLights.Left, v.NeonLights.Right, v.NeonLights.Front, v.NeonLights.Back,
		v.TyreSmoke.R, v.TyreSmoke.G, v.TyreSmoke.B,
		v.DashboardColour, v.InteriorColour,
	)
	if err != nil {
		return snapshot.SlotUnset, fmt.Errorf("inserting vehicle: %w", err)
	}
	return snapshot.InsertedSlot(result)
}

// insertExtras writes each extra under parent.
func insertExtras(ctx context.Context, s *database.Session, parent snapshot.Slot, extras []Extra) (int, error) {
	if len(extras) == 0 {
		return 0, nil
	}

	stmt, err := s.PrepareContext(ctx,
		"INSERT INTO saved_vehicle_extras (parent_id, extra_id, extra_state) VALUES (?, ?, ?)")
	if err != nil {
		return 0, fmt.Errorf("preparing extra insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range extras {
		if _, err := stmt.ExecContext(ctx, int64(parent), e.ExtraID, e.State); err != nil {
			return 0, fmt.Errorf("inserting extra %d: %w", e.ExtraID, err)
		}
	}
	return len(extras), nil
}

// insertMods writes each mod under parent.
func insertMods(ctx context.Context, s *database.Session, parent snapshot.Slot, mods []Mod) (int, error) {
	if len(mods) == 0 {
		return 0, nil
	}

	stmt, err := s.PrepareContext(ctx,
		"INSERT INTO saved_vehicle_mods (parent_id, mod_id, mod_state, is_toggle) VALUES (?, ?, ?, ?)")
	if err != nil {
		return 0, fmt.Errorf("preparing mod insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range mods {
		if _, err := stmt.ExecContext(ctx, int64(parent), m.ModID, m.State, m.IsToggle); err != nil {
			return 0, fmt.Errorf("inserting mod %d: %w", m.ModID, err)
		}
	}
	return len(mods), nil
}

// List returns saved vehicles with scalar fields only. AllEntries returns
// every entry in slot order; any other index returns the entry in that
// slot, or nothing.
func (r *SQLiteRepository) List(ctx context.Context, index snapshot.Slot) (vehicles []Vehicle, err error) {
	span := observe.Start(r.observer, observe.FamilyVehicle, observe.ActionList, int64(index))
	defer func() { span.Done(ctx, len(vehicles), err) }()

	if err := index.Validate(); err != nil {
		return nil, err
	}

	query := "SELECT " + vehicleColumns + " FROM saved_vehicles"
	var args []any
	if index != snapshot.AllEntries {
		query += " WHERE id = ?"
		args = append(args, int64(index))
	}
	query += " ORDER BY id"

	err = r.guard.Do(ctx, func(ctx context.Context, s *database.Session) error {
		rows, err := s.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("querying vehicles: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			v, err := scanVehicleRow(rows)
			if err != nil {
				return fmt.Errorf("scanning vehicle: %w", err)
			}
			vehicles = append(vehicles, *v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	if vehicles == nil {
		vehicles = []Vehicle{}
	}
	return vehicles, nil
}

// Populate loads the extras and mods of v, replacing whatever v held.
// A vehicle whose slot no longer exists ends up with no children.
func (r *SQLiteRepository) Populate(ctx context.Context, v *Vehicle) (err error) {
	if v == nil {
		return ErrNilVehicle
	}

	span := observe.Start(r.observer, observe.FamilyVehicle, observe.ActionPopulate, int64(v.Slot))
	defer func() { span.Done(ctx, len(v.Extras)+len(v.Mods), err) }()

	return r.guard.Do(ctx, func(ctx context.Context, s *database.Session) error {
		extras, err := loadExtras(ctx, s, v.Slot)
		if err != nil {
			return err
		}
		mods, err := loadMods(ctx, s, v.Slot)
		if err != nil {
			return err
		}
		v.Extras = extras
		v.Mods = mods
		return nil
	})
}

func loadExtras(ctx context.Context, s *database.Session, parent snapshot.Slot) ([]Extra, error) {
	const query = `SELECT id, parent_id, extra_id, extra_state
		FROM saved_vehicle_extras WHERE parent_id = ? ORDER BY id`

	rows, err := s.QueryContext(ctx, query, int64(parent))
	if err != nil {
		return nil, fmt.Errorf("querying extras of vehicle %d: %w", parent, err)
	}
	defer rows.Close()

	extras := []Extra{}
	for rows.Next() {
		var e Extra
		if err := rows.Scan(&e.ID, &e.ParentID, &e.ExtraID, &e.State); err != nil {
			return nil, fmt.Errorf("scanning extra: %w", err)
		}
		extras = append(extras, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating extras: %w", err)
	}
	return extras, nil
}

func loadMods(ctx context.Context, s *database.Session, parent snapshot.Slot) ([]Mod, error) {
	const query = `SELECT id, parent_id, mod_id, mod_state, is_toggle
		FROM saved_vehicle_mods WHERE parent_id = ? ORDER BY id`

	rows, err := s.QueryContext(ctx, query, int64(parent))
	if err != nil {
		return nil, fmt.Errorf("querying mods of vehicle %d: %w", parent, err)
	}
	defer rows.Close()

	mods := []Mod{}
	for rows.Next() {
		var m Mod
		var isToggle int
		if err := rows.Scan(&m.ID, &m.ParentID, &m.ModID, &m.State, &isToggle); err != nil {
			return nil, fmt.Errorf("scanning mod: %w", err)
		}
		m.IsToggle = isToggle != 0
		mods = append(mods, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating mods: %w", err)
	}
	return mods, nil
}

// Delete removes the vehicle in slot together with its extras and mods.
// An empty slot is a no-op.
func (r *SQLiteRepository) Delete(ctx context.Context, slot snapshot.Slot) (err error) {
	span := observe.Start(r.observer, observe.FamilyVehicle, observe.ActionDelete, int64(slot))
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
		return fmt.Errorf("deleting vehicle %d: %w", slot, err)
	}
	return nil
}

// DeleteChildren removes the extras and mods of slot, keeping the vehicle row.
// An empty slot is a no-op.
func (r *SQLiteRepository) DeleteChildren(ctx context.Context, slot snapshot.Slot) (err error) {
	span := observe.Start(r.observer, observe.FamilyVehicle, observe.ActionDeleteChildren, int64(slot))
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
		return fmt.Errorf("deleting children of vehicle %d: %w", slot, err)
	}
	return nil
}

// Rename changes the save name of the vehicle in slot. An empty slot is a no-op.
func (r *SQLiteRepository) Rename(ctx context.Context, name string, slot snapshot.Slot) (err error) {
	span := observe.Start(r.observer, observe.FamilyVehicle, observe.ActionRename, int64(slot)).Named(name)
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

// scanVehicleRow scans a row or rows result into a Vehicle.
func scanVehicleRow(scanner snapshot.RowScanner) (*Vehicle, error) {
	var v Vehicle
	var createdAt string
	var burstable, customTyres, roofUp int
	var neonLeft, neonRight, neonFront, neonBack int

	err := scanner.Scan(
		&v.Slot, &v.SaveName, &createdAt, &v.Model,
		&v.ColourPrimary, &v.ColourSecondary, &v.ColourExtraPearl, &v.ColourExtraWheel,
		&v.ColourMod1Type, &v.ColourMod1Colour, &v.ColourMod1P3, &v.ColourMod2Type, &v.ColourMod2Colour,
		&v.CustomPrimary.R, &v.CustomPrimary.G, &v.CustomPrimary.B,
		&v.CustomSecondary.R, &v.CustomSecondary.G, &v.CustomSecondary.B,
		&v.Livery, &v.PlateText, &v.PlateType, &v.WheelType, &v.WindowTint,
		&burstable, &customTyres, &v.DirtLevel, &v.FadeLevel, &roofUp,
		&v.NeonColour.R, &v.NeonColour.G, &v.NeonColour.B,
		&neonLeft, &neonRight, &neonFront, &neonBack,
		&v.TyreSmoke.R, &v.TyreSmoke.G, &v.TyreSmoke.B,
		&v.DashboardColour, &v.InteriorColour,
	)
	if err != nil {
		return nil, err
	}

	v.BurstableTyres = burstable != 0
	v.CustomTyres = customTyres != 0
	v.ConvertibleRoofUp = roofUp != 0
	v.NeonLights = Neon{
		Left:  neonLeft != 0,
		Right: neonRight != 0,
		Front: neonFront != 0,
		Back:  neonBack != 0,
	}

	v.CreatedAt, err = snapshot.ParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

var _ Repository = (*SQLiteRepository)(nil)
