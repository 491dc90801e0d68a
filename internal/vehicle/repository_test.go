package vehicle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/ent-store/internal/infrastructure/database"
	"github.com/nerrad567/ent-store/internal/observe"
	"github.com/nerrad567/ent-store/internal/snapshot"
	"github.com/nerrad567/ent-store/internal/storetest"
)

type opRecorder struct {
	mu  sync.Mutex
	ops []observe.Operation
}

func (r *opRecorder) Observe(_ context.Context, op observe.Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func (r *opRecorder) last() observe.Operation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ops[len(r.ops)-1]
}

func setupRepo(t *testing.T) (*SQLiteRepository, *database.Guard, *opRecorder) {
	t.Helper()
	g := storetest.OpenGuard(t)
	rec := &opRecorder{}
	return NewSQLiteRepository(g, rec), g, rec
}

func testVehicle() *Vehicle {
	return &Vehicle{
		Model:             0x2B26F456,
		ColourPrimary:     12,
		ColourSecondary:   27,
		ColourExtraPearl:  5,
		ColourExtraWheel:  156,
		ColourMod1Type:    3,
		ColourMod1Colour:  1,
		ColourMod1P3:      -1,
		ColourMod2Type:    -1,
		ColourMod2Colour:  -1,
		CustomPrimary:     RGB{R: 255, G: 10, B: 0},
		CustomSecondary:   RGB{R: -1, G: -1, B: -1},
		Livery:            2,
		PlateText:         "ENT 042",
		PlateType:         1,
		WheelType:         7,
		WindowTint:        3,
		BurstableTyres:    false,
		CustomTyres:       true,
		DirtLevel:         0.5,
		FadeLevel:         0.25,
		ConvertibleRoofUp: true,
		NeonColour:        RGB{R: 0, G: 150, B: 255},
		NeonLights:        Neon{Left: true, Right: true, Back: true},
		TyreSmoke:         RGB{R: 20, G: 20, B: 20},
		DashboardColour:   111,
		InteriorColour:    4,
		Extras: []Extra{
			{ExtraID: 1, State: 1},
			{ExtraID: 4, State: 0},
		},
		Mods: []Mod{
			{ModID: 11, State: 3},
			{ModID: 18, State: 1, IsToggle: true},
			{ModID: 22, State: 0, IsToggle: true},
		},
	}
}

func TestSave_AllocatesSlotAndPersistsFields(t *testing.T) {
	repo, g, rec := setupRepo(t)
	ctx := context.Background()

	want := testVehicle()
	slot, err := repo.Save(ctx, want, "street racer", snapshot.SlotUnset)
	require.NoError(t, err)
	assert.True(t, slot.IsSet())

	op := rec.last()
	assert.Equal(t, observe.ActionSave, op.Action)
	assert.Equal(t, int64(slot), op.Slot)
	assert.Equal(t, 6, op.Rows)

	got, err := repo.List(ctx, slot)
	require.NoError(t, err)
	require.Len(t, got, 1)

	v := got[0]
	assert.Equal(t, slot, v.Slot)
	assert.Equal(t, "street racer", v.SaveName)
	assert.False(t, v.CreatedAt.IsZero())
	assert.Equal(t, want.Model, v.Model)
	assert.Equal(t, want.CustomPrimary, v.CustomPrimary)
	assert.Equal(t, want.CustomSecondary, v.CustomSecondary)
	assert.Equal(t, want.PlateText, v.PlateText)
	assert.Equal(t, want.WheelType, v.WheelType)
	assert.False(t, v.BurstableTyres)
	assert.True(t, v.CustomTyres)
	assert.True(t, v.ConvertibleRoofUp)
	assert.InDelta(t, 0.5, v.DirtLevel, 1e-6)
	assert.InDelta(t, 0.25, v.FadeLevel, 1e-6)
	assert.Equal(t, want.NeonLights, v.NeonLights)
	assert.Equal(t, want.TyreSmoke, v.TyreSmoke)
	assert.Equal(t, 111, v.DashboardColour)
	assert.Empty(t, v.Extras, "List must not load children")
	assert.Empty(t, v.Mods, "List must not load children")

	assert.Equal(t, 2, storetest.Count(t, g, "SELECT COUNT(*) FROM saved_vehicle_extras WHERE parent_id = ?", int64(slot)))
}

func TestPopulate_ReproducesChildren(t *testing.T) {
	repo, _, _ := setupRepo(t)
	ctx := context.Background()

	want := testVehicle()
	slot, err := repo.Save(ctx, want, "populated", snapshot.SlotUnset)
	require.NoError(t, err)

	list, err := repo.List(ctx, slot)
	require.NoError(t, err)
	require.Len(t, list, 1)

	v := list[0]
	require.NoError(t, repo.Populate(ctx, &v))

	require.Len(t, v.Extras, len(want.Extras))
	for i, e := range v.Extras {
		assert.Equal(t, slot, e.ParentID)
		assert.Equal(t, want.Extras[i].ExtraID, e.ExtraID)
		assert.Equal(t, want.Extras[i].State, e.State)
	}
	require.Len(t, v.Mods, len(want.Mods))
	for i, m := range v.Mods {
		assert.Equal(t, slot, m.ParentID)
		assert.Equal(t, want.Mods[i].ModID, m.ModID)
		assert.Equal(t, want.Mods[i].State, m.State)
		assert.Equal(t, want.Mods[i].IsToggle, m.IsToggle)
	}
}

func TestSave_OverwriteReplacesChildren(t *testing.T) {
	repo, g, _ := setupRepo(t)
	ctx := context.Background()

	slot, err := repo.Save(ctx, testVehicle(), "first", snapshot.SlotUnset)
	require.NoError(t, err)

	replacement := testVehicle()
	replacement.PlateText = "SECOND"
	replacement.Extras = []Extra{{ExtraID: 9, State: 1}}
	replacement.Mods = nil

	again, err := repo.Save(ctx, replacement, "second", slot)
	require.NoError(t, err)
	assert.Equal(t, slot, again, "overwrite keeps the slot")

	list, err := repo.List(ctx, snapshot.AllEntries)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "second", list[0].SaveName)
	assert.Equal(t, "SECOND", list[0].PlateText)

	v := list[0]
	require.NoError(t, repo.Populate(ctx, &v))
	require.Len(t, v.Extras, 1)
	assert.Equal(t, 9, v.Extras[0].ExtraID)
	assert.Empty(t, v.Mods)

	assert.Equal(t, 1, storetest.Count(t, g, "SELECT COUNT(*) FROM saved_vehicle_extras"))
	assert.Equal(t, 0, storetest.Count(t, g, "SELECT COUNT(*) FROM saved_vehicle_mods"))
}

func TestSave_IntoEmptySlot(t *testing.T) {
	repo, _, _ := setupRepo(t)
	ctx := context.Background()

	slot, err := repo.Save(ctx, testVehicle(), "pinned", snapshot.Slot(42))
	require.NoError(t, err)
	assert.Equal(t, snapshot.Slot(42), slot)

	list, err := repo.List(ctx, 42)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "pinned", list[0].SaveName)
}

func TestSave_Invalid(t *testing.T) {
	repo, _, _ := setupRepo(t)
	ctx := context.Background()

	_, err := repo.Save(ctx, nil, "nothing", snapshot.SlotUnset)
	assert.ErrorIs(t, err, ErrNilVehicle)

	_, err = repo.Save(ctx, testVehicle(), "bad slot", snapshot.Slot(0))
	assert.ErrorIs(t, err, snapshot.ErrInvalidSlot)
}

func TestSave_FailureLeavesNothing(t *testing.T) {
	repo, g, rec := setupRepo(t)
	ctx := context.Background()

	err := g.Do(ctx, func(ctx context.Context, s *database.Session) error {
		_, err := s.ExecContext(ctx, `CREATE TRIGGER reject_mod BEFORE INSERT ON saved_vehicle_mods
			WHEN NEW.mod_id = 22 BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
		return err
	})
	require.NoError(t, err)

	slot, err := repo.Save(ctx, testVehicle(), "doomed", snapshot.SlotUnset)
	require.Error(t, err)
	assert.ErrorIs(t, err, database.ErrTransaction)
	assert.Equal(t, snapshot.SlotUnset, slot)
	assert.Error(t, rec.last().Err)

	assert.Equal(t, 0, storetest.Count(t, g, "SELECT COUNT(*) FROM saved_vehicles"))
	assert.Equal(t, 0, storetest.Count(t, g, "SELECT COUNT(*) FROM saved_vehicle_extras"))
	assert.Equal(t, 0, storetest.Count(t, g, "SELECT COUNT(*) FROM saved_vehicle_mods"))
}

func TestSave_FailedOverwriteKeepsOriginal(t *testing.T) {
	repo, g, _ := setupRepo(t)
	ctx := context.Background()

	slot, err := repo.Save(ctx, testVehicle(), "original", snapshot.SlotUnset)
	require.NoError(t, err)

	err = g.Do(ctx, func(ctx context.Context, s *database.Session) error {
		_, err := s.ExecContext(ctx, `CREATE TRIGGER reject_extra BEFORE INSERT ON saved_vehicle_extras
			BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
		return err
	})
	require.NoError(t, err)

	_, err = repo.Save(ctx, testVehicle(), "replacement", slot)
	require.Error(t, err)

	list, err := repo.List(ctx, slot)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "original", list[0].SaveName)
	assert.Equal(t, 2, storetest.Count(t, g, "SELECT COUNT(*) FROM saved_vehicle_extras WHERE parent_id = ?", int64(slot)))
	assert.Equal(t, 3, storetest.Count(t, g, "SELECT COUNT(*) FROM saved_vehicle_mods WHERE parent_id = ?", int64(slot)))
}

func TestList_AllReturnsEachEntryOnce(t *testing.T) {
	repo, _, _ := setupRepo(t)
	ctx := context.Background()

	var slots []snapshot.Slot
	for i := 0; i < 4; i++ {
		slot, err := repo.Save(ctx, testVehicle(), fmt.Sprintf("car %d", i), snapshot.SlotUnset)
		require.NoError(t, err)
		slots = append(slots, slot)
	}

	list, err := repo.List(ctx, snapshot.AllEntries)
	require.NoError(t, err)
	require.Len(t, list, 4)
	for i, v := range list {
		assert.Equal(t, slots[i], v.Slot)
		assert.Equal(t, fmt.Sprintf("car %d", i), v.SaveName)
	}
}

func TestList_Empty(t *testing.T) {
	repo, _, _ := setupRepo(t)
	ctx := context.Background()

	list, err := repo.List(ctx, snapshot.AllEntries)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	list, err = repo.List(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = repo.List(ctx, -5)
	assert.ErrorIs(t, err, snapshot.ErrInvalidSlot)
}

func TestDelete_RemovesEntryAndChildren(t *testing.T) {
	repo, g, rec := setupRepo(t)
	ctx := context.Background()

	keep, err := repo.Save(ctx, testVehicle(), "keep", snapshot.SlotUnset)
	require.NoError(t, err)
	drop, err := repo.Save(ctx, testVehicle(), "drop", snapshot.SlotUnset)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, drop))
	assert.Equal(t, 6, rec.last().Rows)

	list, err := repo.List(ctx, drop)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.Equal(t, 0, storetest.Count(t, g, "SELECT COUNT(*) FROM saved_vehicle_extras WHERE parent_id = ?", int64(drop)))
	assert.Equal(t, 0, storetest.Count(t, g, "SELECT COUNT(*) FROM saved_vehicle_mods WHERE parent_id = ?", int64(drop)))
	assert.Equal(t, 2, storetest.Count(t, g, "SELECT COUNT(*) FROM saved_vehicle_extras WHERE parent_id = ?", int64(keep)))

	// Nothing left to remove
	require.NoError(t, repo.DeleteChildren(ctx, drop))
	assert.Equal(t, 0, rec.last().Rows)
	require.NoError(t, repo.Delete(ctx, drop))
	assert.Equal(t, 0, rec.last().Rows)
}

func TestDeleteChildren_KeepsParent(t *testing.T) {
	repo, g, _ := setupRepo(t)
	ctx := context.Background()

	slot, err := repo.Save(ctx, testVehicle(), "bare", snapshot.SlotUnset)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteChildren(ctx, slot))

	list, err := repo.List(ctx, slot)
	require.NoError(t, err)
	require.Len(t, list, 1)

	v := list[0]
	require.NoError(t, repo.Populate(ctx, &v))
	assert.Empty(t, v.Extras)
	assert.Empty(t, v.Mods)
	assert.Equal(t, 0, storetest.Count(t, g, "SELECT COUNT(*) FROM saved_vehicle_mods"))
}

func TestRename(t *testing.T) {
	repo, _, rec := setupRepo(t)
	ctx := context.Background()

	slot, err := repo.Save(ctx, testVehicle(), "before", snapshot.SlotUnset)
	require.NoError(t, err)

	require.NoError(t, repo.Rename(ctx, "after", slot))
	assert.Equal(t, "after", rec.last().Name)
	assert.Equal(t, 1, rec.last().Rows)

	list, err := repo.List(ctx, slot)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "after", list[0].SaveName)

	// Unknown slot is a no-op
	require.NoError(t, repo.Rename(ctx, "ghost", 999))
	assert.Equal(t, 0, rec.last().Rows)

	assert.ErrorIs(t, repo.Rename(ctx, "bad", snapshot.SlotUnset), snapshot.ErrInvalidSlot)
}

func TestSave_ConcurrentDistinctSlots(t *testing.T) {
	repo, g, _ := setupRepo(t)
	ctx := context.Background()

	eg, ctx := errgroup.WithContext(ctx)
	for i := 1; i <= 8; i++ {
		slot := snapshot.Slot(i)
		eg.Go(func() error {
			v := testVehicle()
			v.Extras = []Extra{{ExtraID: int(slot), State: 1}}
			got, err := repo.Save(ctx, v, fmt.Sprintf("slot %d", slot), slot)
			if err != nil {
				return err
			}
			if got != slot {
				return errors.New("saved into the wrong slot")
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())

	list, err := repo.List(context.Background(), snapshot.AllEntries)
	require.NoError(t, err)
	require.Len(t, list, 8)
	for i, v := range list {
		assert.Equal(t, snapshot.Slot(i+1), v.Slot)
		assert.Equal(t, fmt.Sprintf("slot %d", i+1), v.SaveName)
		assert.Equal(t, 1, storetest.Count(t, g,
			"SELECT COUNT(*) FROM saved_vehicle_extras WHERE parent_id = ? AND extra_id = ?", int64(v.Slot), i+1))
	}
}

func TestRepository_PureGoDriver(t *testing.T) {
	g := storetest.OpenGuardWithDriver(t, database.DriverPure)
	repo := NewSQLiteRepository(g, nil)
	ctx := context.Background()

	slot, err := repo.Save(ctx, testVehicle(), "pure", snapshot.SlotUnset)
	require.NoError(t, err)

	list, err := repo.List(ctx, slot)
	require.NoError(t, err)
	require.Len(t, list, 1)

	v := list[0]
	require.NoError(t, repo.Populate(ctx, &v))
	assert.Len(t, v.Extras, 2)
	assert.Len(t, v.Mods, 3)
	assert.True(t, v.Mods[1].IsToggle)
	assert.Equal(t, uint32(0x2B26F456), v.Model)
}

func TestSave_DeletedNewestSlotNotReused(t *testing.T) {
	repo, _, _ := setupRepo(t)
	ctx := context.Background()

	_, err := repo.Save(ctx, testVehicle(), "a", snapshot.SlotUnset)
	require.NoError(t, err)
	b, err := repo.Save(ctx, testVehicle(), "b", snapshot.SlotUnset)
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, b))

	c, err := repo.Save(ctx, testVehicle(), "c", snapshot.SlotUnset)
	require.NoError(t, err)
	assert.Equal(t, b+1, c)

	// A pinned slot moves the sequence past it
	_, err = repo.Save(ctx, testVehicle(), "pinned", snapshot.Slot(42))
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, 42))

	d, err := repo.Save(ctx, testVehicle(), "d", snapshot.SlotUnset)
	require.NoError(t, err)
	assert.Equal(t, snapshot.Slot(43), d)
}
