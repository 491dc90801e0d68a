package snapshot

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/ent-store/internal/infrastructure/database"
)

func TestSlotValidate(t *testing.T) {
	tests := []struct {
		name    string
		slot    Slot
		wantErr bool
	}{
		{name: "unset", slot: SlotUnset},
		{name: "first row", slot: 1},
		{name: "large id", slot: 1 << 40},
		{name: "zero", slot: 0, wantErr: true},
		{name: "negative", slot: -2, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.slot.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSlot)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSlotArg(t *testing.T) {
	assert.Nil(t, SlotUnset.Arg())
	assert.Equal(t, int64(4), Slot(4).Arg())
	assert.Equal(t, "unset", SlotUnset.String())
	assert.Equal(t, "4", Slot(4).String())
}

func TestParseSlot(t *testing.T) {
	s, err := ParseSlot("12")
	require.NoError(t, err)
	assert.Equal(t, Slot(12), s)

	s, err = ParseSlot("all")
	require.NoError(t, err)
	assert.Equal(t, AllEntries, s)

	s, err = ParseSlot("-1")
	require.NoError(t, err)
	assert.Equal(t, AllEntries, s)

	_, err = ParseSlot("0")
	assert.ErrorIs(t, err, ErrInvalidSlot)

	_, err = ParseSlot("first")
	assert.ErrorIs(t, err, ErrInvalidSlot)
}

var testFamily = Family{
	Name:        "widget",
	ParentTable: "widgets",
	ChildTables: []string{"widget_parts", "widget_labels"},
}

func openFamilyDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "snapshot.db"),
		BusyTimeout: 5,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	_, err = db.ExecContext(context.Background(), `
		CREATE TABLE widgets (id INTEGER PRIMARY KEY, save_name TEXT NOT NULL);
		CREATE TABLE widget_parts (id INTEGER PRIMARY KEY, parent_id INTEGER NOT NULL);
		CREATE TABLE widget_labels (id INTEGER PRIMARY KEY, parent_id INTEGER NOT NULL);
		INSERT INTO widgets (id, save_name) VALUES (1, 'one'), (2, 'two');
		INSERT INTO widget_parts (parent_id) VALUES (1), (1), (2);
		INSERT INTO widget_labels (parent_id) VALUES (1), (2);
	`)
	require.NoError(t, err)
	return db
}

func countRows(t *testing.T, db *database.DB, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRowContext(context.Background(), query, args...).Scan(&n))
	return n
}

func TestFamily_Delete(t *testing.T) {
	db := openFamilyDB(t)
	ctx := context.Background()

	n, err := testFamily.Delete(ctx, db, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, n) // two parts, one label, one parent

	assert.Equal(t, 0, countRows(t, db, "SELECT COUNT(*) FROM widgets WHERE id = 1"))
	assert.Equal(t, 0, countRows(t, db, "SELECT COUNT(*) FROM widget_parts WHERE parent_id = 1"))
	assert.Equal(t, 1, countRows(t, db, "SELECT COUNT(*) FROM widget_parts WHERE parent_id = 2"))
}

func TestFamily_DeleteChildrenKeepsParent(t *testing.T) {
	db := openFamilyDB(t)
	ctx := context.Background()

	n, err := testFamily.DeleteChildren(ctx, db, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, countRows(t, db, "SELECT COUNT(*) FROM widgets WHERE id = 2"))

	// Unknown slot is a no-op
	n, err = testFamily.DeleteChildren(ctx, db, 99)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFamily_Rename(t *testing.T) {
	db := openFamilyDB(t)
	ctx := context.Background()

	n, err := testFamily.Rename(ctx, db, "renamed", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var name string
	require.NoError(t, db.QueryRowContext(ctx, "SELECT save_name FROM widgets WHERE id = 2").Scan(&name))
	assert.Equal(t, "renamed", name)

	n, err = testFamily.Rename(ctx, db, "ghost", 42)
	require.NoError(t, err)
	assert.Zero(t, n)
}
