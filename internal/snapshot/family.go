package snapshot

import (
	"context"
	"database/sql"
	"fmt"
)

// Execer runs statements. *database.Session satisfies it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Family describes the tables of one saved-snapshot family.
// Table names are package constants, never user input.
type Family struct {
	Name        string
	ParentTable string
	ChildTables []string
}

// DeleteChildren removes every child row of slot. Returns the rows removed;
// an unknown slot removes nothing and is not an error.
func (f Family) DeleteChildren(ctx context.Context, ex Execer, slot Slot) (int, error) {
	total := 0
	for _, table := range f.ChildTables {
		query := "DELETE FROM " + table + " WHERE parent_id = ?" //nolint:gosec // table name is a package constant
		result, err := ex.ExecContext(ctx, query, int64(slot))
		if err != nil {
			return total, fmt.Errorf("deleting %s children of %s %d: %w", table, f.Name, slot, err)
		}
		n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
		total += int(n)
	}
	return total, nil
}

// DeleteParent removes the parent row of slot only.
func (f Family) DeleteParent(ctx context.Context, ex Execer, slot Slot) (int, error) {
	query := "DELETE FROM " + f.ParentTable + " WHERE id = ?" //nolint:gosec // table name is a package constant
	result, err := ex.ExecContext(ctx, query, int64(slot))
	if err != nil {
		return 0, fmt.Errorf("deleting %s %d: %w", f.Name, slot, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	return int(n), nil
}

// Delete removes slot's children and then its parent row. Run it inside a
// transaction so both go or neither does.
func (f Family) Delete(ctx context.Context, ex Execer, slot Slot) (int, error) {
	children, err := f.DeleteChildren(ctx, ex, slot)
	if err != nil {
		return 0, err
	}
	parents, err := f.DeleteParent(ctx, ex, slot)
	if err != nil {
		return 0, err
	}
	return children + parents, nil
}

// Rename sets save_name on the parent row of slot. Returns rows changed.
func (f Family) Rename(ctx context.Context, ex Execer, name string, slot Slot) (int, error) {
	query := "UPDATE " + f.ParentTable + " SET save_name = ? WHERE id = ?" //nolint:gosec // table name is a package constant
	result, err := ex.ExecContext(ctx, query, name, int64(slot))
	if err != nil {
		return 0, fmt.Errorf("renaming %s %d: %w", f.Name, slot, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	return int(n), nil
}

// InsertedSlot returns the slot a parent insert landed in.
func InsertedSlot(result sql.Result) (Slot, error) {
	id, err := result.LastInsertId()
	if err != nil {
		return SlotUnset, fmt.Errorf("reading inserted id: %w", err)
	}
	return Slot(id), nil
}
