// Package snapshot holds what the three saved-snapshot families (vehicles,
// skins, prop sets) share: the Slot identifier and the parent/child table
// layout used to delete, rename and replace a saved entry.
//
// A saved entry is a parent row identified by its slot plus any number of
// child rows carrying that slot in parent_id. Children never outlive their
// parent through this package: Family.Delete removes both in the caller's
// transaction.
package snapshot
