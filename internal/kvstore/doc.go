// Package kvstore persists the trainer's feature flags and free-form
// settings.
//
// Both tables are mirrored by in-memory caches that are only touched while
// the access guard is held. Loads refresh the cache; stores write through it
// after their transaction commits, so the cache never holds a value the
// database rolled back.
//
// A name missing from the database is not an error: the caller's default
// stays in place.
package kvstore
