// Package store opens the trainer's local persistence layer and wires its
// parts together: the database connection, schema migrations, the access
// guard, the key/value store, the three snapshot repositories and the
// optional audit journal.
//
// Usage:
//
//	st, err := store.Open(ctx, cfg.Database,
//	    store.WithLogger(logger),
//	    store.WithObserver(notifier),
//	    store.WithJournal("entstore"),
//	)
//	if err != nil {
//	    return err // the store is unusable; nothing else may touch it
//	}
//	defer st.Close()
//
//	slot, err := st.Vehicles.Save(ctx, v, "street racer", snapshot.SlotUnset)
package store
