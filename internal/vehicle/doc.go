// Package vehicle stores saved vehicle customisations.
//
// A saved vehicle is one saved_vehicles row (model, paint, livery, plate,
// wheels, windows, neon, tyre smoke, interior) plus its extras and mods in
// saved_vehicle_extras and saved_vehicle_mods. Listing returns the scalar
// fields only; Populate loads the children of the one entry a caller picks.
//
// Saving into an existing slot replaces the entry and every child as one
// unit. Deleting an entry removes its children in the same transaction.
package vehicle
