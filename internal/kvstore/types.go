package kvstore

import (
	"errors"
	"fmt"
)

// ErrInvalidBinding is returned when a flag binding has no name or no target.
var ErrInvalidBinding = errors.New("kvstore: invalid flag binding")

// FlagBinding ties a persisted feature flag to the caller's variable.
//
// Enabled is read on store and written on load. Updated is an optional
// dirty marker owned by the caller; Load sets it to true whenever it writes
// a stored value into Enabled. The store never acts on it.
type FlagBinding struct {
	Name    string
	Enabled *bool
	Updated *bool
}

// Setting is one named string setting.
type Setting struct {
	Name  string
	Value string
}

func validateBindings(bindings []FlagBinding) error {
	for i, b := range bindings {
		if b.Name == "" {
			return fmt.Errorf("%w: entry %d has no name", ErrInvalidBinding, i)
		}
		if b.Enabled == nil {
			return fmt.Errorf("%w: %q has no target", ErrInvalidBinding, b.Name)
		}
	}
	return nil
}
