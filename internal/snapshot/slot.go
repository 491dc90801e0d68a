package snapshot

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrInvalidSlot is returned for a slot that is neither unset nor a valid row id.
var ErrInvalidSlot = errors.New("snapshot: invalid slot")

// Slot identifies a saved entry. It is the parent row id.
type Slot int64

const (
	// SlotUnset asks Save to allocate a fresh slot.
	SlotUnset Slot = -1

	// AllEntries asks List for every saved entry.
	AllEntries Slot = -1
)

// IsSet reports whether s names a specific entry.
func (s Slot) IsSet() bool {
	return s != SlotUnset
}

// Validate accepts SlotUnset and any positive id.
func (s Slot) Validate() error {
	if s == SlotUnset || s > 0 {
		return nil
	}
	return fmt.Errorf("%w: %d", ErrInvalidSlot, int64(s))
}

// Arg returns the value bound to an explicit-id insert: nil lets SQLite
// allocate the next id, a set slot is reused as the row id.
func (s Slot) Arg() any {
	if !s.IsSet() {
		return nil
	}
	return int64(s)
}

// String formats the slot for logs and CLI output.
func (s Slot) String() string {
	if !s.IsSet() {
		return "unset"
	}
	return strconv.FormatInt(int64(s), 10)
}

// ParseSlot parses a decimal slot. "all" and "-1" parse to AllEntries.
func ParseSlot(v string) (Slot, error) {
	if v == "all" {
		return AllEntries, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSlot, v)
	}
	s := Slot(n)
	if err := s.Validate(); err != nil {
		return 0, err
	}
	return s, nil
}

// RequireSet validates a slot that must address an existing entry.
func RequireSet(s Slot) error {
	if s > 0 {
		return nil
	}
	return fmt.Errorf("%w: %d", ErrInvalidSlot, int64(s))
}
