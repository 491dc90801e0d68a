package skin

import (
	"errors"
	"time"

	"github.com/nerrad567/ent-store/internal/snapshot"
)

// ErrNilSkin is returned when Save or Populate is given no skin.
var ErrNilSkin = errors.New("skin: nil skin")

// Skin is a saved ped appearance.
type Skin struct {
	Slot      snapshot.Slot
	SaveName  string
	Model     uint32
	CreatedAt time.Time

	// Filled by Populate.
	Components []Component
	Props      []Prop
}

// Component is one clothing slot (head, torso, legs, ...).
type Component struct {
	ID       int64
	ParentID snapshot.Slot
	SlotID   int
	Drawable int
	Texture  int
}

// Prop is one prop anchor (hat, glasses, watch, ...). Drawable -1 means
// the anchor is empty.
type Prop struct {
	ID       int64
	ParentID snapshot.Slot
	PropID   int
	Drawable int
	Texture  int
}
