package propset

import (
	"errors"
	"time"

	"github.com/nerrad567/ent-store/internal/snapshot"
)

// ErrNilPropSet is returned when Populate is given no prop set.
var ErrNilPropSet = errors.New("propset: nil prop set")

// PropSet is a saved collection of placed props.
type PropSet struct {
	Slot      snapshot.Slot
	SaveName  string
	CreatedAt time.Time

	// Size is the instance count reported by List.
	Size int

	// Items is filled by Populate.
	Items []PropInstance
}

// Position is a world coordinate.
type Position struct {
	X float32
	Y float32
	Z float32
}

// Rotation is an orientation in degrees.
type Rotation struct {
	Pitch float32
	Roll  float32
	Yaw   float32
}

// PropInstance is one placed prop.
type PropInstance struct {
	ID       int64
	ParentID snapshot.Slot
	Model    uint32
	Title    string

	// Counter tells apart several instances of the same model saved together.
	Counter int

	Position Position
	Rotation Rotation

	Immovable  bool
	Invincible bool
	HasGravity bool
	Alpha      int
}

// Len returns the number of loaded items, or Size when none are loaded.
func (p *PropSet) Len() int {
	if p.Items != nil {
		return len(p.Items)
	}
	return p.Size
}
