package vehicle

import (
	"time"

	"github.com/nerrad567/ent-store/internal/snapshot"
)

// RGB is a custom colour. Components are 0-255; -1 means not set.
type RGB struct {
	R int
	G int
	B int
}

// Neon records which underglow tubes are lit.
type Neon struct {
	Left  bool
	Right bool
	Front bool
	Back  bool
}

// Vehicle is a saved vehicle snapshot.
//
// Slot, SaveName and CreatedAt are assigned by the store; Save ignores the
// values on the struct it is given.
type Vehicle struct {
	Slot      snapshot.Slot
	SaveName  string
	CreatedAt time.Time

	Model uint32

	// Paint
	ColourPrimary    int
	ColourSecondary  int
	ColourExtraPearl int
	ColourExtraWheel int
	ColourMod1Type   int
	ColourMod1Colour int
	ColourMod1P3     int
	ColourMod2Type   int
	ColourMod2Colour int
	CustomPrimary    RGB
	CustomSecondary  RGB
	Livery           int

	// Body
	PlateText         string
	PlateType         int
	WheelType         int
	WindowTint        int
	BurstableTyres    bool
	CustomTyres       bool
	DirtLevel         float32
	FadeLevel         float32
	ConvertibleRoofUp bool

	// Lighting
	NeonColour RGB
	NeonLights Neon
	TyreSmoke  RGB

	// Interior
	DashboardColour int
	InteriorColour  int

	// Children, filled by Populate.
	Extras []Extra
	Mods   []Mod
}

// Extra is a toggleable vehicle extra (roof racks, light bars, ...).
type Extra struct {
	ID       int64
	ParentID snapshot.Slot
	ExtraID  int
	State    int
}

// Mod is an installed modification. Toggle mods (turbo, xenon lights)
// store on/off in State.
type Mod struct {
	ID       int64
	ParentID snapshot.Slot
	ModID    int
	State    int
	IsToggle bool
}
