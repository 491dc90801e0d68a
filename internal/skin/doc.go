// Package skin stores saved ped appearances: the ped model plus the drawable
// and texture chosen for each clothing component and prop slot.
package skin
