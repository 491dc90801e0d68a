// Package propset stores saved prop placements.
//
// A prop set is a named collection of placed props. Its size is never
// stored; List derives it from the number of saved_prop_instances rows
// owned by the set, so a listing can show "12 props" without loading them.
package propset
