// Package observe carries a record of every store operation to optional
// sinks (structured logs, MQTT change events, InfluxDB metrics, the audit
// journal).
//
// Observers are called after the access guard has been released, so an
// observer may itself use the store.
package observe

import (
	"context"
	"time"
)

// Action names a store operation.
type Action string

// Store operations reported to observers.
const (
	ActionSave           Action = "save"
	ActionList           Action = "list"
	ActionPopulate       Action = "populate"
	ActionInstances      Action = "instances"
	ActionDelete         Action = "delete"
	ActionDeleteChildren Action = "delete_children"
	ActionRename         Action = "rename"
	ActionStore          Action = "store"
	ActionLoad           Action = "load"
)

// Families reported in Operation.Family.
const (
	FamilyVehicle  = "vehicle"
	FamilySkin     = "skin"
	FamilyPropSet  = "propset"
	FamilyFlags    = "feature_flags"
	FamilySettings = "settings"
)

// Operation describes one completed store operation.
type Operation struct {
	Family   string
	Action   Action
	Slot     int64 // -1 when the operation is not slot-addressed
	Name     string
	Rows     int // rows returned, written or affected
	Duration time.Duration
	Err      error
}

// Mutating reports whether the action changes stored state.
func (a Action) Mutating() bool {
	switch a {
	case ActionSave, ActionDelete, ActionDeleteChildren, ActionRename, ActionStore:
		return true
	default:
		return false
	}
}

// Result returns "ok" or "error" for tagging.
func (op Operation) Result() string {
	if op.Err != nil {
		return "error"
	}
	return "ok"
}

// Observer receives completed operations. Implementations must be safe for
// concurrent use and must not block for long.
type Observer interface {
	Observe(ctx context.Context, op Operation)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, op Operation)

// Observe calls f(ctx, op).
func (f ObserverFunc) Observe(ctx context.Context, op Operation) {
	f(ctx, op)
}

// Nop discards every operation.
var Nop Observer = ObserverFunc(func(context.Context, Operation) {})

// Multi fans an operation out to every non-nil observer, in order.
func Multi(observers ...Observer) Observer {
	var list []Observer
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	switch len(list) {
	case 0:
		return Nop
	case 1:
		return list[0]
	}
	return multi(list)
}

type multi []Observer

func (m multi) Observe(ctx context.Context, op Operation) {
	for _, o := range m {
		o.Observe(ctx, op)
	}
}

// Span times an operation. Call Done when it completes.
//
//	span := observe.Start(observer, observe.FamilySkin, observe.ActionRename, slot)
//	defer func() { span.Done(ctx, rows, err) }()
type Span struct {
	observer Observer
	op       Operation
	start    time.Time
}

// Start begins timing an operation.
func Start(o Observer, family string, action Action, slot int64) *Span {
	if o == nil {
		o = Nop
	}
	return &Span{
		observer: o,
		op:       Operation{Family: family, Action: action, Slot: slot},
		start:    time.Now(),
	}
}

// Named attaches a save name to the operation.
func (s *Span) Named(name string) *Span {
	s.op.Name = name
	return s
}

// At sets the slot reported for the operation, for saves that allocate one.
func (s *Span) At(slot int64) *Span {
	s.op.Slot = slot
	return s
}

// Done reports the finished operation to the observer.
func (s *Span) Done(ctx context.Context, rows int, err error) {
	op := s.op
	op.Rows = rows
	op.Err = err
	op.Duration = time.Since(s.start)
	s.observer.Observe(ctx, op)
}
