package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	ops []Operation
}

func (r *recorder) Observe(_ context.Context, op Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func TestActionMutating(t *testing.T) {
	mutating := []Action{ActionSave, ActionDelete, ActionDeleteChildren, ActionRename, ActionStore}
	for _, a := range mutating {
		assert.True(t, a.Mutating(), "%s should be mutating", a)
	}

	readOnly := []Action{ActionList, ActionPopulate, ActionInstances, ActionLoad}
	for _, a := range readOnly {
		assert.False(t, a.Mutating(), "%s should be read-only", a)
	}
}

func TestMulti(t *testing.T) {
	t.Run("fans out in order", func(t *testing.T) {
		a, b := &recorder{}, &recorder{}
		o := Multi(a, nil, b)

		o.Observe(context.Background(), Operation{Family: FamilySkin, Action: ActionSave, Slot: 2})

		require.Len(t, a.ops, 1)
		require.Len(t, b.ops, 1)
		assert.Equal(t, int64(2), b.ops[0].Slot)
	})

	t.Run("empty is nop", func(t *testing.T) {
		o := Multi()
		assert.NotPanics(t, func() {
			o.Observe(context.Background(), Operation{})
		})
	})

	t.Run("single observer is returned as is", func(t *testing.T) {
		a := &recorder{}
		assert.Same(t, a, Multi(nil, a))
	})
}

func TestSpan(t *testing.T) {
	rec := &recorder{}
	failure := errors.New("disk full")

	Start(rec, FamilyVehicle, ActionRename, 7).Named("Sunday car").Done(context.Background(), 1, failure)

	require.Len(t, rec.ops, 1)
	op := rec.ops[0]
	assert.Equal(t, FamilyVehicle, op.Family)
	assert.Equal(t, ActionRename, op.Action)
	assert.Equal(t, int64(7), op.Slot)
	assert.Equal(t, "Sunday car", op.Name)
	assert.Equal(t, 1, op.Rows)
	assert.ErrorIs(t, op.Err, failure)
	assert.Equal(t, "error", op.Result())
	assert.GreaterOrEqual(t, op.Duration.Nanoseconds(), int64(0))
}

func TestSpan_NilObserver(t *testing.T) {
	assert.NotPanics(t, func() {
		Start(nil, FamilySettings, ActionLoad, -1).Done(context.Background(), 0, nil)
	})
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	o := LogObserver(logger)

	o.Observe(context.Background(), Operation{Family: FamilyPropSet, Action: ActionSave, Slot: 3, Name: "ramp"})
	assert.Contains(t, buf.String(), `"msg":"store operation"`)
	assert.Contains(t, buf.String(), `"save_name":"ramp"`)

	buf.Reset()
	o.Observe(context.Background(), Operation{Family: FamilyPropSet, Action: ActionDelete, Slot: 3, Err: errors.New("locked")})
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
	assert.Contains(t, buf.String(), `"error":"locked"`)
}
