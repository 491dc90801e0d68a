package observe

import (
	"context"
	"log/slog"
)

// Logger is the subset of *slog.Logger used for operation logs.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

// LogObserver writes failed operations at error level and the rest at debug.
func LogObserver(logger Logger) Observer {
	return ObserverFunc(func(_ context.Context, op Operation) {
		args := []any{
			"family", op.Family,
			"action", string(op.Action),
			"slot", op.Slot,
			"rows", op.Rows,
			"duration", op.Duration,
		}
		if op.Name != "" {
			args = append(args, "save_name", op.Name)
		}
		if op.Err != nil {
			logger.Error("store operation failed", append(args, "error", op.Err)...)
			return
		}
		logger.Debug("store operation", args...)
	})
}

var _ Logger = (*slog.Logger)(nil)
