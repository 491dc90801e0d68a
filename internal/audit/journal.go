package audit

import (
	"context"
	"strconv"

	"github.com/nerrad567/ent-store/internal/observe"
)

// Logger is the subset of the structured logger the journal reports to.
type Logger interface {
	Error(msg string, args ...any)
}

// Journal is an observe.Observer that records every successful mutating
// store operation as an audit log.
//
// Observers run after the access guard is released, so the journal writes
// through the same guard as the operation it records.
type Journal struct {
	repo   Repository
	source string
	logger Logger
}

// NewJournal creates a journal writing to repo. Entries carry source as
// their origin (typically the process or tool name).
func NewJournal(repo Repository, source string, logger Logger) *Journal {
	return &Journal{repo: repo, source: source, logger: logger}
}

// Observe records op when it changed stored state.
func (j *Journal) Observe(ctx context.Context, op observe.Operation) {
	if op.Err != nil || !op.Action.Mutating() {
		return
	}

	entry := &AuditLog{
		Action:     string(op.Action),
		EntityType: op.Family,
		Source:     j.source,
		Details: map[string]any{
			"rows":        op.Rows,
			"duration_ms": op.Duration.Milliseconds(),
		},
	}
	if op.Slot > 0 {
		entry.EntityID = strconv.FormatInt(op.Slot, 10)
	}
	if op.Name != "" {
		entry.Details["name"] = op.Name
	}

	if err := j.repo.Create(ctx, entry); err != nil && j.logger != nil {
		j.logger.Error("audit journal write failed",
			"family", op.Family,
			"action", string(op.Action),
			"error", err,
		)
	}
}

var _ observe.Observer = (*Journal)(nil)
