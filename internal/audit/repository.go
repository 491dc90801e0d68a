// Package audit keeps a journal of store mutations in the audit_logs table
// and answers history queries over it.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/ent-store/internal/infrastructure/database"
	"github.com/nerrad567/ent-store/internal/snapshot"
)

// AuditLog represents a single journal entry.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter controls which audit logs to return.
type Filter struct {
	Action     string // optional: save, delete, delete_children, rename, store
	EntityType string // optional: vehicle, skin, propset, feature_flags, settings
	EntityID   string // optional: slot of a saved entry
	Limit      int    // default 50, max 200
	Offset     int    // pagination offset
}

// ListResult contains the paginated audit log results.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository defines the interface for audit log operations.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores audit logs in SQLite behind the access guard.
type SQLiteRepository struct {
	guard *database.Guard
}

// NewSQLiteRepository creates a new audit log repository.
func NewSQLiteRepository(guard *database.Guard) *SQLiteRepository {
	return &SQLiteRepository{guard: guard}
}

// Create inserts a new audit log entry. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, log *AuditLog) error {
	if log.ID == "" {
		log.ID = "aud-" + uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}

	var detailsJSON *string
	if log.Details != nil {
		b, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		s := string(b)
		detailsJSON = &s
	}

	return r.guard.Do(ctx, func(ctx context.Context, s *database.Session) error {
		_, err := s.ExecContext(ctx,
			`INSERT INTO audit_logs (id, action, entity_type, entity_id, source, details, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			log.ID, log.Action, log.EntityType,
			nullableString(log.EntityID),
			log.Source, detailsJSON,
			log.CreatedAt.Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("inserting audit log: %w", err)
		}
		return nil
	})
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns audit logs matching the filter, ordered by most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) { //nolint:gocognit // dynamic query builder: WHERE clause assembly from filter fields
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for audit log queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.EntityType != "" {
		conditions = append(conditions, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		conditions = append(conditions, "entity_id = ?")
		args = append(args, filter.EntityID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_logs %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, action, entity_type, entity_id, source, details, created_at FROM audit_logs %s ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?",
		where,
	)

	var total int
	logs := []AuditLog{}

	err := r.guard.Do(ctx, func(ctx context.Context, s *database.Session) error {
		if err := s.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
			return fmt.Errorf("counting audit logs: %w", err)
		}

		rows, err := s.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
		if err != nil {
			return fmt.Errorf("querying audit logs: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			log, err := scanAuditLog(rows)
			if err != nil {
				return err
			}
			logs = append(logs, *log)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating audit logs: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &ListResult{
		Logs:   logs,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

func scanAuditLog(scanner snapshot.RowScanner) (*AuditLog, error) {
	var log AuditLog
	var entityID, detailsJSON sql.NullString
	var createdAt string

	if err := scanner.Scan(&log.ID, &log.Action, &log.EntityType,
		&entityID, &log.Source, &detailsJSON, &createdAt); err != nil {
		return nil, fmt.Errorf("scanning audit log: %w", err)
	}

	if entityID.Valid {
		log.EntityID = entityID.String
	}
	if detailsJSON.Valid && detailsJSON.String != "" {
		var details map[string]any
		if json.Unmarshal([]byte(detailsJSON.String), &details) == nil {
			log.Details = details
		}
	}

	t, err := snapshot.ParseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing audit log timestamp: %w", err)
	}
	log.CreatedAt = t

	return &log, nil
}
