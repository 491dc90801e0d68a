package snapshot

import (
	"fmt"
	"time"
)

// RowScanner is an interface that sql.Row and sql.Rows both implement.
type RowScanner interface {
	Scan(dest ...any) error
}

// ParseTime parses a created_at column. SQLite's strftime default writes
// the second form; rows written from Go use RFC 3339.
func ParseTime(value string) (time.Time, error) {
	timestamp, err := time.Parse(time.RFC3339, value)
	if err == nil {
		return timestamp, nil
	}

	fallback, fallbackErr := time.Parse("2006-01-02T15:04:05Z", value)
	if fallbackErr == nil {
		return fallback, nil
	}

	return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", value, err)
}
