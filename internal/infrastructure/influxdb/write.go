package influxdb

import (
	"database/sql"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the store.
const (
	MeasurementStoreOperations = "store_operations"
	MeasurementStoreStats      = "store_stats"
)

// Operation is one completed store call.
type Operation struct {
	Family   string // vehicle, skin, propset, flags or settings
	Action   string // save, list, populate, ...
	Failed   bool
	Duration time.Duration // includes waiting for the access guard
	Rows     int
}

// StoreStats describes the database file and its connection pool.
type StoreStats struct {
	Path          string
	SchemaVersion int
	Pool          sql.DBStats
}

// WriteOperation queues a store_operations point tagged with family,
// action and result (ok or error).
func (c *Client) WriteOperation(op Operation) {
	if c.IsConnected() {
		c.writer.WritePoint(operationPoint(op, time.Now()))
	}
}

// WriteStoreStats queues a store_stats point tagged with the database path.
func (c *Client) WriteStoreStats(stats StoreStats) {
	if c.IsConnected() {
		c.writer.WritePoint(statsPoint(stats, time.Now()))
	}
}

func operationPoint(op Operation, at time.Time) *write.Point {
	result := "ok"
	if op.Failed {
		result = "error"
	}
	return write.NewPoint(MeasurementStoreOperations,
		map[string]string{
			"family": op.Family,
			"action": op.Action,
			"result": result,
		},
		map[string]any{
			"duration_ms": float64(op.Duration.Microseconds()) / 1000, //nolint:mnd // microseconds to milliseconds
			"rows":        op.Rows,
		},
		at,
	)
}

func statsPoint(stats StoreStats, at time.Time) *write.Point {
	return write.NewPoint(MeasurementStoreStats,
		map[string]string{
			"db": stats.Path,
		},
		map[string]any{
			"schema_version":   stats.SchemaVersion,
			"open_connections": stats.Pool.OpenConnections,
			"in_use":           stats.Pool.InUse,
			"wait_count":       stats.Pool.WaitCount,
			"wait_ms":          stats.Pool.WaitDuration.Milliseconds(),
		},
		at,
	)
}
