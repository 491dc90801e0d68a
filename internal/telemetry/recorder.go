// Package telemetry turns store operations into InfluxDB metrics.
package telemetry

import (
	"context"
	"database/sql"

	"github.com/nerrad567/ent-store/internal/infrastructure/influxdb"
	"github.com/nerrad567/ent-store/internal/observe"
)

// Writer is the subset of the InfluxDB client the recorder needs.
// *influxdb.Client satisfies it.
type Writer interface {
	WriteOperation(op influxdb.Operation)
	WriteStoreStats(stats influxdb.StoreStats)
}

// Recorder is an observe.Observer that writes one store_operations point
// per operation, successful or not.
type Recorder struct {
	writer Writer
}

// NewRecorder creates a recorder writing through w.
func NewRecorder(w Writer) *Recorder {
	return &Recorder{writer: w}
}

// Observe writes op as a point. Writes are batched by the client and never block.
func (r *Recorder) Observe(_ context.Context, op observe.Operation) {
	r.writer.WriteOperation(influxdb.Operation{
		Family:   op.Family,
		Action:   string(op.Action),
		Failed:   op.Err != nil,
		Duration: op.Duration,
		Rows:     op.Rows,
	})
}

// RecordStats writes a store_stats point for the database at path.
func (r *Recorder) RecordStats(path string, schemaVersion int, pool sql.DBStats) {
	r.writer.WriteStoreStats(influxdb.StoreStats{Path: path, SchemaVersion: schemaVersion, Pool: pool})
}

var (
	_ observe.Observer = (*Recorder)(nil)
	_ Writer           = (*influxdb.Client)(nil)
)
