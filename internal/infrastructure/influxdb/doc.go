// Package influxdb writes store metrics to InfluxDB v2.
//
// Two measurements are written:
//   - store_operations: one point per store call, tagged family, action and
//     result, with duration_ms and rows fields
//   - store_stats: schema version and connection pool counters for the
//     database file, written when the store closes
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteOperation(influxdb.Operation{Family: "vehicle", Action: "save", Duration: elapsed, Rows: rows})
//
// Writes never block; rejected batches are reported through SetOnError.
package influxdb
