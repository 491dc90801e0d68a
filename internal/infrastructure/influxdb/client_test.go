package influxdb_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/ent-store/internal/infrastructure/config"
	"github.com/nerrad567/ent-store/internal/infrastructure/influxdb"
)

// testConfig returns a configuration for the local dev InfluxDB.
func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "entstore-dev-token",
		Org:           "ent",
		Bucket:        "entstore",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// connectOrSkip connects to the local server, skipping when it is not
// running unless RUN_INTEGRATION is set.
func connectOrSkip(t *testing.T) *influxdb.Client {
	t.Helper()

	client, err := influxdb.Connect(context.Background(), testConfig())
	if err != nil {
		if os.Getenv("RUN_INTEGRATION") != "" {
			t.Fatalf("Connect() error = %v", err)
		}
		t.Skip("InfluxDB not available, skipping integration test")
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

// captureErrors records background write failures.
func captureErrors(client *influxdb.Client) func() error {
	var mu sync.Mutex
	var last error
	client.SetOnError(func(err error) {
		mu.Lock()
		last = err
		mu.Unlock()
	})
	return func() error {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func TestConnect(t *testing.T) {
	client := connectOrSkip(t)

	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() should fail for a cancelled context")
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	if _, err := influxdb.Connect(context.Background(), cfg); !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	if _, err := influxdb.Connect(context.Background(), cfg); !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteStoreMetrics(t *testing.T) {
	client := connectOrSkip(t)
	lastErr := captureErrors(client)

	client.WriteOperation(influxdb.Operation{Family: "vehicle", Action: "save", Duration: 2500 * time.Microsecond, Rows: 12})
	client.WriteOperation(influxdb.Operation{Family: "skin", Action: "populate", Failed: true})
	client.WriteStoreStats(influxdb.StoreStats{
		Path:          "/tmp/entstore-test.db",
		SchemaVersion: 9,
		Pool:          sql.DBStats{OpenConnections: 1, WaitCount: 3},
	})
	client.Flush()

	time.Sleep(100 * time.Millisecond)
	if err := lastErr(); err != nil {
		t.Errorf("write error = %v", err)
	}
}

func TestClose(t *testing.T) {
	client := connectOrSkip(t)

	client.WriteOperation(influxdb.Operation{Family: "propset", Action: "delete", Rows: 3})
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	// Second close and late writes are harmless
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	client.WriteOperation(influxdb.Operation{Family: "propset", Action: "list"})
}

func TestClose_Nil(t *testing.T) {
	var client *influxdb.Client
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}
