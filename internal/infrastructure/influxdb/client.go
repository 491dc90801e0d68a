package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/ent-store/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// Client writes store metrics to one InfluxDB bucket. Points are batched by
// the library and sent in the background, so a slow or absent server never
// holds up a store operation.
//
// All methods are safe for concurrent use.
type Client struct {
	influx influxdb2.Client
	writer api.WriteAPI

	mu      sync.RWMutex
	open    bool
	onError func(err error)
}

// Connect pings the server at cfg.URL and returns a client writing to
// cfg.Org/cfg.Bucket.
//
// Returns:
//   - *Client: Ready for writes
//   - error: ErrDisabled, or wrapping ErrConnectionFailed
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize, flushMillis := batchSettings(cfg)
	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batchSize).
			SetFlushInterval(flushMillis),
	)

	if err := ping(ctx, influx); err != nil {
		influx.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	}

	c := &Client{
		influx: influx,
		writer: influx.WriteAPI(cfg.Org, cfg.Bucket),
		open:   true,
	}
	go c.forwardErrors(c.writer.Errors())
	return c, nil
}

// batchSettings returns the batch size and the flush interval in
// milliseconds, falling back to defaults for unset or negative values.
func batchSettings(cfg config.InfluxDBConfig) (size, flushMillis uint) {
	batch, flush := cfg.BatchSize, cfg.FlushInterval
	if batch <= 0 {
		batch = defaultBatchSize
	}
	if flush <= 0 {
		flush = defaultFlushInterval
	}
	// #nosec G115 -- both positive
	return uint(batch), uint(flush) * uint(time.Second/time.Millisecond)
}

func ping(ctx context.Context, influx influxdb2.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := influx.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return errUnhealthy
	}
	return nil
}

// forwardErrors hands background write failures to the OnError callback.
func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		callback := c.onError
		c.mu.RUnlock()
		if callback != nil {
			callback(err)
		}
	}
}

// SetOnError registers a callback for batch writes the server rejected.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	c.onError = callback
	c.mu.Unlock()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := ping(ctx, c.influx); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// IsConnected reports whether the client accepts writes.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// Flush sends buffered points now. No-op once closed.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writer.Flush()
	}
}

// Close flushes buffered points and releases the connection. Later writes
// are dropped. Safe on a nil client.
func (c *Client) Close() error {
	if c == nil || c.influx == nil {
		return nil
	}

	c.mu.Lock()
	wasOpen := c.open
	c.open = false
	c.mu.Unlock()

	if wasOpen {
		c.writer.Flush()
		c.influx.Close()
	}
	return nil
}
