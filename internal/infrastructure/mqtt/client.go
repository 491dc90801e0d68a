package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/ent-store/internal/infrastructure/config"
)

// Client is the store's connection to the broker. It publishes committed
// changes, keeps a retained status message describing the open store and
// lets tools follow changes made by other processes.
//
// All methods are safe for concurrent use. A change watch and the announced
// store status survive reconnects.
type Client struct {
	paho   pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	mu           sync.RWMutex
	online       bool
	announced    *StoreInfo
	watcher      ChangeHandler
	logger       Logger
	onConnect    func()
	onDisconnect func(err error)
}

// Logger receives handler failures and reconnect notices.
// *logging.Logger and *slog.Logger satisfy it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Connect dials the broker described by cfg and waits for the first
// session. The broker is told to publish an offline status for this client
// if the connection drops without Close.
//
// Returns:
//   - *Client: Connected client
//   - error: wrapping ErrConnectionFailed
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:    cfg,
		topics: Topics{Prefix: cfg.TopicPrefix},
	}

	opts := buildClientOptions(cfg)
	opts.SetBinaryWill(c.topics.SystemStatus(), c.statusPayload(statusOffline, reasonLost), willQoS, true)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.sessionUp() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.sessionDown(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("MQTT reconnecting", "client_id", cfg.Broker.ClientID)
		}
	})

	c.paho = pahomqtt.NewClient(opts)
	token := c.paho.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("%w: no answer from broker within %v", ErrConnectionFailed, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect handler runs on its own goroutine and may not have fired yet
	c.setOnline(true)
	return c, nil
}

// sessionUp runs on every (re)connect: it restores the change watch and
// repeats the last store announcement.
func (c *Client) sessionUp() {
	c.setOnline(true)

	c.mu.RLock()
	watcher := c.watcher
	info := c.announced
	callback := c.onConnect
	c.mu.RUnlock()

	if watcher != nil {
		c.paho.Subscribe(c.topics.AllSnapshotChanges(), c.QoS(), c.deliver(watcher))
	}
	if info != nil {
		c.paho.Publish(c.topics.SystemStatus(), c.QoS(), true, c.statusPayload(statusOnline, ""))
	}
	if callback != nil {
		callback()
	}
}

func (c *Client) sessionDown(err error) {
	c.setOnline(false)

	c.mu.RLock()
	callback := c.onDisconnect
	c.mu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

func (c *Client) setOnline(online bool) {
	c.mu.Lock()
	c.online = online
	c.mu.Unlock()
}

// Close publishes a retained offline status when a store was announced,
// then disconnects. Calling Close on a nil or unconnected client is a no-op.
func (c *Client) Close() error {
	if c == nil || c.paho == nil {
		return nil
	}

	c.mu.RLock()
	announced := c.announced != nil
	c.mu.RUnlock()

	if announced && c.IsConnected() {
		token := c.paho.Publish(c.topics.SystemStatus(), c.QoS(), true, c.statusPayload(statusOffline, reasonClosed))
		token.WaitTimeout(publishTimeout)
	}

	c.paho.Disconnect(disconnectQuiesce)
	c.setOnline(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known session state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	online := c.online
	c.mu.RUnlock()
	return online && c.paho != nil && c.paho.IsConnected()
}

// Topics returns the topic builder for the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

// QoS returns the configured delivery level for changes and status.
func (c *Client) QoS() byte {
	return byte(c.cfg.QoS)
}

// SetOnConnect registers a callback for the initial connect and every reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect registers a callback for lost connections.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets where handler failures are reported. Without one they are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}
