package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// ChangeHandler receives one change message. It runs on a paho goroutine,
// so it must not block for long. A returned error is logged and otherwise
// ignored.
type ChangeHandler func(family, action string, payload []byte) error

// WatchChanges subscribes handler to every change published under the
// configured prefix. Only one watch is active per client; a second call
// replaces the handler. The watch is restored after a reconnect.
func (c *Client) WatchChanges(handler ChangeHandler) error {
	if handler == nil {
		return fmt.Errorf("%w: nil handler", ErrWatchFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.mu.Lock()
	c.watcher = handler
	c.mu.Unlock()

	topic := c.topics.AllSnapshotChanges()
	token := c.paho.Subscribe(topic, c.QoS(), c.deliver(handler))
	if !token.WaitTimeout(publishTimeout) {
		c.clearWatcher()
		return fmt.Errorf("%w: %s not acknowledged within %v", ErrWatchFailed, topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		c.clearWatcher()
		return fmt.Errorf("%w: %s: %w", ErrWatchFailed, topic, err)
	}
	return nil
}

// StopWatching ends the change watch. Messages already in flight may still
// reach the handler.
func (c *Client) StopWatching() error {
	c.clearWatcher()
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.paho.Unsubscribe(c.topics.AllSnapshotChanges())
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: unsubscribe not acknowledged within %v", ErrWatchFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrWatchFailed, err)
	}
	return nil
}

func (c *Client) clearWatcher() {
	c.mu.Lock()
	c.watcher = nil
	c.mu.Unlock()
}

// deliver adapts handler to paho. Topics that are not change topics are
// skipped, and a panicking handler does not take the client down.
func (c *Client) deliver(handler ChangeHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("change handler panicked", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		family, action, ok := c.topics.ParseChange(msg.Topic())
		if !ok {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("ignoring message on unexpected topic", "topic", msg.Topic())
			}
			return
		}

		if err := handler(family, action, msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("change handler failed",
					"family", family,
					"action", action,
					"error", err,
				)
			}
		}
	}
}
