package mqtt

import "fmt"

// PublishChange sends one committed store change to
// {prefix}/snapshot/{family}/{action} at the configured QoS. Changes are
// never retained: a late watcher reads the store, not the last event.
func (c *Client) PublishChange(family, action string, payload []byte) error {
	if family == "" || action == "" {
		return fmt.Errorf("%w: family %q action %q", ErrInvalidChange, family, action)
	}
	return c.publish(c.topics.SnapshotChange(family, action), payload, false)
}

func (c *Client) publish(topic string, payload []byte, retained bool) error {
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}
	if c == nil || !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.paho.Publish(topic, c.QoS(), retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: %s not acknowledged within %v", ErrPublishFailed, topic, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}
