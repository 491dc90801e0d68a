package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"

	reasonClosed = "store_closed"
	reasonLost   = "connection_lost"
)

// StoreInfo identifies the store behind a client in its status message.
type StoreInfo struct {
	Path          string `json:"path"`
	SchemaVersion int    `json:"schema_version"`
}

// Status is the retained payload on {prefix}/system/status.
type Status struct {
	Status    string     `json:"status"`
	ClientID  string     `json:"client_id"`
	Reason    string     `json:"reason,omitempty"`
	Store     *StoreInfo `json:"store,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Announce publishes a retained online status naming the open store. The
// announcement is repeated after every reconnect, and Close replaces it
// with an offline status.
func (c *Client) Announce(info StoreInfo) error {
	c.mu.Lock()
	c.announced = &info
	c.mu.Unlock()

	if err := c.publish(c.topics.SystemStatus(), c.statusPayload(statusOnline, ""), true); err != nil {
		return fmt.Errorf("announcing store %s: %w", info.Path, err)
	}
	return nil
}

func (c *Client) statusPayload(status, reason string) []byte {
	c.mu.RLock()
	msg := Status{
		Status:    status,
		ClientID:  c.cfg.Broker.ClientID,
		Reason:    reason,
		Store:     c.announced,
		Timestamp: time.Now().UTC(),
	}
	c.mu.RUnlock()

	payload, _ := json.Marshal(msg) //nolint:errchkjson // Fixed field types
	return payload
}
