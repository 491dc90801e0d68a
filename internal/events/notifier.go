package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/ent-store/internal/observe"
)

// DefaultQueueSize is used when NewNotifier is given a non-positive size.
const DefaultQueueSize = 256

// Event is the JSON payload of a change message.
type Event struct {
	ID        string    `json:"id"`
	Family    string    `json:"family"`
	Action    string    `json:"action"`
	Slot      int64     `json:"slot,omitempty"`
	Name      string    `json:"name,omitempty"`
	Rows      int       `json:"rows"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher sends one change message. *mqtt.Client satisfies it.
type Publisher interface {
	PublishChange(family, action string, payload []byte) error
}

// Logger is the subset of the structured logger the notifier reports to.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Notifier.
type Options struct {
	QueueSize int
	Logger    Logger
}

// Notifier queues change events and publishes them in order.
//
// Thread Safety:
//   - Observe and Close are safe for concurrent use.
type Notifier struct {
	pub    Publisher
	logger Logger

	queue chan Event
	wg    sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	dropped int
}

// NewNotifier starts a notifier publishing through pub.
// Close must be called to flush queued events and stop the worker.
func NewNotifier(pub Publisher, opts Options) *Notifier {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}

	n := &Notifier{
		pub:    pub,
		logger: opts.Logger,
		queue:  make(chan Event, size),
	}

	n.wg.Add(1)
	go n.run()
	return n
}

// Observe queues op for publishing when it is a successful change.
func (n *Notifier) Observe(_ context.Context, op observe.Operation) {
	if op.Err != nil || !op.Action.Mutating() {
		return
	}

	event := Event{
		ID:        uuid.NewString(),
		Family:    op.Family,
		Action:    string(op.Action),
		Name:      op.Name,
		Rows:      op.Rows,
		Timestamp: time.Now().UTC(),
	}
	if op.Slot > 0 {
		event.Slot = op.Slot
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}

	select {
	case n.queue <- event:
	default:
		n.dropped++
		if n.logger != nil {
			n.logger.Warn("change event dropped, queue full",
				"family", event.Family,
				"action", event.Action,
				"dropped", n.dropped,
			)
		}
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (n *Notifier) Dropped() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.dropped
}

// Close stops accepting events, publishes everything already queued and
// waits for the worker to exit. Safe to call more than once.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()

	n.wg.Wait()
}

func (n *Notifier) run() {
	defer n.wg.Done()

	for event := range n.queue {
		n.publish(event)
	}
}

func (n *Notifier) publish(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.logError("marshalling change event", event, err)
		return
	}

	if err := n.pub.PublishChange(event.Family, event.Action, payload); err != nil {
		n.logError("publishing change event", event, err)
	}
}

func (n *Notifier) logError(msg string, event Event, err error) {
	if n.logger == nil {
		return
	}
	n.logger.Error(msg,
		"event_id", event.ID,
		"family", event.Family,
		"action", event.Action,
		"error", err,
	)
}

var _ observe.Observer = (*Notifier)(nil)
