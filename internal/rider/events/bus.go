package events

import (
	"context"
	"sync"
	"time"

	"deliveryBack/internal/rider/model"
)

// Topics published by the rider module.
const (
	TopicNewPending    = "delivery.new_pending"
	TopicStatusChanged = "delivery.status_changed"
	TopicClaimed       = "delivery.claimed"
	TopicRiderOffline  = "rider.offline"
	TopicLedgerChanged = "ledger.changed"
)

// AllTopics lists every topic in publication order.
var AllTopics = []string{
	TopicNewPending,
	TopicStatusChanged,
	TopicClaimed,
	TopicRiderOffline,
	TopicLedgerChanged,
}

// Event is a best-effort hint that state changed. Receivers re-fetch
// authoritative data from the store.
type Event struct {
	Topic     string                 `json:"topic"`
	RiderID   string                 `json:"rider_id,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Status    string                 `json:"status,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
	Request   *model.DeliveryRequest `json:"request,omitempty"`
	At        time.Time              `json:"at"`
	Origin    string                 `json:"origin,omitempty"`
}

// Publisher is implemented by anything that accepts events.
type Publisher interface {
	Publish(ctx context.Context, evt Event)
}

// Logger is the minimal logging contract of the bus.
type Logger interface {
	Infof(string, ...interface{})
	Errorf(string, ...interface{})
}

const defaultBuffer = 64

// Bus is an in-process fan-out channel. Delivery is at most once: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	buffer int
	logger Logger

	mu      sync.RWMutex
	nextID  int
	subs    map[string]map[int]chan Event
	forward func(context.Context, Event)
}

// NewBus creates a bus whose subscribers buffer up to buffer events.
func NewBus(buffer int, logger Logger) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Bus{buffer: buffer, logger: logger, subs: make(map[string]map[int]chan Event)}
}

// SetForwarder registers a hook that receives every locally published event,
// used to mirror events to other instances.
func (b *Bus) SetForwarder(fn func(context.Context, Event)) {
	b.mu.Lock()
	b.forward = fn
	b.mu.Unlock()
}

// Publish delivers evt to local subscribers and the forwarder.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	b.Deliver(evt)

	b.mu.RLock()
	forward := b.forward
	b.mu.RUnlock()
	if forward != nil {
		forward(ctx, evt)
	}
}

// Deliver hands evt to local subscribers only.
func (b *Bus) Deliver(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[evt.Topic] {
		select {
		case ch <- evt:
		default:
			if b.logger != nil {
				b.logger.Errorf("rider events: subscriber buffer full, dropped %s", evt.Topic)
			}
		}
	}
}

// Subscribe returns a channel receiving events of the given topics and a
// cancel function that unregisters it and closes the channel.
func (b *Bus) Subscribe(topics ...string) (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	for _, topic := range topics {
		if b.subs[topic] == nil {
			b.subs[topic] = make(map[int]chan Event)
		}
		b.subs[topic][id] = ch
	}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			for _, topic := range topics {
				delete(b.subs[topic], id)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Discard drops every event.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(context.Context, Event) {}
