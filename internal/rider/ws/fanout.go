package ws

import (
	"context"
	"time"

	"deliveryBack/internal/rider/events"
)

const onlineCheckTimeout = 2 * time.Second

// OnlineChecker reports the persisted availability of a rider.
type OnlineChecker interface {
	IsOnline(ctx context.Context, riderID string) (bool, error)
}

// Fanout routes bus events to websocket clients. New and claimed requests go
// to every connected online rider, rider-scoped events go to that rider, and
// administrators see everything.
type Fanout struct {
	riders *RiderHub
	admins *AdminHub
	online OnlineChecker
	logger Logger
}

// NewFanout constructs a fanout. admins may be nil.
func NewFanout(riders *RiderHub, admins *AdminHub, online OnlineChecker, logger Logger) *Fanout {
	return &Fanout{riders: riders, admins: admins, online: online, logger: logger}
}

// Run consumes the bus until ctx is cancelled.
func (f *Fanout) Run(ctx context.Context, bus *events.Bus) error {
	ch, cancel := bus.Subscribe(events.AllTopics...)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-ch:
			if !ok {
				return nil
			}
			f.route(ctx, evt)
		}
	}
}

func (f *Fanout) route(ctx context.Context, evt events.Event) {
	if f.admins != nil {
		f.admins.Broadcast(evt)
	}
	if f.riders == nil {
		return
	}
	switch evt.Topic {
	case events.TopicNewPending, events.TopicClaimed:
		f.riders.BroadcastIf(evt, func(riderID string) bool { return f.isOnline(ctx, riderID) })
	default:
		if evt.RiderID != "" {
			f.riders.Push(evt.RiderID, evt)
		}
	}
}

func (f *Fanout) isOnline(ctx context.Context, riderID string) bool {
	ctx, cancel := context.WithTimeout(ctx, onlineCheckTimeout)
	defer cancel()
	online, err := f.online.IsOnline(ctx, riderID)
	if err != nil {
		f.logger.Errorf("rider ws: online check for %s failed: %v", riderID, err)
		return false
	}
	return online
}
