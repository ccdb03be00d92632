package events

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisBridge mirrors bus events across service instances through a Redis
// pub/sub channel. Events carry the publishing instance id so an instance
// never re-delivers its own messages.
type RedisBridge struct {
	rdb      *redis.Client
	channel  string
	bus      *Bus
	logger   Logger
	instance string
}

// NewRedisBridge wires the bridge as the bus forwarder.
func NewRedisBridge(rdb *redis.Client, channel string, bus *Bus, logger Logger) *RedisBridge {
	b := &RedisBridge{
		rdb:      rdb,
		channel:  channel,
		bus:      bus,
		logger:   logger,
		instance: uuid.NewString(),
	}
	bus.SetForwarder(b.forward)
	return b
}

func (b *RedisBridge) forward(ctx context.Context, evt Event) {
	if evt.Origin != "" {
		return
	}
	evt.Origin = b.instance
	data, err := json.Marshal(evt)
	if err != nil {
		b.logger.Errorf("rider events: marshal %s failed: %v", evt.Topic, err)
		return
	}
	if err := b.rdb.Publish(context.WithoutCancel(ctx), b.channel, data).Err(); err != nil {
		b.logger.Errorf("rider events: redis publish %s failed: %v", evt.Topic, err)
	}
}

// Run relays events published by other instances until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	b.logger.Infof("rider events: relaying redis channel %s", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var evt Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.logger.Errorf("rider events: skip malformed message: %v", err)
				continue
			}
			if evt.Origin == b.instance {
				continue
			}
			b.bus.Deliver(evt)
		}
	}
}
