package redis

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/boldengine/internal/domain"
	"github.com/redis/go-redis/v9"
)

// streamMaxLen caps each event stream via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// EventBus implements domain.EventPublisher. Each event is published on a
// Pub/Sub channel for live listeners and appended to a capped stream of the
// same name so late consumers can catch up.
type EventBus struct {
	client *Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{client: c}
}

// Publish sends payload to channel and appends it to the channel's stream.
func (b *EventBus) Publish(ctx context.Context, channel string, payload []byte) error {
	name := b.client.key("events", channel)

	_, err := b.client.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Publish(ctx, name, payload)
		p.XAdd(ctx, &redis.XAddArgs{
			Stream: name,
			MaxLen: streamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"payload": payload},
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.EventPublisher = (*EventBus)(nil)
