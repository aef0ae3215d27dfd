package backend

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisBroker implements Broker over Redis pub/sub, the only message-bus
// capable client in the dependency set: a topic becomes a channel name and
// Publish hands the payload straight to PUBLISH. It's a thin adapter, not a
// durable queue — matching the fire-and-forget contract MQRouter already
// assumes (no ack, no redelivery).
type RedisBroker struct {
	client *redis.Client
	prefix string
}

func NewRedisBroker(client *redis.Client, prefix string) *RedisBroker {
	return &RedisBroker{client: client, prefix: prefix}
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.client.Publish(ctx, b.prefix+topic, payload).Err()
}
