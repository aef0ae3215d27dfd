package tagcancel

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// TagRegistry is the cancellation-registry surface spec.md §4.10 names;
// Registry satisfies it directly, and RedisRegistry is the alternate
// backing for a horizontally-scaled gateway deployment where CancelByTag
// on one process must also reach in-flight calls owned by its siblings.
type TagRegistry interface {
	AddTagTask(tag string, cancelable Cancelable, owner string) *TagTask
	RemoveTagTask(owner string)
	CancelByTag(queryTag string) int
	CancelAll() int
}

var _ TagRegistry = (*Registry)(nil)
var _ TagRegistry = (*RedisRegistry)(nil)

type cancelMessage struct {
	Tag string `json:"tag"`
	All bool   `json:"all"`
}

// RedisRegistry wraps a process-local Registry (a Cancelable only ever
// lives in the process that created it, so the cancel itself can never
// cross the wire) and fans CancelByTag/CancelAll out over a Redis pub/sub
// channel, the same publish-to-all-subscribers shape as
// commbus/bus.go's InMemoryCommBus.Publish, so every gateway instance
// sharing the channel cancels its own matching local tasks.
type RedisRegistry struct {
	local   *Registry
	client  *redis.Client
	channel string
}

func NewRedisRegistry(client *redis.Client, channel string) *RedisRegistry {
	return &RedisRegistry{local: NewRegistry(), client: client, channel: channel}
}

func (r *RedisRegistry) AddTagTask(tag string, cancelable Cancelable, owner string) *TagTask {
	return r.local.AddTagTask(tag, cancelable, owner)
}

func (r *RedisRegistry) RemoveTagTask(owner string) {
	r.local.RemoveTagTask(owner)
}

// CancelByTag cancels matching tasks on this process immediately, then
// publishes so peer processes do the same against their own registries.
func (r *RedisRegistry) CancelByTag(queryTag string) int {
	n := r.local.CancelByTag(queryTag)
	r.publish(cancelMessage{Tag: queryTag})
	return n
}

func (r *RedisRegistry) CancelAll() int {
	n := r.local.CancelAll()
	r.publish(cancelMessage{All: true})
	return n
}

func (r *RedisRegistry) publish(msg cancelMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	r.client.Publish(context.Background(), r.channel, data)
}

// Listen subscribes to the shared channel and applies cancellations
// published by peer processes against this process's local registry. It
// blocks until ctx is canceled or the subscription closes.
func (r *RedisRegistry) Listen(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg cancelMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				continue
			}
			if msg.All {
				r.local.CancelAll()
			} else {
				r.local.CancelByTag(msg.Tag)
			}
		}
	}
}
