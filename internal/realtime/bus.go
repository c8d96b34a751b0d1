// Package realtime fans row-change events out to signed-in sessions over
// Redis pub/sub and keeps each session's board snapshot current.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"boardroom/api/internal/store"
)

// RedisBus carries change events between the store and session
// coordinators. One channel per event family; events within a family
// arrive in publish order.
type RedisBus struct {
	client *redis.Client
	prefix string
}

// NewRedisBus connects to Redis at redisURL.
func NewRedisBus(redisURL string) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisBus{client: client, prefix: "events:"}, nil
}

// NewRedisBusWithClient creates a bus from an existing Redis client
func NewRedisBusWithClient(client *redis.Client) *RedisBus {
	return &RedisBus{client: client, prefix: "events:"}
}

func (b *RedisBus) channel(family string) string {
	return b.prefix + family
}

// Publish sends a change event on the family's channel. Delivery is
// best-effort: a write that committed is not rolled back because fan-out
// failed, so errors are logged and dropped.
func (b *RedisBus) Publish(family string, event store.ChangeEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf(`{"level":"error","msg":"marshal change event","family":%q,"error":%q}`, family, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.client.Publish(ctx, b.channel(family), payload).Err(); err != nil {
		log.Printf(`{"level":"error","msg":"publish change event","family":%q,"error":%q}`, family, err.Error())
	}
}

// Subscribe opens a pub/sub subscription on the given families. The caller
// owns the returned subscription and must close it.
func (b *RedisBus) Subscribe(ctx context.Context, families ...string) *redis.PubSub {
	channels := make([]string, 0, len(families))
	for _, family := range families {
		channels = append(channels, b.channel(family))
	}
	return b.client.Subscribe(ctx, channels...)
}

// FamilyFromChannel maps a Redis channel name back to its event family.
func (b *RedisBus) FamilyFromChannel(channel string) string {
	if len(channel) > len(b.prefix) && channel[:len(b.prefix)] == b.prefix {
		return channel[len(b.prefix):]
	}
	return channel
}

// Close closes the Redis connection
func (b *RedisBus) Close() error {
	return b.client.Close()
}
