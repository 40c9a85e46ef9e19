package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultInvalidationChannel is the pub/sub channel shared by all replicas.
const DefaultInvalidationChannel = "brigade:broadcast-config:invalidate"

// invalidateAll is the payload that clears every organization.
const invalidateAll = "*"

// RedisInvalidator propagates cache invalidations between replicas over Redis pub/sub.
// Every replica runs Listen; the admin surface calls Publish after a write.
type RedisInvalidator struct {
	client  *redis.Client
	channel string
	cache   *Store
	logger  *slog.Logger
}

// NewRedisInvalidator wires a Redis client to the local cache.
func NewRedisInvalidator(client *redis.Client, channel string, cache *Store, logger *slog.Logger) *RedisInvalidator {
	if channel == "" {
		channel = DefaultInvalidationChannel
	}
	return &RedisInvalidator{client: client, channel: channel, cache: cache, logger: logger}
}

// Publish announces that organizationID changed. An empty id invalidates everything.
func (r *RedisInvalidator) Publish(ctx context.Context, organizationID string) error {
	payload := organizationID
	if payload == "" {
		payload = invalidateAll
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

// Listen applies invalidations published by any replica until ctx is cancelled.
func (r *RedisInvalidator) Listen(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.apply(ctx, msg.Payload)
		}
	}
}

func (r *RedisInvalidator) apply(ctx context.Context, payload string) {
	if payload == invalidateAll {
		r.cache.InvalidateAll()
	} else {
		r.cache.Invalidate(payload)
	}
	if r.logger != nil {
		r.logger.DebugContext(ctx, "broadcast config cache invalidated", "organization_id", payload)
	}
}
