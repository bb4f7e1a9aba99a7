package credstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisKV stores values as plain Redis strings under an optional key prefix.
type RedisKV struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisKV creates a RedisKV. A non-empty prefix is joined to keys with ":".
func NewRedisKV(client redis.UniversalClient, prefix string) *RedisKV {
	return &RedisKV{client: client, prefix: prefix}
}

func (r *RedisKV) key(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("credstore: redis get %q: %w", key, err)
	}
	return v, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("credstore: redis set %q: %w", key, err)
	}
	return nil
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("credstore: redis delete %q: %w", key, err)
	}
	return nil
}

// RedisBroadcaster carries change notifications over Redis pub/sub, so Stores in
// different processes sharing one RedisKV see each other's writes.
type RedisBroadcaster struct {
	client redis.UniversalClient
}

// NewRedisBroadcaster creates a RedisBroadcaster.
func NewRedisBroadcaster(client redis.UniversalClient) *RedisBroadcaster {
	return &RedisBroadcaster{client: client}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, channel, payload string) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("credstore: redis publish: %w", err)
	}
	return nil
}

// Subscribe returns once the subscription is confirmed by the server.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, channel string, fn func(payload string)) (func(), error) {
	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("credstore: redis subscribe: %w", err)
	}

	messages := ps.Channel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range messages {
			fn(msg.Payload)
		}
	}()

	return func() {
		_ = ps.Close()
		<-done
	}, nil
}
