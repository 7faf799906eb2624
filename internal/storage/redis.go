// ABOUTME: Redis Driver for a durable scope shared by several widget processes
// ABOUTME: Keys carry a prefix and a TTL that is refreshed on every read

package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "coven-widget:"
	defaultRedisTTL    = 30 * 24 * time.Hour
)

// RedisDriver implements Driver using Redis.
type RedisDriver struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisDriver connects to the Redis server at rawURL (redis://host:port/db)
// and verifies the connection with a PING.
func NewRedisDriver(ctx context.Context, rawURL, prefix string, ttl time.Duration) (*RedisDriver, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewRedisDriverFromClient(client, prefix, ttl), nil
}

// NewRedisDriverFromClient wraps an existing client.
func NewRedisDriverFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisDriver {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisDriver{client: client, prefix: prefix, ttl: ttl}
}

// Get implements Driver. Refreshes the key's TTL on read.
func (r *RedisDriver) Get(ctx context.Context, key string) (string, bool, error) {
	k := r.prefix + key
	val, err := r.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	// TTL refresh failure is not a read failure.
	_ = r.client.Expire(ctx, k, r.ttl).Err()

	return val, true, nil
}

// Set implements Driver.
func (r *RedisDriver) Set(ctx context.Context, key, value string) error {
	return r.client.Set(ctx, r.prefix+key, value, r.ttl).Err()
}

// Delete implements Driver.
func (r *RedisDriver) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}

// Close implements Driver.
func (r *RedisDriver) Close() error {
	return r.client.Close()
}
