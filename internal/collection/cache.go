package collection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix is the Redis key prefix for cached collections.
const keyPrefix = "collection:"

// entry is the cached form of a collection.
type entry[T any] struct {
	Items     []T       `json:"items"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Cache stores JSON-encodable values by key.
type Cache interface {
	// Get decodes the value at key into dst. Returns false when absent.
	Get(ctx context.Context, key string, dst any) (bool, error)

	// Set stores v at key for ttl.
	Set(ctx context.Context, key string, v any, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// RedisCache implements Cache with JSON values in Redis.
type RedisCache struct {
	redis *redis.Client
}

// NewRedisCache creates a cache backed by the given client.
func NewRedisCache(rdb *redis.Client) *RedisCache {
	return &RedisCache{redis: rdb}
}

// Get reads and decodes key.
func (r *RedisCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	data, err := r.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s from Redis: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// Set encodes and writes key.
func (r *RedisCache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := r.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("writing %s to Redis: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("deleting %s from Redis: %w", key, err)
	}
	return nil
}
