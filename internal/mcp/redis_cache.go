package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is where the catalog snapshot lives when no key is given.
const DefaultRedisKey = "voice-agent:mcp:catalog"

// RedisCache shares one catalog snapshot across service instances.
// The key's expiry is a retention window, normally a multiple of the
// catalog TTL: long enough to serve a stale snapshot while the MCP server
// is down, short enough that a dead server's catalog eventually disappears.
type RedisCache struct {
	rdb redis.Cmdable
	key string
	ttl time.Duration
}

// NewRedisCache creates a RedisCache. A zero retention stores without expiry.
func NewRedisCache(rdb redis.Cmdable, key string, ttl time.Duration) *RedisCache {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisCache{rdb: rdb, key: key, ttl: ttl}
}

func (r *RedisCache) Get(ctx context.Context) (*Snapshot, error) {
	raw, err := r.rdb.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("RedisCache.Get: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("RedisCache.Get: decode: %w", err)
	}
	return &snap, nil
}

func (r *RedisCache) Set(ctx context.Context, snap *Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("RedisCache.Set: encode: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("RedisCache.Set: %w", err)
	}
	return nil
}
