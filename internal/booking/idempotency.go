package booking

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyCache remembers which reservation a client-supplied key
// produced, so a retried create can be answered without touching the write
// path. It is a fast path only: the store's unique key column remains the
// authoritative duplicate guard. A nil cache is valid and does nothing.
type IdempotencyCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewIdempotencyCache wraps a Redis client. ttl bounds how long replays are
// answered from the cache.
func NewIdempotencyCache(rdb *redis.Client, ttl time.Duration) *IdempotencyCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyCache{rdb: rdb, ttl: ttl}
}

// Lookup returns the reservation id previously recorded for the key.
func (c *IdempotencyCache) Lookup(ctx context.Context, key string) (int64, bool) {
	if c == nil || c.rdb == nil || key == "" {
		return 0, false
	}
	val, err := c.rdb.Get(ctx, cacheKey(key)).Result()
	if err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Remember records the reservation created for the key. Failures are
// ignored; the store-level guard still holds.
func (c *IdempotencyCache) Remember(ctx context.Context, key string, id int64) {
	if c == nil || c.rdb == nil || key == "" {
		return
	}
	_ = c.rdb.Set(ctx, cacheKey(key), strconv.FormatInt(id, 10), c.ttl).Err()
}

func cacheKey(key string) string {
	return fmt.Sprintf("tischplan:idem:%s", key)
}
