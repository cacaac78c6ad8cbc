package oracle

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateCache caches the conversion rate in Redis with a short TTL
// so bursts of invoice creation do not hammer the price service. Cache
// failures are silent: a miss just falls through to the live lookup.
type RedisRateCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// DefaultRateTTL bounds how stale a cached rate may be
const DefaultRateTTL = 2 * time.Minute

// NewRedisRateCache creates a Redis-backed rate cache. A zero ttl uses
// DefaultRateTTL.
func NewRedisRateCache(client *redis.Client, key string, ttl time.Duration) *RedisRateCache {
	if key == "" {
		key = "relaypay:rate"
	}
	if ttl <= 0 {
		ttl = DefaultRateTTL
	}
	return &RedisRateCache{client: client, key: key, ttl: ttl}
}

// Get implements RateCache
func (c *RedisRateCache) Get(ctx context.Context) (float64, bool) {
	val, err := c.client.Get(ctx, c.key).Result()
	if err != nil {
		return 0, false
	}
	rate, err := strconv.ParseFloat(val, 64)
	if err != nil || rate <= 0 {
		return 0, false
	}
	return rate, true
}

// Set implements RateCache
func (c *RedisRateCache) Set(ctx context.Context, rate float64) {
	c.client.Set(ctx, c.key, strconv.FormatFloat(rate, 'f', -1, 64), c.ttl)
}
