// Package analyticscache caches the four derived analytics endpoints
// (topBanner, marketHighlights, topGainers, topVolume) behind a short
// TTL. Grounded on alanyoungcy-polymarketbot/internal/cache/redis's
// Client wrapper and JSON-at-rest caching style; unlike that package's
// domain caches this one degrades to a pass-through on any Redis error
// rather than surfacing it, since §4's core invariants never depend on
// these endpoints and a cold cache must never block an analytics read.
package analyticscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const ttl = 5 * time.Second

// Cache wraps a *redis.Client. A nil or unreachable client degrades
// every method to a cache miss, never an error.
type Cache struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

func New(addr string, logger zerolog.Logger) *Cache {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &Cache{rdb: rdb, logger: logger.With().Str("component", "analyticscache").Logger()}
}

// Get unmarshals the cached value for key into dest. Returns false on
// any miss or error — callers always fall through to recomputation.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) bool {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("failed to unmarshal cached analytics value")
		return false
	}
	return true
}

// Set stores value under key with the analytics TTL. Failures are
// logged at Debug and otherwise ignored — caching is an optimization,
// not a correctness requirement.
func (c *Cache) Set(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to populate analytics cache, continuing uncached")
	}
}

func (c *Cache) Close() error {
	return c.rdb.Close()
}
