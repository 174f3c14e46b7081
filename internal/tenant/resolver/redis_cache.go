package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache shares resolutions across instances. A Redis outage degrades
// to cache misses; resolution then hits the registry directly.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache creates a Redis-backed resolution cache.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func cacheKey(subdomain string) string {
	return "kopra:resolve:" + subdomain
}

func (c *RedisCache) Get(ctx context.Context, subdomain string) (*Resolution, bool) {
	raw, err := c.client.Get(ctx, cacheKey(subdomain)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) && c.logger != nil {
			c.logger.WarnContext(ctx, "resolution cache read failed", "subdomain", subdomain, "error", err)
		}
		return nil, false
	}
	var res Resolution
	if err := json.Unmarshal(raw, &res); err != nil {
		// Treat unreadable entries as a miss and drop them.
		c.client.Del(ctx, cacheKey(subdomain))
		return nil, false
	}
	return &res, true
}

func (c *RedisCache) Set(ctx context.Context, subdomain string, res *Resolution) {
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(subdomain), raw, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.WarnContext(ctx, "resolution cache write failed", "subdomain", subdomain, "error", err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, subdomain string) {
	if err := c.client.Del(ctx, cacheKey(subdomain)).Err(); err != nil && c.logger != nil {
		c.logger.WarnContext(ctx, "resolution cache invalidate failed", "subdomain", subdomain, "error", err)
	}
}
