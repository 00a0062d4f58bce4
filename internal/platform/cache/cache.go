// Package cache is a two-tier string cache: an in-process go-cache tier in
// front of an optional shared Redis tier.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

var ErrMiss = errors.New("cache miss")

type Cache struct {
	local  *gocache.Cache
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	logger zerolog.Logger
}

// New builds a cache. rdb may be nil, in which case only the local tier is used.
func New(ttl time.Duration, rdb *redis.Client, prefix string, logger zerolog.Logger) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		local:  gocache.New(ttl, 2*ttl),
		redis:  rdb,
		ttl:    ttl,
		prefix: prefix,
		logger: logger,
	}
}

// NewRedisClient parses a redis:// URL and checks connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	c := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return c, nil
}

func (c *Cache) key(k string) string {
	return c.prefix + k
}

// Get checks the local tier, then Redis. A Redis hit refills the local tier.
// Redis failures are logged and reported as a miss.
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	k := c.key(key)
	if v, ok := c.local.Get(k); ok {
		return v.(string), nil
	}
	if c.redis == nil {
		return "", ErrMiss
	}

	v, err := c.redis.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrMiss
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("key", k).Msg("redis get failed")
		return "", ErrMiss
	}
	c.local.Set(k, v, gocache.DefaultExpiration)
	return v, nil
}

func (c *Cache) Set(ctx context.Context, key, value string) error {
	k := c.key(key)
	c.local.Set(k, value, gocache.DefaultExpiration)
	if c.redis == nil {
		return nil
	}
	if err := c.redis.Set(ctx, k, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", k, err)
	}
	return nil
}

// Delete removes the key from both tiers.
func (c *Cache) Delete(ctx context.Context, key string) error {
	k := c.key(key)
	c.local.Delete(k)
	if c.redis == nil {
		return nil
	}
	if err := c.redis.Del(ctx, k).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", k, err)
	}
	return nil
}

// Flush empties the local tier only.
func (c *Cache) Flush() {
	c.local.Flush()
}
