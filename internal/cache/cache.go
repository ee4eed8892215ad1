// Package cache is an optional Redis-backed cache for metadata lookups. A
// nil *Cache is valid and behaves as a cache that never hits.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tubelens/backend/internal/logger"
	"github.com/tubelens/backend/internal/metrics"
)

const keyPrefix = "tubelens:"

type Cache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// New connects to the Redis server at redisURL (redis://host:port/db) and
// verifies it answers.
func New(redisURL string, ttl time.Duration, log *logger.Logger) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if log == nil {
		log = logger.Default()
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	c := &Cache{client: client, ttl: ttl, log: log.WithComponent("cache")}
	c.log.Info(ctx, "connected to redis", map[string]interface{}{"addr": opts.Addr, "db": opts.DB})
	return c, nil
}

// Key builds a namespaced key for kind and an arbitrary identifier such
// as a URL.
func Key(kind, id string) string {
	sum := sha256.Sum256([]byte(id))
	return keyPrefix + kind + ":" + hex.EncodeToString(sum[:12])
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

// Ping checks the connection. Used by readiness checks.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return errors.New("cache not configured")
	}
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if c == nil {
		return "", false
	}
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		metrics.Default().CacheLookup(false)
		c.log.Debug(ctx, "cache miss", map[string]interface{}{"key": key})
		return "", false
	}
	if err != nil {
		c.log.Warn(ctx, "cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
		return "", false
	}
	metrics.Default().CacheLookup(true)
	c.log.Debug(ctx, "cache hit", map[string]interface{}{"key": key})
	return val, true
}

// Set stores value. A zero ttl uses the cache default.
func (c *Cache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.log.Warn(ctx, "cache write failed", map[string]interface{}{"key": key, "error": err.Error()})
		return err
	}
	c.log.Debug(ctx, "cache set", map[string]interface{}{"key": key, "ttl": ttl.String()})
	return nil
}

// GetJSON decodes a cached JSON value into dst and reports whether it hit.
func (c *Cache) GetJSON(ctx context.Context, key string, dst any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		c.log.Warn(ctx, "discarding undecodable cache entry", map[string]interface{}{"key": key, "error": err.Error()})
		return false
	}
	return true
}

// SetJSON encodes value and stores it with the default ttl.
func (c *Cache) SetJSON(ctx context.Context, key string, value any) error {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, string(data), 0)
}
