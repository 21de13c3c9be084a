package summary

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "clinic:summary:"

// Cache stores summaries by key with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// MemoryCache is a process-local TTL cache.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]item
	now   func() time.Time
}

type item struct {
	value string
	exp   time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]item), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || !it.exp.After(c.now()) {
		return "", false, nil
	}
	return it.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, it := range c.items {
		if !it.exp.After(now) {
			delete(c.items, k)
		}
	}
	c.items[key] = item{value: value, exp: now.Add(ttl)}
	return nil
}

// RedisCache shares summaries between server instances.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Cached memoizes a Summarizer by prompt hash. Cache failures are logged and
// bypassed; only successful, non-blank summaries are stored.
type Cached struct {
	next   Summarizer
	cache  Cache
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCached(next Summarizer, cache Cache, ttl time.Duration, logger zerolog.Logger) *Cached {
	return &Cached{next: next, cache: cache, ttl: ttl, logger: logger}
}

func CacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func (c *Cached) Summarize(ctx context.Context, prompt string) (string, error) {
	key := CacheKey(prompt)

	v, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Msg("summary cache read failed")
	} else if ok {
		return v, nil
	}

	text, err := c.next.Summarize(ctx, prompt)
	if err != nil {
		return "", err
	}

	if text != "" {
		if err := c.cache.Set(ctx, key, text, c.ttl); err != nil {
			c.logger.Warn().Err(err).Msg("summary cache write failed")
		}
	}
	return text, nil
}
