package enrich

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores extraction results keyed by a text digest.
type Cache interface {
	Get(ctx context.Context, key string) ([]Entity, bool, error)
	Set(ctx context.Context, key string, entities []Entity) error
	Close() error
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]Entity
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]Entity)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]Entity, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]Entity(nil), v...), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, entities []Entity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = append([]Entity{}, entities...)
	return nil
}

// Len returns the number of cached texts.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) Close() error { return nil }

// RedisCache is a Cache shared through Redis, so repeated runs skip texts
// that were already processed.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache connects to the Redis server at url (redis://host:port/db).
func NewRedisCache(url string, ttl time.Duration, prefix string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisCacheWithClient(redis.NewClient(opts), ttl, prefix), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration, prefix string) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: prefix}
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]Entity, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var entities []Entity
	if err := json.Unmarshal(data, &entities); err != nil {
		return nil, false, fmt.Errorf("decode cached entities: %w", err)
	}
	return entities, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, entities []Entity) error {
	if entities == nil {
		entities = []Entity{}
	}
	data, err := json.Marshal(entities)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, data, c.ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// CachedExtractor serves repeated texts from a Cache.
// Cache errors are logged and fall through to the wrapped extractor.
type CachedExtractor struct {
	inner  EntityExtractor
	cache  Cache
	logger *slog.Logger
}

// NewCachedExtractor wraps inner with cache. Closing it closes both.
func NewCachedExtractor(inner EntityExtractor, cache Cache, logger *slog.Logger) *CachedExtractor {
	return &CachedExtractor{
		inner:  inner,
		cache:  cache,
		logger: logger.With("component", "extraction_cache"),
	}
}

func (c *CachedExtractor) Name() string { return c.inner.Name() }

func (c *CachedExtractor) Extract(ctx context.Context, text string) ([]Entity, error) {
	if text == "" {
		return []Entity{}, nil
	}

	key := cacheKey(c.inner.Name(), text)
	if entities, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("cache read failed", "error", err)
	} else if ok {
		return entities, nil
	}

	entities, err := c.inner.Extract(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, entities); err != nil {
		c.logger.Warn("cache write failed", "error", err)
	}
	return entities, nil
}

func (c *CachedExtractor) Close() error {
	return errors.Join(c.inner.Close(), c.cache.Close())
}

func cacheKey(extractor, text string) string {
	sum := sha256.Sum256([]byte(text))
	return extractor + ":" + hex.EncodeToString(sum[:])
}
