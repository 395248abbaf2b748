package policy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// decisionCache stores boolean allow/deny decisions under a short TTL.
// Entries are non-authoritative: eviction is always safe, and mutations
// must invalidate before they return.
type decisionCache interface {
	Get(ctx context.Context, key string) (decision bool, ok bool, err error)
	Set(ctx context.Context, key string, decision bool, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Flush(ctx context.Context) error
}

func cacheKey(sub, obj, act string) string {
	return sub + ":" + obj + ":" + act
}

// redisCache is the shared decision cache used when the engine runs with
// Redis: instances behind a load balancer see each other's invalidations.
type redisCache struct {
	client redis.UniversalClient
	prefix string
}

func newRedisCache(client redis.UniversalClient, prefix string) *redisCache {
	if prefix == "" {
		prefix = "apd"
	}
	return &redisCache{client: client, prefix: prefix}
}

func (c *redisCache) key(k string) string {
	return c.prefix + ":" + k
}

func (c *redisCache) Get(ctx context.Context, key string) (bool, bool, error) {
	val, err := c.client.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return val == "1", true, nil
}

func (c *redisCache) Set(ctx context.Context, key string, decision bool, ttl time.Duration) error {
	val := "0"
	if decision {
		val = "1"
	}
	return c.client.Set(ctx, c.key(key), val, ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = c.key(k)
	}
	return c.client.Del(ctx, prefixed...).Err()
}

func (c *redisCache) Flush(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+":*", 256).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= 256 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return c.client.Del(ctx, keys...).Err()
	}
	return nil
}

// memoryCache is the single-process fallback. Reads share an RLock so the
// hot path does not serialize; writers (mutation invalidation) take the
// exclusive lock briefly.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	decision  bool
	expiresAt time.Time
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]memoryEntry)}
}

func (c *memoryCache) Get(_ context.Context, key string) (bool, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return false, false, nil
	}
	return entry.decision, true, nil
}

func (c *memoryCache) Set(_ context.Context, key string, decision bool, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[key] = memoryEntry{decision: decision, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	c.mu.Unlock()
	return nil
}

func (c *memoryCache) Flush(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
	return nil
}
