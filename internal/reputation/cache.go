package reputation

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL is how long a cached record stays valid.
const DefaultCacheTTL = 24 * time.Hour

// Cache stores records by address with TTL-based invalidation. Both
// implementations are safe for concurrent use. The cache is constructed
// once per process and injected into the Client; there is no package-level
// singleton.
type Cache interface {
	Get(ctx context.Context, address string) (*Record, bool)
	Set(ctx context.Context, address string, rec *Record)
}

// ===========================================================================
// In-memory cache
// ===========================================================================

// MemoryCache is a mutex-guarded map with per-entry expiry. Beyond TTL
// expiry there is no eviction, so long-running processes with unbounded
// address churn grow without limit; callers needing a bound should use the
// Redis cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	ttl     time.Duration
}

type memoryEntry struct {
	record    *Record
	expiresAt time.Time
}

// NewMemoryCache creates an in-memory TTL cache. A non-positive ttl falls
// back to DefaultCacheTTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
	}
}

func (c *MemoryCache) Get(_ context.Context, address string) (*Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[strings.ToLower(address)]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.record, true
}

func (c *MemoryCache) Set(_ context.Context, address string, rec *Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[strings.ToLower(address)] = &memoryEntry{
		record:    rec,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// Cleanup removes expired entries. Call periodically from a background
// goroutine.
func (c *MemoryCache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Len reports the number of entries, including not-yet-cleaned expired ones.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ===========================================================================
// Redis-backed cache
// ===========================================================================

// RedisCache stores records as JSON values with a server-side TTL, letting
// multiple processes share one reputation cache.
type RedisCache struct {
	client    *redis.Client
	ttl       time.Duration
	keyPrefix string
}

// NewRedisCache creates a Redis-backed cache.
func NewRedisCache(client *redis.Client, ttl time.Duration, keyPrefix string) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if keyPrefix == "" {
		keyPrefix = "threatlens:reputation:"
	}
	return &RedisCache{client: client, ttl: ttl, keyPrefix: keyPrefix}
}

func (c *RedisCache) key(address string) string {
	return c.keyPrefix + strings.ToLower(address)
}

func (c *RedisCache) Get(ctx context.Context, address string) (*Record, bool) {
	data, err := c.client.Get(ctx, c.key(address)).Bytes()
	if err != nil {
		// redis.Nil (miss) and transport errors both read as a miss; the
		// client falls through to provider or fallback either way.
		return nil, false
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, false
	}
	return &rec, true
}

func (c *RedisCache) Set(ctx context.Context, address string, rec *Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.key(address), data, c.ttl)
}
