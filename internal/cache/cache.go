package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// KeyPrefix namespaces every key written by a backend.
const KeyPrefix = "weather:"

// Cache is a byte-oriented cache backend. Get returns (nil, false, nil) on a
// miss. A ttl <= 0 stores the value without expiry. Sweep deletes every entry
// whose version tag differs from version and returns how many it removed.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Sweep(ctx context.Context, version string) (int, error)
}

// stale reports whether a namespaced key belongs to another version.
func stale(namespacedKey, version string) bool {
	if !strings.HasPrefix(namespacedKey, KeyPrefix) {
		return false
	}
	return !strings.HasPrefix(namespacedKey, KeyPrefix+version+":")
}

// InMemoryCache implements Cache with a map. Expired entries are removed on
// access.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// NewInMemoryCache creates a new in-memory cache instance.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
	}
}

// Get retrieves the value for key if present and not expired.
func (c *InMemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := KeyPrefix + key
	entry, ok := c.data[k]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(c.data, k)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores value under key.
func (c *InMemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := cacheEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	c.data[KeyPrefix+key] = entry
	return nil
}

// Sweep removes entries of other versions.
func (c *InMemoryCache) Sweep(ctx context.Context, version string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k := range c.data {
		if stale(k, version) {
			delete(c.data, k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, expired or not.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
