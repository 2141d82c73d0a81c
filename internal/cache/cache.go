package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultTTL is the fallback entry lifetime when a namespace has no override.
const DefaultTTL = 300 * time.Second

type entry struct {
	value   interface{}
	expires time.Time
}

// Cache is a namespaced TTL cache. Every entry lives under a namespace
// (e.g. "github_api", "permissions") so related entries can be invalidated
// together. Safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	defaultTTL time.Duration
	nsTTL      map[string]time.Duration
	hits       int64
	misses     int64
}

// New creates a cache with the given default TTL. A zero ttl uses DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries:    make(map[string]entry),
		defaultTTL: ttl,
		nsTTL:      make(map[string]time.Duration),
	}
}

// SetNamespaceTTL overrides the TTL for entries stored under a namespace.
func (c *Cache) SetNamespaceTTL(ns string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nsTTL[ns] = ttl
}

// Key builds a stable cache key from a namespace and call arguments.
// Arguments are rendered deterministically and hashed so composite keys
// stay short regardless of argument size.
func Key(ns string, args ...interface{}) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		switch v := a.(type) {
		case map[string]interface{}:
			keys := make([]string, 0, len(v))
			for k := range v {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				parts = append(parts, fmt.Sprintf("%s=%v", k, v[k]))
			}
		default:
			parts = append(parts, fmt.Sprintf("%v", a))
		}
	}
	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return ns + ":" + hex.EncodeToString(sum[:])
}

// Get returns the cached value for key, if present and unexpired.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(e.expires) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	c.hits++
	return e.value, true
}

// Set stores a value under key. The namespace prefix of the key (everything
// before the first ':') selects the TTL.
func (c *Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ttl := c.defaultTTL
	if i := strings.IndexByte(key, ':'); i > 0 {
		if override, ok := c.nsTTL[key[:i]]; ok {
			ttl = override
		}
	}
	c.entries[key] = entry{value: value, expires: time.Now().Add(ttl)}
}

// Delete removes a single entry.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// ClearNamespace drops every entry under the given namespace and returns
// the number of entries removed.
func (c *Cache) ClearNamespace(ns string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := ns + ":"
	removed := 0
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Sweep removes expired entries. Intended to run periodically.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Stats reports entry count and hit/miss counters.
func (c *Cache) Stats() (size int, hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), c.hits, c.misses
}
