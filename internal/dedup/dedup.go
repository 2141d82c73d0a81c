package dedup

import (
	"sync"
	"time"
)

const (
	// defaultTTL matches GitHub's redelivery horizon: a delivery id seen
	// within the last hour is a duplicate.
	defaultTTL = time.Hour

	// maxEntries caps tracked delivery ids to bound memory.
	maxEntries = 10000
)

// Cache remembers recently seen webhook delivery ids so redeliveries and
// duplicate posts are processed at most once. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
	maxSize int
}

// New creates a dedup cache with the default 1h TTL.
func New() *Cache {
	return &Cache{
		seen:    make(map[string]time.Time),
		ttl:     defaultTTL,
		maxSize: maxEntries,
	}
}

// NewWithTTL creates a dedup cache with a custom TTL and size cap.
func NewWithTTL(ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if maxSize <= 0 {
		maxSize = maxEntries
	}
	return &Cache{seen: make(map[string]time.Time), ttl: ttl, maxSize: maxSize}
}

// Seen reports whether the delivery id was already recorded within the TTL,
// and records it on first sight. An empty id is never deduplicated.
func (c *Cache) Seen(id string) bool {
	return c.SeenAt(id, time.Now())
}

// SeenAt is Seen with an explicit clock, for tests.
func (c *Cache) SeenAt(id string, now time.Time) bool {
	if id == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if at, ok := c.seen[id]; ok && now.Sub(at) < c.ttl {
		return true
	}

	if len(c.seen) >= c.maxSize {
		c.pruneLocked(now)
	}
	c.seen[id] = now
	return false
}

// Len returns the number of tracked delivery ids.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// Prune drops expired entries. Called by the maintenance scheduler.
func (c *Cache) Prune() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pruneLocked(time.Now())
}

func (c *Cache) pruneLocked(now time.Time) {
	for id, at := range c.seen {
		if now.Sub(at) >= c.ttl {
			delete(c.seen, id)
		}
	}
	// Still full after TTL pruning: evict oldest until under cap.
	for len(c.seen) >= c.maxSize {
		var oldest string
		var oldestAt time.Time
		for id, at := range c.seen {
			if oldest == "" || at.Before(oldestAt) {
				oldest = id
				oldestAt = at
			}
		}
		delete(c.seen, oldest)
	}
}
