package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// ipLimiter rate-limits webhook deliveries per source address.
// rps <= 0 disables limiting.
type ipLimiter struct {
	rps   int
	burst int

	mu      sync.Mutex
	sources map[string]*ipEntry
}

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(rps int) *ipLimiter {
	burst := rps * 2
	if burst < 1 {
		burst = 1
	}
	return &ipLimiter{
		rps:     rps,
		burst:   burst,
		sources: make(map[string]*ipEntry),
	}
}

// Allow reports whether a delivery from the source may proceed.
func (l *ipLimiter) Allow(source string) bool {
	if l.rps <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.sources[source]
	if !ok {
		entry = &ipEntry{limiter: rate.NewLimiter(rate.Limit(l.rps), l.burst)}
		l.sources[source] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

// Prune drops sources idle longer than the TTL.
func (l *ipLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-limiterIdleTTL)
	removed := 0
	for source, entry := range l.sources {
		if entry.lastSeen.Before(cutoff) {
			delete(l.sources, source)
			removed++
		}
	}
	return removed
}
