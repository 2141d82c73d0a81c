package chat

import (
	"log/slog"
	"sync"
	"time"
)

const (
	rateWindow   = time.Minute
	rateMaxSends = 15
)

// RateLimiter enforces a sliding-window send cap per target.
type RateLimiter struct {
	mu    sync.Mutex
	sends map[string][]time.Time
}

// NewRateLimiter allows up to 15 sends per minute per target.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{sends: make(map[string][]time.Time)}
}

// Allow records the send if the target is under its cap.
func (r *RateLimiter) Allow(target string) bool {
	return r.allowAt(target, time.Now())
}

func (r *RateLimiter) allowAt(target string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-rateWindow)
	recent := r.sends[target][:0]
	for _, t := range r.sends[target] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= rateMaxSends {
		r.sends[target] = recent
		slog.Warn("send rate limit hit", "target", target)
		return false
	}
	r.sends[target] = append(recent, now)
	return true
}

// Prune drops targets with no recent sends.
func (r *RateLimiter) Prune() {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().Add(-rateWindow)
	for target, times := range r.sends {
		keep := times[:0]
		for _, t := range times {
			if t.After(cutoff) {
				keep = append(keep, t)
			}
		}
		if len(keep) == 0 {
			delete(r.sends, target)
			continue
		}
		r.sends[target] = keep
	}
}
