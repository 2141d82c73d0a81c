package agent

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Op classifies what a rate-limit check is charging for.
type Op string

const (
	OpRequest  Op = "request"
	OpAICall   Op = "ai_call"
	OpToolCall Op = "tool_call"
)

const (
	maxRequestsPerHour  = 100
	maxAICallsPerHour   = 50
	maxToolCallsPerHour = 30
	burstPerMinute      = 10

	blockDuration = time.Hour
	limitIdleTTL  = 24 * time.Hour
)

type userLimit struct {
	requests     []time.Time
	aiCalls      []time.Time
	toolCalls    []time.Time
	blockedUntil time.Time
	lastSeen     time.Time
}

// Limiter enforces per-user hourly caps plus a per-minute burst cap.
// Exceeding a cap blocks the user for an hour.
type Limiter struct {
	mu    sync.Mutex
	users map[string]*userLimit
}

// NewLimiter allows 100 requests, 50 model calls, and 30 tool calls per
// user per hour, at most 10 requests per minute.
func NewLimiter() *Limiter {
	return &Limiter{users: make(map[string]*userLimit)}
}

// Allow charges one operation for the user. When denied the returned
// message explains the limit and, for blocked users, the remaining time.
func (l *Limiter) Allow(userID string, op Op) (bool, string) {
	return l.allowAt(userID, op, time.Now())
}

func (l *Limiter) allowAt(userID string, op Op, now time.Time) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.users[userID]
	if !ok {
		u = &userLimit{}
		l.users[userID] = u
	}
	u.lastSeen = now

	if now.Before(u.blockedUntil) {
		remaining := int(u.blockedUntil.Sub(now).Seconds())
		return false, fmt.Sprintf("限流中,剩余时间: %d秒", remaining)
	}

	hourAgo := now.Add(-time.Hour)
	u.requests = pruneTimes(u.requests, hourAgo)
	u.aiCalls = pruneTimes(u.aiCalls, hourAgo)
	u.toolCalls = pruneTimes(u.toolCalls, hourAgo)

	var bucket *[]time.Time
	var limit int
	switch op {
	case OpAICall:
		bucket, limit = &u.aiCalls, maxAICallsPerHour
	case OpToolCall:
		bucket, limit = &u.toolCalls, maxToolCallsPerHour
	default:
		bucket, limit = &u.requests, maxRequestsPerHour
	}

	if len(*bucket) >= limit {
		u.blockedUntil = now.Add(blockDuration)
		slog.Warn("rate limit exceeded", "user", userID, "op", op, "limit", limit)
		return false, fmt.Sprintf("超过%s限制 (%d/小时)", op, limit)
	}

	if op == OpRequest {
		minuteAgo := now.Add(-time.Minute)
		recent := 0
		for _, t := range u.requests {
			if t.After(minuteAgo) {
				recent++
			}
		}
		if recent >= burstPerMinute {
			u.blockedUntil = now.Add(blockDuration)
			slog.Warn("burst limit exceeded", "user", userID, "limit", burstPerMinute)
			return false, fmt.Sprintf("超过%s限制 (%d/分钟)", op, burstPerMinute)
		}
	}

	*bucket = append(*bucket, now)
	return true, ""
}

// Prune drops users idle for over a day.
func (l *Limiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-limitIdleTTL)
	for userID, u := range l.users {
		if u.lastSeen.Before(cutoff) {
			delete(l.users, userID)
		}
	}
}

// TrackedUsers reports how many users currently hold limit state.
func (l *Limiter) TrackedUsers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}

func pruneTimes(times []time.Time, cutoff time.Time) []time.Time {
	keep := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			keep = append(keep, t)
		}
	}
	return keep
}
