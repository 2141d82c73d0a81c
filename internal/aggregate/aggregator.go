// Package aggregate batches notification content per chat target so bursts
// of webhook events collapse into a single bundled message.
package aggregate

import (
	"log/slog"
	"sync"
	"time"

	"github.com/chimeyao/ghrelay/internal/format"
)

// Sender delivers flushed content to a chat target.
type Sender interface {
	// SendSingle delivers one message to a target.
	SendSingle(target string, content *format.Content) error
	// SendBundle delivers several messages as one merged unit.
	SendBundle(target string, contents []*format.Content) error
}

const defaultMaxPerGroup = 10

type group struct {
	target   string
	contents []*format.Content
	timer    *time.Timer
}

// Aggregator collects messages per key and flushes each group after a
// quiet period. Every new message re-arms the group's timer.
type Aggregator struct {
	mu          sync.Mutex
	groups      map[string]*group
	sender      Sender
	delay       time.Duration
	maxPerGroup int

	mutedUntil time.Time

	flushed   int64
	evicted   int64
	mutedDrop int64
}

// New creates an aggregator flushing through sender after delay.
func New(sender Sender, delay time.Duration, maxPerGroup int) *Aggregator {
	if delay <= 0 {
		delay = 5 * time.Second
	}
	if maxPerGroup <= 0 {
		maxPerGroup = defaultMaxPerGroup
	}
	return &Aggregator{
		groups:      make(map[string]*group),
		sender:      sender,
		delay:       delay,
		maxPerGroup: maxPerGroup,
	}
}

// Add queues content for a target under an aggregation key and re-arms the
// group timer. Messages arriving while muted are dropped.
func (a *Aggregator) Add(key, target string, content *format.Content) {
	a.mu.Lock()

	if a.isMutedLocked() {
		a.mutedDrop++
		a.mu.Unlock()
		slog.Debug("muted, dropping message", "key", key, "type", content.Type)
		return
	}

	g, ok := a.groups[key]
	if !ok {
		g = &group{target: target}
		a.groups[key] = g
	}

	g.contents = append(g.contents, content)
	if len(g.contents) > a.maxPerGroup {
		// Keep the newest messages, drop from the front.
		over := len(g.contents) - a.maxPerGroup
		g.contents = g.contents[over:]
		a.evicted += int64(over)
		slog.Debug("aggregation group over capacity", "key", key, "evicted", over)
	}

	if g.timer != nil {
		g.timer.Stop()
	}
	g.timer = time.AfterFunc(a.delay, func() { a.flush(key) })
	a.mu.Unlock()
}

// flush detaches a group under lock and sends outside it.
func (a *Aggregator) flush(key string) {
	a.mu.Lock()
	g, ok := a.groups[key]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.groups, key)
	if g.timer != nil {
		g.timer.Stop()
	}
	muted := a.isMutedLocked()
	if muted {
		a.mutedDrop += int64(len(g.contents))
	} else {
		a.flushed += int64(len(g.contents))
	}
	a.mu.Unlock()

	if muted {
		slog.Debug("muted at drain, dropping group", "key", key, "count", len(g.contents))
		return
	}
	if len(g.contents) == 0 {
		return
	}

	var err error
	if len(g.contents) == 1 {
		err = a.sender.SendSingle(g.target, g.contents[0])
	} else {
		err = a.sender.SendBundle(g.target, g.contents)
	}
	if err != nil {
		slog.Error("aggregated send failed", "key", key, "target", g.target,
			"count", len(g.contents), "error", err)
	}
}

// FlushAll drains every pending group immediately. Used on shutdown.
func (a *Aggregator) FlushAll() {
	a.mu.Lock()
	keys := make([]string, 0, len(a.groups))
	for k := range a.groups {
		keys = append(keys, k)
	}
	a.mu.Unlock()

	for _, k := range keys {
		a.flush(k)
	}
}

// Mute drops all messages for the given duration, including messages
// already pending when their group drains.
func (a *Aggregator) Mute(d time.Duration) {
	a.mu.Lock()
	a.mutedUntil = time.Now().Add(d)
	a.mu.Unlock()
	slog.Info("notifications muted", "duration", d)
}

// Unmute lifts an active mute.
func (a *Aggregator) Unmute() {
	a.mu.Lock()
	a.mutedUntil = time.Time{}
	a.mu.Unlock()
	slog.Info("notifications unmuted")
}

// IsMuted reports whether a mute is in effect.
func (a *Aggregator) IsMuted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isMutedLocked()
}

// MuteRemaining returns how long the current mute lasts, or zero.
func (a *Aggregator) MuteRemaining() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.isMutedLocked() {
		return 0
	}
	return time.Until(a.mutedUntil)
}

func (a *Aggregator) isMutedLocked() bool {
	return time.Now().Before(a.mutedUntil)
}

// Stats reports pending group and counter state.
func (a *Aggregator) Stats() map[string]interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()

	pending := 0
	for _, g := range a.groups {
		pending += len(g.contents)
	}
	return map[string]interface{}{
		"groups":        len(a.groups),
		"pending":       pending,
		"flushed":       a.flushed,
		"evicted":       a.evicted,
		"dropped_muted": a.mutedDrop,
	}
}
