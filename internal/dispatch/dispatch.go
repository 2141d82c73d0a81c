// Package dispatch gates inbound webhook events and fans them out to
// the registered handlers through a bounded queue.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chimeyao/ghrelay/internal/config"
	"github.com/chimeyao/ghrelay/internal/dedup"
	"github.com/chimeyao/ghrelay/internal/signature"
)

var tracer = otel.Tracer("ghrelay/dispatch")

const (
	queueSize   = 1000
	maxAttempts = 3
	maxBackoff  = 10 * time.Second

	maxConsecutiveFailures = 5
	failurePause           = 30 * time.Second
)

var supportedEvents = map[string]bool{
	"push":                        true,
	"pull_request":                true,
	"issues":                      true,
	"issue_comment":               true,
	"pull_request_review":         true,
	"pull_request_review_comment": true,
	"release":                     true,
	"star":                        true,
	"fork":                        true,
	"watch":                       true,
	"create":                      true,
	"delete":                      true,
	"workflow_run":                true,
	"workflow_job":                true,
	"repository":                  true,
	"ping":                        true,
}

// Event is one webhook delivery.
type Event struct {
	Type       string
	DeliveryID string
	Signature  string // X-Hub-Signature-256 (or X-Hub-Signature) header
	Repository string // filled from the payload during gating
	Payload    map[string]interface{}
	Raw        []byte
	ReceivedAt time.Time
}

// Handler processes one event. Handlers for the same event run in
// parallel; the event succeeds when at least one handler succeeds.
type Handler func(ctx context.Context, ev *Event) error

// Dispatcher validates, dedups, and queues events, then drains the
// queue with per-event retry.
type Dispatcher struct {
	cfg   *config.Config
	dedup *dedup.Cache

	mu       sync.RWMutex
	handlers map[string][]Handler

	queue chan *Event

	received  atomic.Int64
	processed atomic.Int64
	deduped   atomic.Int64
	rejected  atomic.Int64
	failed    atomic.Int64
}

// New creates a dispatcher over the shared config and dedup cache.
func New(cfg *config.Config, dd *dedup.Cache) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		dedup:    dd,
		handlers: make(map[string][]Handler),
		queue:    make(chan *Event, queueSize),
	}
}

// On registers a handler for an event type.
func (d *Dispatcher) On(eventType string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], h)
}

// Enqueue gates an event and puts it on the queue. A nil return means
// accepted or benignly skipped; an error means the delivery was bad.
func (d *Dispatcher) Enqueue(ev *Event) error {
	d.received.Add(1)

	if ev.Type == "" || ev.DeliveryID == "" || len(ev.Payload) == 0 {
		d.rejected.Add(1)
		return fmt.Errorf("incomplete delivery: type=%q id=%q", ev.Type, ev.DeliveryID)
	}
	ev.Repository = repositoryName(ev.Payload)
	if ev.Repository == "" && ev.Type != "ping" {
		d.rejected.Add(1)
		return fmt.Errorf("missing repository in %s delivery %s", ev.Type, ev.DeliveryID)
	}

	if !supportedEvents[ev.Type] {
		slog.Warn("unsupported event type", "type", ev.Type, "delivery", ev.DeliveryID)
		return nil
	}

	if ev.Repository != "" {
		rc := d.cfg.Repo(ev.Repository)
		if rc == nil {
			slog.Info("repository not configured", "repository", ev.Repository)
			return nil
		}
		if !rc.IsEnabled() {
			slog.Info("repository disabled", "repository", ev.Repository)
			return nil
		}
		// Verify before recording the delivery id so a rejected delivery
		// can be redelivered with a corrected signature.
		if rc.VerifySignature && rc.WebhookSecret != "" {
			if !signature.Verify(ev.Raw, ev.Signature, rc.WebhookSecret) {
				d.rejected.Add(1)
				return fmt.Errorf("signature verification failed for %s", ev.DeliveryID)
			}
		}
	}

	if d.dedup.Seen(ev.DeliveryID) {
		d.deduped.Add(1)
		slog.Info("duplicate delivery skipped", "delivery", ev.DeliveryID)
		return nil
	}

	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}
	select {
	case d.queue <- ev:
		slog.Info("event queued", "type", ev.Type, "repository", ev.Repository, "delivery", ev.DeliveryID)
		return nil
	default:
		d.rejected.Add(1)
		return fmt.Errorf("event queue full, dropping %s", ev.DeliveryID)
	}
}

// Run drains the queue until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	consecutive := 0
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			if d.handleWithRetry(ctx, ev) {
				d.processed.Add(1)
				consecutive = 0
				continue
			}
			d.failed.Add(1)
			consecutive++
			if consecutive >= maxConsecutiveFailures {
				slog.Warn("too many consecutive failures, pausing", "pause", failurePause)
				select {
				case <-ctx.Done():
					return
				case <-time.After(failurePause):
				}
				consecutive = 0
			}
		}
	}
}

func (d *Dispatcher) handleWithRetry(ctx context.Context, ev *Event) bool {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if d.process(ctx, ev) {
			return true
		}
		if attempt == maxAttempts {
			break
		}
		backoff := time.Duration(2*attempt) * time.Second
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		slog.Warn("event retry scheduled", "delivery", ev.DeliveryID, "attempt", attempt, "backoff", backoff)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
	}
	slog.Error("event processing failed", "type", ev.Type, "delivery", ev.DeliveryID)
	return false
}

// process runs every handler for the event in parallel. Success means
// at least one handler succeeded (or no handler was registered).
func (d *Dispatcher) process(ctx context.Context, ev *Event) bool {
	d.mu.RLock()
	handlers := d.handlers[ev.Type]
	d.mu.RUnlock()
	if len(handlers) == 0 {
		return true
	}

	ctx, span := tracer.Start(ctx, "dispatch."+ev.Type, trace.WithAttributes(
		attribute.String("repository", ev.Repository),
		attribute.String("delivery_id", ev.DeliveryID),
		attribute.Int("handlers", len(handlers)),
	))
	defer span.End()

	var wg sync.WaitGroup
	errs := make([]error, len(handlers))
	for i, h := range handlers {
		wg.Add(1)
		go func(i int, h Handler) {
			defer wg.Done()
			errs[i] = h(ctx, ev)
		}(i, h)
	}
	wg.Wait()

	succeeded := 0
	for i, err := range errs {
		if err != nil {
			slog.Error("handler failed", "type", ev.Type, "handler", i, "delivery", ev.DeliveryID, "error", err)
			continue
		}
		succeeded++
	}
	if succeeded == 0 {
		span.SetStatus(codes.Error, "all handlers failed")
	}
	return succeeded > 0
}

// Stats reports delivery counters and queue depth.
func (d *Dispatcher) Stats() map[string]interface{} {
	return map[string]interface{}{
		"received":    d.received.Load(),
		"processed":   d.processed.Load(),
		"deduped":     d.deduped.Load(),
		"rejected":    d.rejected.Load(),
		"failed":      d.failed.Load(),
		"queue_depth": len(d.queue),
	}
}

func repositoryName(payload map[string]interface{}) string {
	repo, _ := payload["repository"].(map[string]interface{})
	if repo == nil {
		return ""
	}
	name, _ := repo["full_name"].(string)
	return name
}
