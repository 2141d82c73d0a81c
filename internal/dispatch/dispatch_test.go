package dispatch

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/chimeyao/ghrelay/internal/aggregate"
	"github.com/chimeyao/ghrelay/internal/config"
	"github.com/chimeyao/ghrelay/internal/dedup"
	"github.com/chimeyao/ghrelay/internal/format"
)

func testConfig() *config.Config {
	cfg := config.Default()
	disabled := false
	cfg.Repos = map[string]*config.RepoConfig{
		"octo/hello": {GroupIDs: []string{"12345"}},
		"octo/off":   {Enabled: &disabled},
		"octo/signed": {
			VerifySignature: true,
			WebhookSecret:   "s3cret",
		},
	}
	return cfg
}

func testEvent(eventType, repository, deliveryID string) *Event {
	payload := map[string]interface{}{"action": "opened"}
	if repository != "" {
		payload["repository"] = map[string]interface{}{"full_name": repository}
	}
	raw, _ := json.Marshal(payload)
	return &Event{
		Type:       eventType,
		DeliveryID: deliveryID,
		Payload:    payload,
		Raw:        raw,
	}
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestEnqueueValidation(t *testing.T) {
	d := New(testConfig(), dedup.New())

	if err := d.Enqueue(&Event{Type: "issues", Payload: map[string]interface{}{"a": 1}}); err == nil {
		t.Error("missing delivery id accepted")
	}
	if err := d.Enqueue(&Event{Type: "", DeliveryID: "d1", Payload: map[string]interface{}{"a": 1}}); err == nil {
		t.Error("missing event type accepted")
	}
	if err := d.Enqueue(&Event{Type: "issues", DeliveryID: "d2"}); err == nil {
		t.Error("empty payload accepted")
	}
	if err := d.Enqueue(testEvent("issues", "", "d3")); err == nil {
		t.Error("non-ping event without repository accepted")
	}
	if err := d.Enqueue(testEvent("ping", "", "d4")); err != nil {
		t.Errorf("ping without repository rejected: %v", err)
	}
}

func TestEnqueueGating(t *testing.T) {
	d := New(testConfig(), dedup.New())

	// unsupported types are skipped, not errors
	if err := d.Enqueue(testEvent("team_add", "octo/hello", "d1")); err != nil {
		t.Errorf("unsupported type errored: %v", err)
	}
	// unknown repositories are skipped
	if err := d.Enqueue(testEvent("issues", "octo/stranger", "d2")); err != nil {
		t.Errorf("unconfigured repo errored: %v", err)
	}
	// disabled repositories are skipped
	if err := d.Enqueue(testEvent("issues", "octo/off", "d3")); err != nil {
		t.Errorf("disabled repo errored: %v", err)
	}
	if len(d.queue) != 0 {
		t.Fatalf("queue depth = %d after skips", len(d.queue))
	}

	if err := d.Enqueue(testEvent("issues", "octo/hello", "d4")); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}
	if len(d.queue) != 1 {
		t.Fatalf("queue depth = %d, want 1", len(d.queue))
	}
}

func TestUnsupportedTypeLogsWarning(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	d := New(testConfig(), dedup.New())
	if err := d.Enqueue(testEvent("team_add", "octo/hello", "w-1")); err != nil {
		t.Fatalf("unsupported type errored: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "unsupported event type") {
		t.Errorf("log output = %q", out)
	}
}

func TestEnqueueDedup(t *testing.T) {
	d := New(testConfig(), dedup.New())

	if err := d.Enqueue(testEvent("issues", "octo/hello", "dup-1")); err != nil {
		t.Fatal(err)
	}
	if err := d.Enqueue(testEvent("issues", "octo/hello", "dup-1")); err != nil {
		t.Fatalf("duplicate errored: %v", err)
	}
	if len(d.queue) != 1 {
		t.Fatalf("queue depth = %d, duplicate was queued", len(d.queue))
	}
	stats := d.Stats()
	if stats["deduped"].(int64) != 1 {
		t.Errorf("deduped = %v", stats["deduped"])
	}
}

func TestEnqueueSignature(t *testing.T) {
	d := New(testConfig(), dedup.New())

	ev := testEvent("issues", "octo/signed", "sig-1")
	ev.Signature = "sha256=deadbeef"
	if err := d.Enqueue(ev); err == nil {
		t.Error("bad signature accepted")
	}

	ev = testEvent("issues", "octo/signed", "sig-2")
	ev.Signature = sign(ev.Raw, "s3cret")
	if err := d.Enqueue(ev); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}
	if len(d.queue) != 1 {
		t.Fatalf("queue depth = %d, want 1", len(d.queue))
	}
}

func TestEnqueueMissingSignatureFailsClosed(t *testing.T) {
	d := New(testConfig(), dedup.New())

	ev := testEvent("issues", "octo/signed", "sig-missing")
	if err := d.Enqueue(ev); err == nil {
		t.Error("unsigned delivery accepted for repo with secret")
	}
	if len(d.queue) != 0 {
		t.Fatalf("queue depth = %d, want 0", len(d.queue))
	}
}

func TestEnqueueRedeliveryAfterBadSignature(t *testing.T) {
	d := New(testConfig(), dedup.New())

	ev := testEvent("issues", "octo/signed", "redeliver-1")
	ev.Signature = "sha256=deadbeef"
	if err := d.Enqueue(ev); err == nil {
		t.Fatal("bad signature accepted")
	}

	// GitHub redelivers with the same delivery id; the rejection must
	// not have consumed it.
	ev = testEvent("issues", "octo/signed", "redeliver-1")
	ev.Signature = sign(ev.Raw, "s3cret")
	if err := d.Enqueue(ev); err != nil {
		t.Fatalf("corrected redelivery rejected: %v", err)
	}
	if len(d.queue) != 1 {
		t.Fatalf("queue depth = %d, want 1", len(d.queue))
	}
}

func TestEnqueueQueueFull(t *testing.T) {
	d := New(testConfig(), dedup.New())

	for i := 0; i < queueSize; i++ {
		if err := d.Enqueue(testEvent("issues", "octo/hello", fmt.Sprintf("fill-%d", i))); err != nil {
			t.Fatalf("fill %d: %v", i, err)
		}
	}
	if err := d.Enqueue(testEvent("issues", "octo/hello", "overflow")); err == nil {
		t.Error("overflow event accepted")
	}
	if d.Stats()["rejected"].(int64) != 1 {
		t.Errorf("rejected = %v", d.Stats()["rejected"])
	}
}

func TestProcessSuccessSemantics(t *testing.T) {
	d := New(testConfig(), dedup.New())
	ev := testEvent("issues", "octo/hello", "p-1")

	// no handlers: trivially processed
	if !d.process(context.Background(), ev) {
		t.Error("event with no handlers failed")
	}

	// one of two handlers failing still counts as success
	var mu sync.Mutex
	var calls []string
	d.On("issues", func(ctx context.Context, ev *Event) error {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, "ok")
		return nil
	})
	d.On("issues", func(ctx context.Context, ev *Event) error {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, "fail")
		return errors.New("boom")
	})
	if !d.process(context.Background(), ev) {
		t.Error("partial handler success reported as failure")
	}
	if len(calls) != 2 {
		t.Errorf("handler calls = %d, want 2", len(calls))
	}

	// all handlers failing fails the event
	d2 := New(testConfig(), dedup.New())
	d2.On("issues", func(ctx context.Context, ev *Event) error { return errors.New("boom") })
	if d2.process(context.Background(), ev) {
		t.Error("all-failed handlers reported as success")
	}
}

type recordingSender struct {
	mu      sync.Mutex
	targets []string
}

func (r *recordingSender) SendSingle(target string, c *format.Content) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = append(r.targets, target)
	return nil
}

func (r *recordingSender) SendBundle(target string, cs []*format.Content) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.targets = append(r.targets, target)
	return nil
}

func TestNotificationHandler(t *testing.T) {
	cfg := testConfig()
	sender := &recordingSender{}
	agg := aggregate.New(sender, time.Hour, 10)
	h := NotificationHandler(cfg, format.New(cfg), agg)

	payload := map[string]interface{}{
		"action":     "created",
		"repository": map[string]interface{}{"full_name": "octo/hello"},
		"issue":      map[string]interface{}{"number": float64(7), "title": "bug", "html_url": "https://example.com/7"},
		"comment":    map[string]interface{}{"id": float64(1), "body": "hi"},
		"sender":     map[string]interface{}{"login": "alice"},
	}
	// issue_comment rides the issues formatter
	ev := &Event{Type: "issue_comment", Repository: "octo/hello", Payload: payload}
	if err := h(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	agg.FlushAll()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.targets) != 1 || sender.targets[0] != "group_12345" {
		t.Errorf("targets = %v, want [group_12345]", sender.targets)
	}
}

func TestNotificationHandlerAllowList(t *testing.T) {
	cfg := testConfig()
	cfg.Repos["octo/hello"].AllowedTypes = []string{"push"}
	sender := &recordingSender{}
	agg := aggregate.New(sender, time.Hour, 10)
	h := NotificationHandler(cfg, format.New(cfg), agg)

	ev := testEvent("issues", "octo/hello", "n-1")
	ev.Repository = "octo/hello"
	if err := h(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	agg.FlushAll()

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.targets) != 0 {
		t.Errorf("disallowed type delivered to %v", sender.targets)
	}
}

func TestRunProcessesQueued(t *testing.T) {
	d := New(testConfig(), dedup.New())
	done := make(chan string, 1)
	d.On("issues", func(ctx context.Context, ev *Event) error {
		done <- ev.DeliveryID
		return nil
	})

	if err := d.Enqueue(testEvent("issues", "octo/hello", "run-1")); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	select {
	case id := <-done:
		if id != "run-1" {
			t.Errorf("delivery = %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued event not processed")
	}
}
