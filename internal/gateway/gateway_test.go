package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/chimeyao/ghrelay/internal/aggregate"
	"github.com/chimeyao/ghrelay/internal/config"
	"github.com/chimeyao/ghrelay/internal/dedup"
	"github.com/chimeyao/ghrelay/internal/dispatch"
	"github.com/chimeyao/ghrelay/internal/format"
)

type nopSender struct{}

func (nopSender) SendSingle(target string, c *format.Content) error    { return nil }
func (nopSender) SendBundle(target string, cs []*format.Content) error { return nil }

func newTestServer(t *testing.T, rps int) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Server.RateLimitRPS = rps
	cfg.Repos = map[string]*config.RepoConfig{
		"octo/hello": {},
	}
	d := dispatch.New(cfg, dedup.New())
	agg := aggregate.New(nopSender{}, cfg.AggregationDelay(), 10)
	return NewServer(cfg, d, agg)
}

func postWebhook(mux *http.ServeMux, eventType, deliveryID string, payload map[string]interface{}) *httptest.ResponseRecorder {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if eventType != "" {
		req.Header.Set("X-GitHub-Event", eventType)
	}
	if deliveryID != "" {
		req.Header.Set("X-GitHub-Delivery", deliveryID)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func issuesPayload(repo string) map[string]interface{} {
	return map[string]interface{}{
		"action":     "opened",
		"repository": map[string]interface{}{"full_name": repo},
		"issue":      map[string]interface{}{"number": 1, "title": "t"},
		"sender":     map[string]interface{}{"login": "alice"},
	}
}

func TestWebhookAccepted(t *testing.T) {
	s := newTestServer(t, 0)
	rec := postWebhook(s.BuildMux(), "issues", "d-1", issuesPayload("octo/hello"))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["delivery_id"] != "d-1" || resp["status"] != "accepted" {
		t.Errorf("response = %v", resp)
	}
}

func TestWebhookMissingHeaders(t *testing.T) {
	s := newTestServer(t, 0)
	mux := s.BuildMux()

	if rec := postWebhook(mux, "", "d-1", issuesPayload("octo/hello")); rec.Code != http.StatusBadRequest {
		t.Errorf("missing event header: status = %d", rec.Code)
	}
	if rec := postWebhook(mux, "issues", "", issuesPayload("octo/hello")); rec.Code != http.StatusBadRequest {
		t.Errorf("missing delivery header: status = %d", rec.Code)
	}
}

func TestWebhookMethodAndBody(t *testing.T) {
	s := newTestServer(t, 0)
	mux := s.BuildMux()

	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /webhook: status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte("{not json")))
	req.Header.Set("X-GitHub-Event", "issues")
	req.Header.Set("X-GitHub-Delivery", "d-bad")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON: status = %d", rec.Code)
	}
}

func TestWebhookRateLimit(t *testing.T) {
	s := newTestServer(t, 1) // burst 2
	mux := s.BuildMux()

	var limited bool
	for i := 0; i < 5; i++ {
		rec := postWebhook(mux, "issues", fmt.Sprintf("rl-%d", i), issuesPayload("octo/hello"))
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("burst of deliveries never rate limited")
	}
}

func TestStatusAndHealth(t *testing.T) {
	s := newTestServer(t, 0)
	mux := s.BuildMux()

	postWebhook(mux, "issues", "s-1", issuesPayload("octo/hello"))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	dispatchStats, _ := resp["dispatch"].(map[string]interface{})
	if dispatchStats["received"].(float64) != 1 {
		t.Errorf("dispatch stats = %v", dispatchStats)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
}

func TestRootRoutes(t *testing.T) {
	s := newTestServer(t, 0)
	mux := s.BuildMux()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("root = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path = %d", rec.Code)
	}
}

func TestIPLimiterDisabled(t *testing.T) {
	l := newIPLimiter(0)
	for i := 0; i < 100; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatal("disabled limiter denied a request")
		}
	}
}
