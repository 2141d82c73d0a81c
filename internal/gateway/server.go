// Package gateway is the webhook HTTP ingress: it authenticates nothing
// itself, it reads the GitHub delivery headers, enforces body and rate
// limits, and hands the event to the dispatcher.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/chimeyao/ghrelay/internal/aggregate"
	"github.com/chimeyao/ghrelay/internal/config"
	"github.com/chimeyao/ghrelay/internal/dispatch"
)

// Server is the webhook ingress HTTP server.
type Server struct {
	cfg        *config.Config
	dispatcher *dispatch.Dispatcher
	agg        *aggregate.Aggregator
	limiter    *ipLimiter
	startedAt  time.Time

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer wires the ingress over the dispatcher and aggregator.
func NewServer(cfg *config.Config, d *dispatch.Dispatcher, agg *aggregate.Aggregator) *Server {
	return &Server{
		cfg:        cfg,
		dispatcher: d,
		agg:        agg,
		limiter:    newIPLimiter(cfg.Server.RateLimitRPS),
		startedAt:  time.Now(),
	}
}

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)

	s.mux = mux
	return mux
}

// Start begins listening and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	slog.Info("gateway starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{"error": "method not allowed"})
		return
	}
	if !s.limiter.Allow(remoteIP(r)) {
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{"error": "rate limit exceeded"})
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	deliveryID := r.Header.Get("X-GitHub-Delivery")
	if eventType == "" || deliveryID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "missing GitHub delivery headers"})
		return
	}
	sig := r.Header.Get("X-Hub-Signature-256")
	if sig == "" {
		sig = r.Header.Get("X-Hub-Signature")
	}

	maxBytes := s.cfg.Server.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]interface{}{"error": "body too large"})
		return
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "invalid JSON payload"})
		return
	}

	ev := &dispatch.Event{
		Type:       eventType,
		DeliveryID: deliveryID,
		Signature:  sig,
		Payload:    payload,
		Raw:        body,
		ReceivedAt: time.Now(),
	}
	if err := s.dispatcher.Enqueue(ev); err != nil {
		slog.Warn("delivery rejected", "delivery", deliveryID, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":      "accepted",
		"delivery_id": deliveryID,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"dispatch":    s.dispatcher.Stats(),
		"aggregation": s.agg.Stats(),
		"uptime_sec":  int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":      "ghrelay",
		"endpoints": []string{"/webhook", "/status", "/healthz"},
	})
}

func writeJSON(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
