// Package server implements the HTTP server that exposes the lead agent via
// a REST API: reply turns, CSV ingestion, health/readiness probes, and
// Prometheus metrics. The server is started by the `leadline serve` CLI
// command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/leadline-ai/leadline/internal/convo"
	"github.com/leadline-ai/leadline/internal/logging"
	"github.com/leadline-ai/leadline/internal/retrieval"
)

// New constructs a Server from the provided agent, ingestion pipeline, and
// config. Either dependency may be nil; the corresponding endpoint then
// returns 503.
func New(rep replier, ing ingestor, cfg *Config) (*Server, error) {
	if rep == nil && ing == nil {
		return nil, fmt.Errorf("server: at least one of replier and ingestor must be set")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must cover a full ingestion upload.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ReplyTimeout == 0 {
		cfg.ReplyTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	if cfg.APIKey == "" {
		log.Warn("server: API key not configured — authentication disabled")
	}

	s := &Server{
		replier:  rep,
		ingestor: ing,
		cfg:      cfg,
		log:      log,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(cfg.MetricsRegistry),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	// Auth wraps only the agent-facing routes; health, readiness, and
	// metrics stay reachable for probes and scrapers.
	mux := http.NewServeMux()
	mux.Handle("POST /api/reply", authMiddleware(cfg.APIKey, http.HandlerFunc(s.handleReply)))
	mux.Handle("POST /api/ingest", authMiddleware(cfg.APIKey, http.HandlerFunc(s.handleIngest)))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	// Middleware order (outermost first): request logging, rate limiting.
	var handler http.Handler = mux
	handler = rl.middleware(handler)
	handler = requestLogger(log, handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("leadline server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		if s.stopRL != nil {
			s.stopRL()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleReply handles POST /api/reply: one conversation turn in, one reply
// envelope out.
func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		s.observeReply(outcome, time.Since(start))
	}()

	if s.replier == nil {
		outcome = "error"
		http.Error(w, "reply endpoint not configured", http.StatusServiceUnavailable)
		return
	}

	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		outcome = "bad_request"
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		outcome = "bad_request"
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ReplyTimeout)
	defer cancel()

	result, err := s.replier.Reply(ctx, req.ThreadID, req.Stage, req.Message)
	if err != nil {
		log := logging.FromContext(r.Context())
		if errors.Is(err, retrieval.ErrUnavailable) {
			outcome = "unavailable"
			log.Error("reply turn unavailable", slog.Any("error", err))
			http.Error(w, "service temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		outcome = "error"
		log.Error("reply turn failed", slog.Any("error", err))
		http.Error(w, "reply generation failed", http.StatusInternalServerError)
		return
	}

	resp := replyResponse{
		Reply:    result.Reply,
		Stage:    result.Stage,
		Send:     result.Send,
		FollowUp: result.FollowUp.IsFollowUp,
	}
	if result.FollowUp.IsFollowUp {
		resp.FollowUpConfidence = result.FollowUp.Confidence
	}
	if result.Action != nil {
		resp.Action = &replyAction{Action: result.Action.Action, Reason: result.Action.Reason}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleIngest handles POST /api/ingest: a CSV conversation export uploaded
// as the request body (or as the "file" part of a multipart form).
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.ingestor == nil {
		http.Error(w, "ingest endpoint not configured", http.StatusServiceUnavailable)
		return
	}

	var body io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "multipart upload requires a \"file\" part", http.StatusBadRequest)
			return
		}
		defer file.Close()
		body = file
	}

	partition := convo.Partition(r.URL.Query().Get("partition"))
	if partition == "" {
		partition = convo.PartitionDefault
	}

	log := logging.FromContext(r.Context())
	res, err := s.ingestor.IngestCSV(r.Context(), body, partition, func(msg string) {
		log.Info("ingest progress", slog.String("status", msg))
	})
	if err != nil {
		log.Error("ingest failed", slog.Any("error", err))
		http.Error(w, "ingestion failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.metrics.ingestMessagesTotal.Add(float64(len(res.Messages)))

	writeJSON(w, http.StatusOK, ingestResponse{
		Messages:    len(res.Messages),
		Threads:     res.Threads,
		Skipped:     res.Skipped,
		PIIRedacted: len(res.PII),
	})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// observeReply records the outcome metrics for one /api/reply request.
func (s *Server) observeReply(outcome string, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.replyRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.replyDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Error("response encode error",
			slog.String("status", strconv.Itoa(status)),
			slog.Any("error", err),
		)
	}
}
