package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/leadline-ai/leadline/internal/agent"
	"github.com/leadline-ai/leadline/internal/convo"
	"github.com/leadline-ai/leadline/internal/ingest"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ReplyTimeout bounds one /api/reply turn end to end. Defaults to 60s.
	ReplyTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry is where server metrics are registered. Defaults to
	// prometheus.DefaultRegisterer. Tests inject a fresh registry.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// replier is the interface handleReply calls to run a conversation turn.
// *agent.LeadAgent satisfies it; tests inject a fake.
type replier interface {
	Reply(ctx context.Context, threadID, stage, leadMessage string) (*agent.TurnResult, error)
}

// ingestor is the interface handleIngest calls to process a CSV upload.
// *ingest.Pipeline satisfies it; tests inject a fake.
type ingestor interface {
	IngestCSV(ctx context.Context, r io.Reader, partition convo.Partition, progress func(msg string)) (*ingest.ParseResult, error)
}

// Server is the HTTP server that exposes the lead agent and the ingestion
// pipeline.
type Server struct {
	// replier runs conversation turns. May be nil when the server is
	// ingestion-only.
	replier replier
	// ingestor processes CSV uploads. May be nil when ingestion is disabled.
	ingestor ingestor
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds this server's Prometheus instruments.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// replyRequest is the JSON body for POST /api/reply.
type replyRequest struct {
	// ThreadID identifies the conversation. Optional for one-shot turns.
	ThreadID string `json:"thread_id"`
	// Stage is the caller's view of the conversation stage, in either
	// vocabulary. Optional; the agent classifies when absent.
	Stage string `json:"stage"`
	// Message is the lead's current message. Required.
	Message string `json:"message"`
}

// replyAction mirrors agent.SuggestedAction on the wire.
type replyAction struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// replyResponse is the JSON response for POST /api/reply.
type replyResponse struct {
	// Reply is the outgoing message. Empty when Send is false.
	Reply string `json:"reply"`
	// Stage is the (possibly advanced) stage after the turn.
	Stage string `json:"stage"`
	// Send reports whether the reply should go out to the lead.
	Send bool `json:"send"`
	// Action is the suggested action for human review, if any.
	Action *replyAction `json:"action,omitempty"`
	// FollowUp is true when the reply promises a follow-up.
	FollowUp bool `json:"follow_up"`
	// FollowUpConfidence is the detector's confidence when FollowUp is true.
	FollowUpConfidence float64 `json:"follow_up_confidence,omitempty"`
}

// ingestResponse is the JSON response for POST /api/ingest.
type ingestResponse struct {
	// Messages is the number of messages embedded and stored.
	Messages int `json:"messages"`
	// Threads is the number of distinct conversation threads seen.
	Threads int `json:"threads"`
	// Skipped is the number of rows dropped for having no usable text.
	Skipped int `json:"skipped"`
	// PIIRedacted is the number of messages that had PII redacted.
	PIIRedacted int `json:"pii_redacted"`
}
