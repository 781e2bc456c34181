// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes helpers used by handlers and middleware.
package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// replyRequestsTotal counts completed /api/reply requests, partitioned
	// by outcome: "ok", "bad_request", "unavailable", or "error".
	replyRequestsTotal *prometheus.CounterVec

	// replyDurationSeconds records the wall-clock duration of each
	// /api/reply request from receipt to response.
	replyDurationSeconds *prometheus.HistogramVec

	// ingestMessagesTotal counts messages embedded and stored via
	// /api/ingest.
	ingestMessagesTotal prometheus.Counter
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		replyRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "leadline",
			Subsystem: "reply",
			Name:      "requests_total",
			Help:      "Total number of /api/reply requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		replyDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "leadline",
			Subsystem: "reply",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/reply requests from receipt to response.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"outcome"}),

		ingestMessagesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "leadline",
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Total number of messages embedded and stored via /api/ingest.",
		}),
	}
}
