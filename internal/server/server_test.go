package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/leadline-ai/leadline/internal/agent"
	"github.com/leadline-ai/leadline/internal/convo"
)

func newWiredServer(t *testing.T, cfg *Config) *Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.MetricsRegistry = reg
	cfg.MetricsGatherer = reg

	rep := &fakeReplier{result: &agent.TurnResult{
		Reply: "When are you looking to move?",
		Stage: convo.StageQualifying,
		Send:  true,
	}}
	s, err := New(rep, &fakeIngestor{}, cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		if s.stopRL != nil {
			s.stopRL()
		}
	})
	return s
}

func TestNew_RequiresADependency(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, nil, nil); err == nil {
		t.Fatal("expected error when both replier and ingestor are nil")
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	s := newWiredServer(t, nil)
	if s.cfg.Host != "127.0.0.1" || s.cfg.Port != 8080 {
		t.Errorf("defaults = %s:%d", s.cfg.Host, s.cfg.Port)
	}
	if s.cfg.ReplyTimeout == 0 || s.cfg.ShutdownTimeout == 0 {
		t.Error("timeout defaults not applied")
	}
}

func TestRouting_ReplyRequiresAuth(t *testing.T) {
	t.Parallel()

	s := newWiredServer(t, &Config{APIKey: "secret"})

	// Missing token on the protected route.
	req := httptest.NewRequest(http.MethodPost, "/api/reply",
		strings.NewReader(`{"message":"hi"}`))
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("reply without token: expected 401, got %d", w.Code)
	}

	// Health stays open.
	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", w.Code)
	}

	// Correct token passes through to the handler.
	req = httptest.NewRequest(http.MethodPost, "/api/reply",
		strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("reply with token: expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
}

func TestRouting_MetricsExposed(t *testing.T) {
	t.Parallel()

	s := newWiredServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("metrics: expected 200, got %d", w.Code)
	}
}
