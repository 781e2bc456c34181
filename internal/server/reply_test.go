package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/leadline-ai/leadline/internal/agent"
	"github.com/leadline-ai/leadline/internal/convo"
	"github.com/leadline-ai/leadline/internal/ingest"
	"github.com/leadline-ai/leadline/internal/policy"
	"github.com/leadline-ai/leadline/internal/retrieval"
)

// fakeReplier implements the replier interface for tests.
type fakeReplier struct {
	result *agent.TurnResult
	err    error
	// got records the last call's arguments.
	gotThread, gotStage, gotMessage string
}

func (f *fakeReplier) Reply(_ context.Context, threadID, stage, msg string) (*agent.TurnResult, error) {
	f.gotThread, f.gotStage, f.gotMessage = threadID, stage, msg
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeIngestor implements the ingestor interface for tests.
type fakeIngestor struct {
	result *ingest.ParseResult
	err    error
	read   []byte
}

func (f *fakeIngestor) IngestCSV(_ context.Context, r io.Reader, _ convo.Partition, _ func(string)) (*ingest.ParseResult, error) {
	f.read, _ = io.ReadAll(r)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// newTestServer builds a minimal *Server for direct handler tests, backed by
// a fresh metrics registry so tests stay hermetic.
func newTestServer() *Server {
	return &Server{
		cfg:     &Config{ReplyTimeout: 5 * time.Second},
		log:     slog.Default(),
		metrics: newServerMetrics(prometheus.NewRegistry()),
	}
}

func newReplyTestServer(r replier) *Server {
	s := newTestServer()
	s.replier = r
	return s
}

func postJSON(t *testing.T, s *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.handleReply(w, req)
	return w
}

func TestHandleReply_MissingMessage(t *testing.T) {
	t.Parallel()

	s := newReplyTestServer(&fakeReplier{})
	w := postJSON(t, s, "/api/reply", `{"thread_id":"t1"}`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleReply_InvalidJSON(t *testing.T) {
	t.Parallel()

	s := newReplyTestServer(&fakeReplier{})
	w := postJSON(t, s, "/api/reply", `not-json`)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleReply_NotConfigured(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	w := postJSON(t, s, "/api/reply", `{"message":"hi"}`)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestHandleReply_Success(t *testing.T) {
	t.Parallel()

	rep := &fakeReplier{result: &agent.TurnResult{
		Reply: "I'll check availability and follow up with times.",
		Stage: convo.StageTouring,
		Send:  true,
		Action: &agent.SuggestedAction{
			Action: "escalate_scheduling",
			Reason: "tour requested",
		},
		FollowUp: policy.FollowUpResult{IsFollowUp: true, Confidence: 0.9},
	}}
	s := newReplyTestServer(rep)

	w := postJSON(t, s, "/api/reply",
		`{"thread_id":"t1","stage":"working","message":"can we tour friday?"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}
	if rep.gotThread != "t1" || rep.gotStage != "working" || rep.gotMessage != "can we tour friday?" {
		t.Errorf("replier called with %q/%q/%q", rep.gotThread, rep.gotStage, rep.gotMessage)
	}

	resp := decodeReply(t, w)
	if resp.Reply != "I'll check availability and follow up with times." {
		t.Errorf("reply = %q", resp.Reply)
	}
	if resp.Stage != convo.StageTouring {
		t.Errorf("stage = %q", resp.Stage)
	}
	if !resp.Send {
		t.Error("expected send:true")
	}
	if resp.Action == nil || resp.Action.Action != "escalate_scheduling" {
		t.Errorf("action = %+v", resp.Action)
	}
	if !resp.FollowUp || resp.FollowUpConfidence != 0.9 {
		t.Errorf("follow-up = %v/%v", resp.FollowUp, resp.FollowUpConfidence)
	}
}

func TestHandleReply_SuppressedSend(t *testing.T) {
	t.Parallel()

	rep := &fakeReplier{result: &agent.TurnResult{
		Stage:  convo.StageQualifying,
		Send:   false,
		Action: &agent.SuggestedAction{Action: "escalate_links", Reason: "contains_link_or_screenshot"},
	}}
	s := newReplyTestServer(rep)

	w := postJSON(t, s, "/api/reply", `{"message":"see https://example.com"}`)

	resp := decodeReply(t, w)
	if resp.Send {
		t.Error("expected send:false")
	}
	if resp.Reply != "" {
		t.Errorf("suppressed reply should be empty, got %q", resp.Reply)
	}
}

func TestHandleReply_AgentError(t *testing.T) {
	t.Parallel()

	s := newReplyTestServer(&fakeReplier{err: errors.New("generation failed")})
	w := postJSON(t, s, "/api/reply", `{"message":"hi"}`)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
}

func TestHandleReply_RetrievalUnavailable(t *testing.T) {
	t.Parallel()

	s := newReplyTestServer(&fakeReplier{err: retrieval.ErrUnavailable})
	w := postJSON(t, s, "/api/reply", `{"message":"hi"}`)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func decodeReply(t *testing.T, w *httptest.ResponseRecorder) replyResponse {
	t.Helper()
	var resp replyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}
