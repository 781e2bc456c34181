package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/leadline-ai/leadline/internal/convo"
	"github.com/leadline-ai/leadline/internal/history"
	"github.com/leadline-ai/leadline/internal/retrieval"
)

// scriptedModel returns canned responses in order. The first Generate call a
// turn makes is stage classification, the second is reply generation.
type scriptedModel struct {
	responses []string
	errs      []error
	calls     [][]*schema.Message
}

func (m *scriptedModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	i := len(m.calls)
	m.calls = append(m.calls, in)
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i >= len(m.responses) {
		return nil, errors.New("scriptedModel: no response scripted")
	}
	return schema.AssistantMessage(m.responses[i], nil), nil
}

type fakeAgentRetriever struct {
	result *retrieval.Result
	err    error
	called bool
}

func (f *fakeAgentRetriever) Retrieve(_ context.Context, _ retrieval.Query) (*retrieval.Result, error) {
	f.called = true
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type memHistory struct {
	appended []history.Message
	prior    []history.Message
	err      error
}

func (m *memHistory) Append(_ context.Context, _ string, role convo.Role, content string) error {
	if m.err != nil {
		return m.err
	}
	m.appended = append(m.appended, history.Message{Role: role, Content: content})
	return nil
}

func (m *memHistory) Recent(_ context.Context, _ string, _ int) ([]history.Message, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.prior, nil
}

func (m *memHistory) Close() error { return nil }

const stageJSON = `{"stage": "qualifying", "reason": "gathering basics"}`

func replyJSON(msg, action string) string {
	if action == "" {
		return `{"outgoing_message": "` + msg + `", "next_action_suggested": null}`
	}
	return `{"outgoing_message": "` + msg + `", "next_action_suggested": {"action": "` + action + `", "reason": "test"}}`
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := New(&Config{}); err == nil {
		t.Error("expected error for nil chat model")
	}
	a, err := New(&Config{ChatModel: &scriptedModel{}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if a.persona != "Ashanti" {
		t.Errorf("default persona = %q", a.persona)
	}
	if a.historyDepth != 10 {
		t.Errorf("default history depth = %d", a.historyDepth)
	}
}

func TestReplyRejectsEmptyMessage(t *testing.T) {
	t.Parallel()

	a, _ := New(&Config{ChatModel: &scriptedModel{}})
	if _, err := a.Reply(context.Background(), "t1", "qualifying", ""); err == nil {
		t.Fatal("expected error for empty lead message")
	}
}

func TestReplyFullTurn(t *testing.T) {
	t.Parallel()

	chat := &scriptedModel{responses: []string{
		stageJSON,
		replyJSON("I'll check availability and follow up with times.", "escalate_scheduling"),
	}}
	hist := &memHistory{}
	a, err := New(&Config{ChatModel: chat, History: hist})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := a.Reply(context.Background(), "t1", "first_contact", "Can I see the unit this week?")
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}

	if res.Reply != "I'll check availability and follow up with times." {
		t.Errorf("reply = %q", res.Reply)
	}
	if res.Stage != convo.StageQualifying {
		t.Errorf("stage = %q, want %q", res.Stage, convo.StageQualifying)
	}
	if !res.Send {
		t.Error("scheduling escalation should still send")
	}
	if res.Action == nil || res.Action.Action != "escalate_scheduling" {
		t.Errorf("action = %+v", res.Action)
	}
	if !res.FollowUp.IsFollowUp {
		t.Error("reply promises a follow-up, detector missed it")
	}

	// Both sides of the turn are persisted.
	if len(hist.appended) != 2 {
		t.Fatalf("appended %d messages, want 2", len(hist.appended))
	}
	if hist.appended[0].Role != convo.RoleLead || hist.appended[1].Role != convo.RoleAgent {
		t.Errorf("persisted roles = %q, %q", hist.appended[0].Role, hist.appended[1].Role)
	}
}

func TestReplySuppressedForNoSendAction(t *testing.T) {
	t.Parallel()

	chat := &scriptedModel{responses: []string{
		stageJSON,
		replyJSON("Let me look at that.", "escalate_links"),
	}}
	hist := &memHistory{}
	a, _ := New(&Config{ChatModel: chat, History: hist})

	res, err := a.Reply(context.Background(), "t1", "qualifying", "check out this place https://example.com/listing")
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if res.Send {
		t.Error("links escalation must suppress the send")
	}
	if res.Reply != "" {
		t.Errorf("suppressed reply should be empty, got %q", res.Reply)
	}
	// Only the lead's message is persisted when nothing goes out.
	if len(hist.appended) != 1 || hist.appended[0].Role != convo.RoleLead {
		t.Errorf("appended = %+v", hist.appended)
	}
}

func TestReplyStageTransitionOnApplication(t *testing.T) {
	t.Parallel()

	chat := &scriptedModel{responses: []string{
		`{"stage": "touring", "reason": "tours done"}`,
		replyJSON("I'll send over the application link.", "request_application"),
	}}
	a, _ := New(&Config{ChatModel: chat})

	res, err := a.Reply(context.Background(), "t1", "touring", "Loved The Pearl, ready to apply")
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if res.Stage != convo.StageApplied {
		t.Errorf("stage = %q, want %q", res.Stage, convo.StageApplied)
	}
	if !res.Send {
		t.Error("request_application should send")
	}
}

func TestReplyPolicyBackstopCatchesLinks(t *testing.T) {
	t.Parallel()

	// Model misses the link; the rule backstop should catch it.
	chat := &scriptedModel{responses: []string{
		stageJSON,
		replyJSON("Nice find!", ""),
	}}
	a, _ := New(&Config{ChatModel: chat})

	res, err := a.Reply(context.Background(), "t1", "qualifying", "what about www.apartments.com/xyz")
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if res.Action == nil || res.Action.Action != "escalate_links" {
		t.Fatalf("backstop missed the link, action = %+v", res.Action)
	}
	if res.Send {
		t.Error("backstop links escalation must suppress the send")
	}
}

func TestReplyGenerationFailureUsesFallback(t *testing.T) {
	t.Parallel()

	chat := &scriptedModel{
		responses: []string{stageJSON, ""},
		errs:      []error{nil, errors.New("model offline")},
	}
	a, _ := New(&Config{ChatModel: chat})

	res, err := a.Reply(context.Background(), "t1", "qualifying", "can we schedule a tour?")
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if !strings.Contains(res.Reply, "follow up") {
		t.Errorf("expected canned fallback, got %q", res.Reply)
	}
}

func TestReplyStageClassificationFailureFallsBack(t *testing.T) {
	t.Parallel()

	chat := &scriptedModel{
		responses: []string{"", replyJSON("Which one stood out?", "")},
		errs:      []error{errors.New("model offline"), nil},
	}
	a, _ := New(&Config{ChatModel: chat})

	res, err := a.Reply(context.Background(), "t1", "working", "just finished the tours")
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	// Keyword fallback should pick up "tours".
	if res.Stage != convo.StageTouring {
		t.Errorf("stage = %q, want %q", res.Stage, convo.StageTouring)
	}
}

func TestReplyRetrievalUnavailableDegrades(t *testing.T) {
	t.Parallel()

	chat := &scriptedModel{responses: []string{
		stageJSON,
		replyJSON("When are you looking to move?", ""),
	}}
	ret := &fakeAgentRetriever{err: retrieval.ErrUnavailable}
	a, _ := New(&Config{ChatModel: chat, Retriever: ret})

	res, err := a.Reply(context.Background(), "t1", "qualifying", "looking for a place in Houston")
	if err != nil {
		t.Fatalf("retrieval outage must not fail the turn: %v", err)
	}
	if !ret.called {
		t.Error("retriever was not consulted")
	}
	if res.Reply == "" {
		t.Error("expected a reply despite retrieval outage")
	}
	if res.Diagnostics != nil {
		t.Error("no diagnostics expected when retrieval failed")
	}
}

func TestReplyInjectsRetrievedContext(t *testing.T) {
	t.Parallel()

	chat := &scriptedModel{responses: []string{
		stageJSON,
		replyJSON("Both solid options. When works for a tour?", ""),
	}}
	ret := &fakeAgentRetriever{result: &retrieval.Result{
		Ranked: []retrieval.RankedResult{
			{Message: convo.Message{ID: "m1", Role: convo.RoleAgent, CleanText: "I'll pull a few options in your range."}, Score: 0.9},
		},
		Pairs: []retrieval.DialoguePair{
			{LeadText: "any 2br options?", AgentText: "Sending three over now.", ThreadID: "c1"},
		},
		Diagnostics: retrieval.Diagnostics{GlobalPool: 1, Merged: 1},
	}}
	a, _ := New(&Config{ChatModel: chat, Retriever: ret})

	res, err := a.Reply(context.Background(), "t1", "working", "I like The Pearl and Harlow")
	if err != nil {
		t.Fatalf("Reply failed: %v", err)
	}
	if res.Diagnostics == nil || res.Diagnostics.Merged != 1 {
		t.Errorf("diagnostics = %+v", res.Diagnostics)
	}

	// The generation call's system prompt carries the exemplars.
	if len(chat.calls) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(chat.calls))
	}
	system := chat.calls[1][0].Content
	if !strings.Contains(system, "I'll pull a few options in your range.") {
		t.Error("retrieved context missing from system prompt")
	}
	if !strings.Contains(system, "Sending three over now.") {
		t.Error("dialogue pair missing from system prompt")
	}
}

func TestReplyHistoryInPrompt(t *testing.T) {
	t.Parallel()

	chat := &scriptedModel{responses: []string{
		stageJSON,
		replyJSON("Got it. How many bedrooms?", ""),
	}}
	hist := &memHistory{prior: []history.Message{
		{Role: convo.RoleLead, Content: "Looking for a place in Houston"},
		{Role: convo.RoleAgent, Content: "Great! When are you looking to move?"},
	}}
	a, _ := New(&Config{ChatModel: chat, History: hist})

	if _, err := a.Reply(context.Background(), "t1", "qualifying", "end of March, around $1500"); err != nil {
		t.Fatalf("Reply failed: %v", err)
	}

	gen := chat.calls[1]
	// system + 2 history turns + current message
	if len(gen) != 4 {
		t.Fatalf("generation call has %d messages, want 4", len(gen))
	}
	if gen[1].Content != "Looking for a place in Houston" {
		t.Errorf("history not injected: %q", gen[1].Content)
	}
	if gen[3].Content != "end of March, around $1500" {
		t.Errorf("lead message last: %q", gen[3].Content)
	}
}
