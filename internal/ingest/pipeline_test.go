package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/leadline-ai/leadline/internal/convo"
)

type stubEmbedder struct {
	err   error
	calls int
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

func (s *stubEmbedder) Version() string { return "stub@v1" }

type stubSink struct {
	batches [][]convo.Message
	err     error
}

func (s *stubSink) Upsert(_ context.Context, msgs []convo.Message) error {
	if s.err != nil {
		return s.err
	}
	batch := make([]convo.Message, len(msgs))
	copy(batch, msgs)
	s.batches = append(s.batches, batch)
	return nil
}

func pipelineMsgs(n int) []convo.Message {
	msgs := make([]convo.Message, n)
	for i := range msgs {
		msgs[i] = convo.Message{
			ID:        "m" + string(rune('a'+i)),
			ThreadID:  "t1",
			TurnIndex: i,
			Role:      convo.RoleLead,
			CleanText: "looking for a two bedroom apartment downtown",
		}
	}
	return msgs
}

func TestNewPipelineValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewPipeline(nil, &stubSink{}, nil); err == nil {
		t.Error("expected error for nil embedder")
	}
	if _, err := NewPipeline(&stubEmbedder{}, nil, nil); err == nil {
		t.Error("expected error for nil sink")
	}
	p, err := NewPipeline(&stubEmbedder{}, &stubSink{}, nil)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	if p.cfg.BatchSize != 64 {
		t.Errorf("default batch size = %d, want 64", p.cfg.BatchSize)
	}
}

func TestPipelineRunStampsVersionAndEmbeddings(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	p, err := NewPipeline(&stubEmbedder{}, sink, nil)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	if err := p.Run(context.Background(), pipelineMsgs(3), nil); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(sink.batches) != 1 {
		t.Fatalf("expected 1 batch, got %d", len(sink.batches))
	}
	for _, m := range sink.batches[0] {
		if len(m.Embedding) == 0 {
			t.Errorf("message %s has no embedding", m.ID)
		}
		if m.EmbeddingVersion != "stub@v1" {
			t.Errorf("message %s version = %q", m.ID, m.EmbeddingVersion)
		}
	}
}

func TestPipelineRunBatches(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	emb := &stubEmbedder{}
	p, err := NewPipeline(emb, sink, &Config{BatchSize: 2})
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	var progress []string
	if err := p.Run(context.Background(), pipelineMsgs(5), func(msg string) {
		progress = append(progress, msg)
	}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(sink.batches) != 3 {
		t.Errorf("expected 3 batches, got %d", len(sink.batches))
	}
	if emb.calls != 3 {
		t.Errorf("expected 3 embed calls, got %d", emb.calls)
	}
	if len(progress) != 3 {
		t.Fatalf("expected 3 progress reports, got %d", len(progress))
	}
	if !strings.Contains(progress[2], "5/5") {
		t.Errorf("final progress = %q, want total count", progress[2])
	}
}

func TestPipelineRunEmbedFailure(t *testing.T) {
	t.Parallel()

	sink := &stubSink{}
	p, err := NewPipeline(&stubEmbedder{err: errors.New("model offline")}, sink, nil)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	if err := p.Run(context.Background(), pipelineMsgs(2), nil); err == nil {
		t.Fatal("expected error from failing embedder")
	}
	if len(sink.batches) != 0 {
		t.Errorf("nothing should be upserted on embed failure, got %d batches", len(sink.batches))
	}
}

func TestPipelineRunUpsertFailure(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(&stubEmbedder{}, &stubSink{err: errors.New("store down")}, nil)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	if err := p.Run(context.Background(), pipelineMsgs(1), nil); err == nil {
		t.Fatal("expected error from failing sink")
	}
}

func TestEmbedText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		msg  convo.Message
		want string
	}{
		{
			"substantive turn uses clean text",
			convo.Message{CleanText: "looking for a two bedroom downtown", ContextText: "ctx"},
			"looking for a two bedroom downtown",
		},
		{
			"short turn uses context window",
			convo.Message{CleanText: "yes", ContextText: "agent:Want a tour? | lead:yes"},
			"agent:Want a tour? | lead:yes",
		},
		{
			"short turn without context keeps clean text",
			convo.Message{CleanText: "yes"},
			"yes",
		},
		{
			"raw text fallback",
			convo.Message{Text: "raw only"},
			"raw only",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := embedText(tt.msg); got != tt.want {
				t.Errorf("embedText = %q, want %q", got, tt.want)
			}
		})
	}
}

type stubScanner struct {
	batches [][]convo.Message
}

func (s *stubScanner) Scan(_ context.Context, _ int, fn func(msgs []convo.Message) error) error {
	for _, b := range s.batches {
		if err := fn(b); err != nil {
			return err
		}
	}
	return nil
}

func TestReembed_OnlyStaleVersions(t *testing.T) {
	t.Parallel()

	fresh := pipelineMsgs(2)
	for i := range fresh {
		fresh[i].EmbeddingVersion = "stub@v1"
	}
	stale := pipelineMsgs(3)
	for i := range stale {
		stale[i].ID = "old-" + stale[i].ID
		stale[i].EmbeddingVersion = "stub@v0"
	}

	sink := &stubSink{}
	p, err := NewPipeline(&stubEmbedder{}, sink, nil)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	updated, err := p.Reembed(context.Background(), &stubScanner{batches: [][]convo.Message{fresh, stale}}, nil)
	if err != nil {
		t.Fatalf("Reembed failed: %v", err)
	}
	if updated != 3 {
		t.Errorf("updated = %d, want 3", updated)
	}
	if len(sink.batches) != 1 {
		t.Fatalf("upsert batches = %d, want 1", len(sink.batches))
	}
	for _, m := range sink.batches[0] {
		if m.EmbeddingVersion != "stub@v1" {
			t.Errorf("message %s version = %q, want stub@v1", m.ID, m.EmbeddingVersion)
		}
		if len(m.Embedding) == 0 {
			t.Errorf("message %s has no embedding", m.ID)
		}
	}
}

func TestReembed_NilScanner(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(&stubEmbedder{}, &stubSink{}, nil)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	if _, err := p.Reembed(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error for nil scanner")
	}
}
