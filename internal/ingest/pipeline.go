package ingest

import (
	"context"
	"fmt"
	"io"

	"github.com/leadline-ai/leadline/internal/convo"
	"github.com/leadline-ai/leadline/internal/retrieval"
)

// Sink is where embedded messages land. *retrieval.QdrantStore satisfies it.
type Sink interface {
	Upsert(ctx context.Context, msgs []convo.Message) error
}

// Config holds the configuration for the embedding pipeline.
type Config struct {
	// BatchSize is the number of messages embedded and upserted per call.
	// Defaults to 64 if zero.
	BatchSize int
}

// Pipeline orchestrates the parse → embed → upsert flow for a conversation
// export. Each message's context window is what gets embedded, so short
// turns inherit signal from the turns around them.
type Pipeline struct {
	// embedder converts context windows into dense vector embeddings.
	embedder retrieval.Embedder

	// sink persists the embedded messages.
	sink Sink

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder retrieval.Embedder, sink Sink, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingest: embedder must not be nil")
	}
	if sink == nil {
		return nil, fmt.Errorf("ingest: sink must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	return &Pipeline{embedder: embedder, sink: sink, cfg: cfg}, nil
}

// Run embeds and stores all messages in batches, stamping each with the
// embedder's version tag. Progress is reported via the optional callback.
// Processing is sequential and returns the first error encountered so a
// broken embedder fails fast instead of half-writing the corpus.
func (p *Pipeline) Run(ctx context.Context, msgs []convo.Message, progress func(msg string)) error {
	if progress == nil {
		progress = func(string) {}
	}
	version := p.embedder.Version()

	for start := 0; start < len(msgs); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(msgs) {
			end = len(msgs)
		}
		batch := msgs[start:end]

		texts := make([]string, len(batch))
		for i, m := range batch {
			texts[i] = embedText(m)
		}

		embeddings, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("ingest: embedding batch %d-%d failed: %w", start, end, err)
		}
		if len(embeddings) != len(batch) {
			return fmt.Errorf("ingest: embedder returned %d vectors for %d messages", len(embeddings), len(batch))
		}

		for i := range batch {
			batch[i].Embedding = embeddings[i]
			batch[i].EmbeddingVersion = version
		}

		if err := p.sink.Upsert(ctx, batch); err != nil {
			return fmt.Errorf("ingest: upsert batch %d-%d failed: %w", start, end, err)
		}

		progress(fmt.Sprintf("embedded %d/%d messages (version %s)", end, len(msgs), version))
	}

	return nil
}

// IngestCSV parses a conversation export and runs the embedding pipeline on
// the result. The returned ParseResult describes what was ingested.
func (p *Pipeline) IngestCSV(ctx context.Context, r io.Reader, partition convo.Partition, progress func(msg string)) (*ParseResult, error) {
	res, err := ParseCSV(r, partition)
	if err != nil {
		return nil, err
	}
	if err := p.Run(ctx, res.Messages, progress); err != nil {
		return nil, err
	}
	return res, nil
}

// Scanner walks a stored corpus in batches. *retrieval.QdrantStore satisfies it.
type Scanner interface {
	Scan(ctx context.Context, batchSize int, fn func(msgs []convo.Message) error) error
}

// Reembed walks the stored corpus and re-embeds every message whose stamped
// version differs from the embedder's current one, writing the refreshed
// vectors back through the sink. Returns the number of messages re-embedded.
// Searches filter on embedding version, so stale vectors are invisible until
// this pass rewrites them.
func (p *Pipeline) Reembed(ctx context.Context, src Scanner, progress func(msg string)) (int, error) {
	if src == nil {
		return 0, fmt.Errorf("ingest: scanner must not be nil")
	}
	if progress == nil {
		progress = func(string) {}
	}
	version := p.embedder.Version()

	var seen, updated int
	err := src.Scan(ctx, p.cfg.BatchSize, func(msgs []convo.Message) error {
		seen += len(msgs)

		stale := msgs[:0]
		for _, m := range msgs {
			if m.EmbeddingVersion != version {
				stale = append(stale, m)
			}
		}
		if len(stale) == 0 {
			return nil
		}

		if err := p.Run(ctx, stale, nil); err != nil {
			return err
		}
		updated += len(stale)
		progress(fmt.Sprintf("re-embedded %d messages (%d scanned, version %s)", updated, seen, version))
		return nil
	})
	if err != nil {
		return updated, fmt.Errorf("ingest: reembed failed: %w", err)
	}
	return updated, nil
}

// shortMessageThreshold is the clean-text length below which the context
// window is embedded instead — "yes" alone carries no retrievable signal.
const shortMessageThreshold = 20

// embedText picks what to embed for a message: the clean text for
// substantive turns, the context window for very short ones.
func embedText(m convo.Message) string {
	if len(m.CleanText) >= shortMessageThreshold || m.ContextText == "" {
		if m.CleanText != "" {
			return m.CleanText
		}
		return m.Text
	}
	return m.ContextText
}
