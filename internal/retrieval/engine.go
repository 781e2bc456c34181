package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/leadline-ai/leadline/internal/logging"
)

// Engine is the retrieval façade — the only entry point external callers use.
// It is stateless between calls: everything a call needs travels in the
// Query, so one Engine is safe for concurrent use across turns.
type Engine struct {
	// embedder converts the enriched query text into a vector.
	embedder Embedder

	// store is the searchable message corpus.
	store MessageStore

	// cfg is the immutable tuning snapshot for this engine.
	cfg Config

	// gatherer runs the candidate-gathering passes.
	gatherer *gatherer

	// pairs runs the dialogue-pair extraction pass.
	pairs *pairExtractor
}

// New constructs an Engine, validating the config up front so a bad boost
// weight or pool size fails at startup rather than during a live turn.
func New(embedder Embedder, store MessageStore, cfg Config) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("retrieval: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("retrieval: store must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		gatherer: &gatherer{store: store, cfg: cfg},
		pairs:    &pairExtractor{store: store, cfg: cfg},
	}, nil
}

// Retrieve runs one full retrieval for a conversation turn: embed the
// enriched query once, gather candidate pools and extract dialogue pairs
// concurrently, rerank, and assemble the result. A failed pair pass or a
// failed single gathering pass degrades the result (recorded in
// Diagnostics); the call returns ErrUnavailable only when the query embedding
// fails or every gathering pass fails.
func (e *Engine) Retrieve(ctx context.Context, q Query) (*Result, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("retrieval: query text must not be empty")
	}

	version := e.embedder.Version()
	enriched := enrichQuery(q)

	embedCtx, cancel := context.WithTimeout(ctx, e.cfg.PassTimeout)
	vectors, err := e.embedder.Embed(embedCtx, []string{enriched})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query failed: %v", ErrUnavailable, err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: embedder returned an empty vector", ErrUnavailable)
	}
	vector := vectors[0]

	// The gathering passes and the pair pass are independent reads; run them
	// concurrently to bound turn latency. Each tracks degradation in its own
	// Diagnostics so the merge below is free of shared mutable state.
	var (
		gatherDiag Diagnostics
		pairDiag   Diagnostics
		candidates []Candidate
		pairs      []DialoguePair
		gatherErr  error
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		candidates, gatherErr = e.gatherer.gather(egCtx, vector, version, q, &gatherDiag)
		return nil
	})
	eg.Go(func() error {
		pairs = e.pairs.extract(egCtx, vector, version, &pairDiag)
		return nil
	})
	_ = eg.Wait() // goroutines report through their own variables

	diag := mergeDiagnostics(gatherDiag, pairDiag)
	if gatherErr != nil {
		return nil, gatherErr
	}

	ranked := rerank(candidates, q, e.cfg, e.cfg.TopK)

	log := logging.FromContext(ctx)
	log.Info("retrieval: completed",
		slog.Int("thread_pool", diag.ThreadPool),
		slog.Int("global_pool", diag.GlobalPool),
		slog.Int("merged", diag.Merged),
		slog.Int("ranked", len(ranked)),
		slog.Int("pairs", len(pairs)),
		slog.Int("version_skipped", diag.VersionSkipped),
		slog.Bool("fallback", diag.Fallback),
	)
	logTopRanked(log, ranked)

	return &Result{Ranked: ranked, Pairs: pairs, Diagnostics: diag}, nil
}

// mergeDiagnostics folds the pair pass's record into the gatherer's.
func mergeDiagnostics(gather, pairs Diagnostics) Diagnostics {
	gather.VersionSkipped += pairs.VersionSkipped
	gather.Degraded = append(gather.Degraded, pairs.Degraded...)
	gather.Fallback = gather.Fallback || pairs.Fallback
	return gather
}

// logTopRanked emits the top scored candidates at debug level so relevance
// regressions can be diagnosed from logs alone.
func logTopRanked(log *slog.Logger, ranked []RankedResult) {
	top := ranked
	if len(top) > 5 {
		top = top[:5]
	}
	for i, r := range top {
		log.Debug("retrieval: ranked candidate",
			slog.Int("rank", i+1),
			slog.String("id", r.Message.ID),
			slog.String("thread_id", r.Message.ThreadID),
			slog.String("role", string(r.Message.Role)),
			slog.String("stage", r.Message.Stage),
			slog.Float64("score", float64(r.Score)),
		)
	}
}
