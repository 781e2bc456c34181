package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/leadline-ai/leadline/internal/logging"
)

// gatherer runs the nearest-neighbour passes against the message store and
// merges them into a single deduplicated candidate pool. Metadata (stage,
// role, partition) is never filtered on here — it is a reranking signal only.
type gatherer struct {
	// store performs the vector similarity searches.
	store MessageStore
	// cfg is the engine's immutable tuning.
	cfg Config
}

// passResult carries one pass's outcome back to the merge step. Results are
// merged in a fixed pass order so the output is deterministic regardless of
// which goroutine finishes first.
type passResult struct {
	origin     PoolOrigin
	candidates []ScoredMessage
	err        error
}

// gather runs the thread-scoped pass (when q.ThreadID is set) and the global
// pass concurrently, each bounded by the pass timeout, and merges the pools.
// A failed pass contributes zero candidates plus a diagnostics entry; the
// call only fails with ErrUnavailable when every pass failed, so the caller
// can always distinguish "store broken" from "genuinely no matches".
func (g *gatherer) gather(ctx context.Context, vector []float32, version string, q Query, diag *Diagnostics) ([]Candidate, error) {
	passes := []struct {
		origin PoolOrigin
		opts   SearchOptions
	}{}
	if q.ThreadID != "" {
		passes = append(passes, struct {
			origin PoolOrigin
			opts   SearchOptions
		}{PoolThread, SearchOptions{ThreadID: q.ThreadID}})
	}
	passes = append(passes, struct {
		origin PoolOrigin
		opts   SearchOptions
	}{PoolGlobal, SearchOptions{}})

	results := make([]passResult, len(passes))
	var wg sync.WaitGroup
	for i, pass := range passes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			passCtx, cancel := context.WithTimeout(ctx, g.cfg.PassTimeout)
			defer cancel()
			msgs, err := g.store.SearchNearest(passCtx, vector, version, g.cfg.PoolSize, pass.opts)
			results[i] = passResult{origin: pass.origin, candidates: msgs, err: err}
		}()
	}
	wg.Wait()

	// Merge in declared pass order, keeping the higher raw similarity when
	// both pools return the same message.
	byID := make(map[string]Candidate)
	failed := 0
	for _, res := range results {
		if res.err != nil {
			failed++
			diag.Degraded = append(diag.Degraded, fmt.Sprintf("%s: %v", res.origin, res.err))
			continue
		}
		kept := 0
		for _, sm := range res.candidates {
			if sm.Message.EmbeddingVersion != version {
				// The store should already filter by version; count anything
				// that slips through rather than letting it into scoring.
				diag.VersionSkipped++
				continue
			}
			kept++
			existing, ok := byID[sm.Message.ID]
			if !ok || sm.Similarity > existing.Similarity {
				byID[sm.Message.ID] = Candidate{
					Message:    sm.Message,
					Similarity: sm.Similarity,
					Origin:     res.origin,
				}
			}
		}
		switch res.origin {
		case PoolThread:
			diag.ThreadPool = kept
		case PoolGlobal:
			diag.GlobalPool = kept
		}
	}

	if failed == len(passes) {
		diag.Fallback = true
		return nil, fmt.Errorf("%w: all %d gathering passes failed", ErrUnavailable, len(passes))
	}
	if failed > 0 {
		diag.Fallback = true
		logging.FromContext(ctx).Warn("retrieval: gathering pass degraded",
			slog.Int("failed", failed),
			slog.Int("passes", len(passes)),
		)
	}

	merged := make([]Candidate, 0, len(byID))
	for _, c := range byID {
		merged = append(merged, c)
	}
	// Map iteration order is random; restore a deterministic order before
	// handing the pool to the reranker.
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Similarity != merged[j].Similarity {
			return merged[i].Similarity > merged[j].Similarity
		}
		return merged[i].Message.ID < merged[j].Message.ID
	})

	diag.Merged = len(merged)
	return merged, nil
}
