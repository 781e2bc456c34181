package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/leadline-ai/leadline/internal/convo"
	"github.com/leadline-ai/leadline/internal/logging"
)

// pairExtractor reconstructs adjacent lead→agent exchanges from the corpus.
// These are distinct from the ranked context: the context is a flat set of
// relevant snippets, while a pair is a verified next-turn transition suitable
// as a few-shot exemplar.
type pairExtractor struct {
	// store performs the global semantic pass and the adjacency lookups.
	store MessageStore
	// cfg is the engine's immutable tuning.
	cfg Config
}

// scoredPair holds a pair with the score of its originating lead message so
// the final list can be ordered by it.
type scoredPair struct {
	pair  DialoguePair
	score float32
}

// extract runs a single global pass seeded by the query vector, then walks the
// candidates by descending score looking for lead messages whose next turn in
// the same thread is an agent reply. Curated-partition candidates get a small
// additive boost before selection — a soft preference, never a filter.
// Failure of the pass is degradation, not an error: the engine proceeds with
// ranked context only.
func (p *pairExtractor) extract(ctx context.Context, vector []float32, version string, diag *Diagnostics) []DialoguePair {
	passCtx, cancel := context.WithTimeout(ctx, p.cfg.PassTimeout)
	defer cancel()

	candidates, err := p.store.SearchNearest(passCtx, vector, version, p.cfg.PoolSize, SearchOptions{})
	if err != nil {
		diag.Degraded = append(diag.Degraded, fmt.Sprintf("pairs: %v", err))
		diag.Fallback = true
		logging.FromContext(ctx).Warn("retrieval: pair extraction pass failed", slog.Any("error", err))
		return nil
	}

	type seed struct {
		msg   convo.Message
		score float32
	}
	seeds := make([]seed, 0, len(candidates))
	for _, sm := range candidates {
		if sm.Message.Role != convo.RoleLead {
			continue
		}
		if sm.Message.EmbeddingVersion != version {
			diag.VersionSkipped++
			continue
		}
		score := sm.Similarity
		if sm.Message.Partition == convo.PartitionCurated {
			score += p.cfg.BoostCurated
		}
		seeds = append(seeds, seed{msg: sm.Message, score: score})
	}
	sort.Slice(seeds, func(i, j int) bool {
		if seeds[i].score != seeds[j].score {
			return seeds[i].score > seeds[j].score
		}
		return seeds[i].msg.ID < seeds[j].msg.ID
	})

	var pairs []scoredPair
	seenThreadTurn := make(map[string]bool)
	for _, s := range seeds {
		if len(pairs) >= p.cfg.TopKPairs {
			break
		}
		// Skip duplicate seeds pointing at the same exchange.
		key := fmt.Sprintf("%s#%d", s.msg.ThreadID, s.msg.TurnIndex)
		if seenThreadTurn[key] {
			continue
		}
		seenThreadTurn[key] = true

		next, err := p.store.FetchByTurn(ctx, s.msg.ThreadID, s.msg.TurnIndex+1)
		if err != nil {
			diag.Degraded = append(diag.Degraded, fmt.Sprintf("pairs lookup: %v", err))
			diag.Fallback = true
			continue
		}
		if next == nil || next.Role != convo.RoleAgent {
			continue
		}

		pairs = append(pairs, scoredPair{
			pair: DialoguePair{
				LeadText:  s.msg.DisplayText(),
				AgentText: next.DisplayText(),
				ThreadID:  s.msg.ThreadID,
			},
			score: s.score,
		})
	}

	out := make([]DialoguePair, 0, len(pairs))
	for _, sp := range pairs {
		out = append(out, sp.pair)
	}
	return out
}
