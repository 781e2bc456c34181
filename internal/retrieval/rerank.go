package retrieval

import (
	"sort"

	"github.com/leadline-ai/leadline/internal/convo"
)

// rerank rescores candidates with additive metadata boosts, deduplicates,
// sorts, and truncates to topK. An empty candidate slice is a valid input and
// produces an empty output — callers treat an empty context as "proceed
// without retrieved examples", never as a failure.
func rerank(candidates []Candidate, q Query, cfg Config, topK int) []RankedResult {
	if len(candidates) == 0 {
		return nil
	}

	queryStage := convo.NormalizeStage(q.Stage)
	recency := recencyRanks(candidates)

	// Dedupe by message ID first; a message appears at most once in the
	// output no matter how many pools or boosts touched it.
	seen := make(map[string]bool, len(candidates))
	ranked := make([]RankedResult, 0, len(candidates))
	for i, c := range candidates {
		if seen[c.Message.ID] {
			continue
		}
		seen[c.Message.ID] = true

		score := c.Similarity
		if q.ThreadID != "" && c.Message.ThreadID == q.ThreadID {
			score += cfg.BoostThread
		}
		if queryStage != "" && convo.NormalizeStage(c.Message.Stage) == queryStage {
			score += cfg.BoostStage
		}
		if q.PreferRole != "" && c.Message.Role == q.PreferRole {
			score += cfg.BoostRole
		}
		score += cfg.BoostRecency * recency[i]

		ranked = append(ranked, RankedResult{Message: c.Message, Score: score})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		// More recent wins on score ties, then ID ascending so the order is
		// reproducible in tests.
		if !ranked[i].Message.Timestamp.Equal(ranked[j].Message.Timestamp) {
			return ranked[i].Message.Timestamp.After(ranked[j].Message.Timestamp)
		}
		return ranked[i].Message.ID < ranked[j].Message.ID
	})

	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked
}

// recencyRanks returns, per candidate index, that candidate's timestamp
// percentile in [0,1] among all candidates (1 = most recent). Percentile rank
// rather than raw elapsed time keeps the recency term bounded: a ten-year-old
// corpus and a ten-day-old corpus get the same spread.
func recencyRanks(candidates []Candidate) []float32 {
	n := len(candidates)
	ranks := make([]float32, n)
	if n == 1 {
		ranks[0] = 1
		return ranks
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ti := candidates[order[a]].Message.Timestamp
		tj := candidates[order[b]].Message.Timestamp
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return candidates[order[a]].Message.ID < candidates[order[b]].Message.ID
	})
	for pos, idx := range order {
		ranks[idx] = float32(pos) / float32(n-1)
	}
	return ranks
}
