package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/leadline-ai/leadline/internal/convo"
)

// fakeEmbedder returns a fixed vector for any input, or a canned error.
type fakeEmbedder struct {
	vector  []float32
	version string
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fakeEmbedder) Version() string { return f.version }

// fakeStore serves canned nearest-neighbour results keyed by the thread
// filter, and adjacency lookups from an in-memory message list.
type fakeStore struct {
	// global is returned for unrestricted searches.
	global []ScoredMessage
	// byThread is returned for thread-restricted searches.
	byThread map[string][]ScoredMessage
	// messages backs FetchByTurn.
	messages []convo.Message

	// globalErr and threadErr force the corresponding pass to fail.
	globalErr error
	threadErr error
	// fetchErr forces adjacency lookups to fail.
	fetchErr error
}

func (f *fakeStore) SearchNearest(_ context.Context, _ []float32, version string, limit int, opts SearchOptions) ([]ScoredMessage, error) {
	var results []ScoredMessage
	if opts.ThreadID != "" {
		if f.threadErr != nil {
			return nil, f.threadErr
		}
		results = f.byThread[opts.ThreadID]
	} else {
		if f.globalErr != nil {
			return nil, f.globalErr
		}
		results = f.global
	}

	out := make([]ScoredMessage, 0, len(results))
	for _, sm := range results {
		if sm.Message.EmbeddingVersion != version {
			continue
		}
		out = append(out, sm)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) FetchByTurn(_ context.Context, threadID string, turnIndex int) (*convo.Message, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	for i := range f.messages {
		if f.messages[i].ThreadID == threadID && f.messages[i].TurnIndex == turnIndex {
			return &f.messages[i], nil
		}
	}
	return nil, nil
}

// msg builds a corpus message with the fields the engine reads.
func msg(id, threadID string, turn int, role convo.Role, text, stage, version string, ts time.Time) convo.Message {
	return convo.Message{
		ID:               id,
		ThreadID:         threadID,
		TurnIndex:        turn,
		Role:             role,
		Text:             text,
		Stage:            stage,
		Timestamp:        ts,
		EmbeddingVersion: version,
	}
}

// scored wraps a message with a raw similarity.
func scored(m convo.Message, sim float32) ScoredMessage {
	return ScoredMessage{Message: m, Similarity: sim}
}

// cand wraps a message as a gathered candidate.
func cand(m convo.Message, sim float32, origin PoolOrigin) Candidate {
	return Candidate{Message: m, Similarity: sim, Origin: origin}
}

// ids flattens ranked results for easy comparison in assertions.
func ids(ranked []RankedResult) []string {
	out := make([]string, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.Message.ID)
	}
	return out
}

// sameIDs reports whether ranked results carry exactly the given IDs in order.
func sameIDs(ranked []RankedResult, want ...string) error {
	got := ids(ranked)
	if len(got) != len(want) {
		return fmt.Errorf("got %d results %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("position %d: got %q, want %q (full order %v)", i, got[i], want[i], got)
		}
	}
	return nil
}
