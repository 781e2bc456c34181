// Package retrieval implements the context retrieval and reranking engine.
// Given a live conversation turn it finds the most relevant prior messages
// from the embedded corpus, combines semantic similarity with metadata boosts
// (thread affinity, stage, speaker role, recency), and produces a compact
// ranked context plus a small set of lead→agent dialogue pairs for few-shot
// guidance. Concrete backends (Qdrant, embedding providers) satisfy the
// interfaces here so the agent layer never depends on a specific store.
package retrieval

import (
	"context"

	"github.com/leadline-ai/leadline/internal/convo"
)

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Version returns the tag identifying the embedding model/config.
	// Stored vectors are only comparable to query vectors of the same version.
	Version() string
}

// ScoredMessage is a message returned from nearest-neighbour search together
// with its raw cosine similarity.
type ScoredMessage struct {
	// Message is the stored message.
	Message convo.Message
	// Similarity is the raw cosine similarity against the query vector.
	Similarity float32
}

// SearchOptions narrows a nearest-neighbour search. Zero values mean
// unrestricted. Note that ThreadID is the only hard filter the engine ever
// applies — stage, role, and partition are reranking signals, not filters,
// because hard filtering on sparse metadata previously produced empty result
// sets.
type SearchOptions struct {
	// ThreadID restricts the search to one conversation when non-empty.
	ThreadID string
}

// MessageStore is the searchable document store the engine reads from.
// Implementations must be safe to call from multiple goroutines and must
// honour context cancellation — every method may block on the network.
type MessageStore interface {
	// SearchNearest returns up to limit messages closest to vector, most
	// similar first. Only messages whose stored embedding version matches
	// version are returned; scores are comparable within a single call.
	SearchNearest(ctx context.Context, vector []float32, version string, limit int, opts SearchOptions) ([]ScoredMessage, error)

	// FetchByTurn returns the message at the given turn index within a
	// thread, or nil (no error) when no such message exists.
	FetchByTurn(ctx context.Context, threadID string, turnIndex int) (*convo.Message, error)
}
