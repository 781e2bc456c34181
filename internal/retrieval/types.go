package retrieval

import (
	"errors"

	"github.com/leadline-ai/leadline/internal/convo"
)

// ErrUnavailable is returned when retrieval could not run at all: the query
// embedding failed or every gathering pass failed. It is deliberately distinct
// from an empty result — empty-due-to-error and empty-due-to-no-matches
// require different caller behaviour (alerting vs. silently proceeding), so
// the engine never swallows this condition into an empty Result.
var ErrUnavailable = errors.New("retrieval: unavailable")

// PoolOrigin identifies which gathering pass produced a candidate.
type PoolOrigin string

const (
	// PoolThread is the pass restricted to the live conversation's thread.
	PoolThread PoolOrigin = "thread"
	// PoolGlobal is the unrestricted corpus-wide pass.
	PoolGlobal PoolOrigin = "global"
)

// Candidate is a message retrieved by nearest-neighbour search before
// reranking. Candidates are ephemeral — created fresh per retrieval call and
// discarded when the call returns.
type Candidate struct {
	// Message is the retrieved message.
	Message convo.Message
	// Similarity is the raw cosine similarity assigned by the store.
	Similarity float32
	// Origin is the gathering pass that produced this candidate.
	Origin PoolOrigin
}

// RankedResult is a candidate after boost scoring.
type RankedResult struct {
	// Message is the ranked message.
	Message convo.Message
	// Score is the raw similarity plus all applicable metadata boosts.
	Score float32
}

// DialoguePair is an adjacent lead→agent exchange used as a few-shot style
// exemplar: the agent message is the very next turn of the same thread.
type DialoguePair struct {
	// LeadText is the lead's utterance.
	LeadText string
	// AgentText is the agent's immediate reply.
	AgentText string
	// ThreadID is the conversation both messages belong to.
	ThreadID string
}

// Query carries one conversation turn into the engine.
type Query struct {
	// Text is the lead's current utterance. Must be non-empty.
	Text string
	// ThreadID is the live conversation's thread, when known. Enables the
	// thread-scoped gathering pass and the thread-affinity boost.
	ThreadID string
	// Stage is the current conversation stage, in either vocabulary.
	Stage string
	// PreferRole biases ranking toward messages by this speaker. Typically
	// convo.RoleAgent so the context shows how the agent phrases replies.
	PreferRole convo.Role
	// ChatHistory is the recent live conversation, oldest first. A bounded
	// window of it is folded into the enriched query text.
	ChatHistory []HistoryTurn
}

// HistoryTurn is one prior turn of the live conversation.
type HistoryTurn struct {
	// Role is the speaker of the turn.
	Role convo.Role
	// Text is the turn's content.
	Text string
}

// Diagnostics records what happened inside one retrieval call. It is the
// observable record of partial degradation: a pass that timed out contributes
// zero candidates and an entry in Degraded rather than failing the call.
type Diagnostics struct {
	// ThreadPool is the candidate count from the thread-scoped pass.
	ThreadPool int
	// GlobalPool is the candidate count from the global pass.
	GlobalPool int
	// Merged is the candidate count after cross-pool deduplication.
	Merged int
	// VersionSkipped counts candidates excluded because their embedding
	// version did not match the query's.
	VersionSkipped int
	// Degraded lists the passes that failed ("thread", "global", "pairs"),
	// each with its error text.
	Degraded []string
	// Fallback is true when any degraded path was taken.
	Fallback bool
}

// Result is what one Retrieve call returns.
type Result struct {
	// Ranked is the boost-scored context, best first, at most TopK entries,
	// with no duplicate message IDs.
	Ranked []RankedResult
	// Pairs is the ordered list of dialogue exemplars, at most TopKPairs.
	Pairs []DialoguePair
	// Diagnostics records pool sizes and degradation for observability.
	Diagnostics Diagnostics
}
