// Package convo defines the conversation data model shared by ingestion,
// retrieval, and the agent: messages, speaker roles, and the two stage
// vocabularies the corpus mixes. Messages are created once at ingestion time
// and are read-only afterwards — no component mutates a stored Message.
package convo

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleAgent is a message sent by the human locator (or the bot on their behalf).
	RoleAgent Role = "agent"
	// RoleLead is a message sent by the prospective renter.
	RoleLead Role = "lead"
	// RoleSystem is an instruction from a human teammate responding to an
	// escalation. System messages are never used as dialogue exemplars.
	RoleSystem Role = "system"
)

// Partition identifies which data set a message was ingested into.
type Partition string

const (
	// PartitionDefault is the bulk conversation export.
	PartitionDefault Partition = "default"
	// PartitionCurated is the hand-reviewed exemplar set. Pair extraction
	// prefers curated messages via a soft scoring boost, never a hard filter.
	PartitionCurated Partition = "curated"
)

// Message is a single utterance in a lead conversation. The embedding is
// computed once at ingestion time; EmbeddingVersion tags which model/config
// produced it so retrieval never compares vectors across versions.
type Message struct {
	// ID is the unique identifier for this message.
	ID string

	// ThreadID groups messages into one continuous conversation.
	ThreadID string

	// TurnIndex is the position of this message within its thread. It is
	// unique and strictly increasing per thread; TurnIndex+1 defines the
	// adjacency used for dialogue pair extraction.
	TurnIndex int

	// Role is the author of the message.
	Role Role

	// Text is the raw utterance as received.
	Text string

	// CleanText is the normalised, PII-redacted form used for embedding and
	// prompt context. Empty when normalisation produced nothing.
	CleanText string

	// Stage is the conversation-phase label. May be in either the legacy or
	// the current vocabulary; compare via NormalizeStage, never directly.
	Stage string

	// Timestamp is when the message was created. Zero when the source export
	// carried no parseable date.
	Timestamp time.Time

	// ContextText is the rolling window of prior thread turns captured at
	// ingestion time. It gives short utterances ("yes", "ok") retrievable
	// signal when embedded.
	ContextText string

	// Embedding is the stored vector for CleanText (or ContextText for very
	// short messages). Nil until the embedding pipeline has run.
	Embedding []float32

	// EmbeddingVersion tags the embedding model/config that produced the
	// vector. Retrieval only scores vectors with a matching version.
	EmbeddingVersion string

	// Partition identifies the data set this message belongs to.
	Partition Partition
}

// DisplayText returns the text to show in prompts: the cleaned form when
// available, the raw text otherwise.
func (m *Message) DisplayText() string {
	if m.CleanText != "" {
		return m.CleanText
	}
	return m.Text
}
