package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leadline-ai/leadline/internal/convo"
)

// contextWindow is the number of prior same-thread turns folded into each
// message's context text. Retrieval embeds the same layout at query time.
const contextWindow = 8

// emptyRowBreak is the number of consecutive blank rows that ends the
// current auto-assigned thread. Exports separate conversations with blank
// rows rather than an explicit thread column.
const emptyRowBreak = 2

// ParseResult is the outcome of parsing one CSV export.
type ParseResult struct {
	// Messages are the parsed corpus messages, without embeddings.
	Messages []convo.Message
	// PII maps message ID to the hashes of redacted PII, for audit.
	PII map[string]PIIHashes
	// Threads is the number of distinct threads seen.
	Threads int
	// Skipped is the number of non-blank rows dropped (no usable text).
	Skipped int
}

// roleFor maps the export's role spellings onto the conversation model.
// Unknown roles default to lead — misclassifying an agent line as a lead
// line only weakens a boost, while the reverse could leak a lead utterance
// into dialogue exemplars as if the agent wrote it.
func roleFor(raw string) convo.Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "agent", "assistant":
		return convo.RoleAgent
	case "lead", "user":
		return convo.RoleLead
	case "system":
		return convo.RoleSystem
	default:
		return convo.RoleLead
	}
}

// ParseCSV reads a conversation export and produces corpus messages with
// threads, turn indexes, stages, and rolling context windows assigned.
// The expected columns are Role, Message, and Date of message (thread_id and
// stage are optional); header matching is case-insensitive.
func ParseCSV(r io.Reader, partition convo.Partition) (*ParseResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("ingest: read CSV header: %w", err)
	}
	cols := columnIndex(header)
	if _, ok := cols["message"]; !ok {
		return nil, fmt.Errorf("ingest: CSV has no message column (header: %v)", header)
	}

	res := &ParseResult{PII: make(map[string]PIIHashes)}

	var (
		currentThread  string
		turnIndex      int
		emptyStreak    int
		autoThreads    int
		contextBuffers = map[string][]string{}
		seenThreads    = map[string]bool{}
	)

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ingest: read CSV row: %w", err)
		}

		get := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		// Blank separator rows end the current auto-assigned thread.
		if get("role") == "" && get("message") == "" && get("date of message") == "" {
			emptyStreak++
			if emptyStreak >= emptyRowBreak {
				currentThread = ""
				turnIndex = 0
			}
			continue
		}
		emptyStreak = 0

		raw := get("message")
		clean, pii := RedactPII(NormalizeText(raw))
		if clean == "" {
			res.Skipped++
			continue
		}

		role := roleFor(get("role"))

		threadID := get("thread_id")
		if threadID == "" {
			threadID = get("conversation_id")
		}
		switch {
		case threadID == "" && currentThread == "":
			autoThreads++
			currentThread = fmt.Sprintf("csv-%05d", autoThreads)
			threadID = currentThread
		case threadID == "":
			threadID = currentThread
		case threadID != currentThread:
			currentThread = threadID
			turnIndex = 0
		}

		stage := convo.NormalizeStage(get("stage"))
		if stage == "" {
			stage = convo.InferStage(clean, "")
		}

		// Build the rolling context window before appending this turn.
		labeled := string(role) + ":" + clean
		prior := contextBuffers[threadID]
		if len(prior) > contextWindow {
			prior = prior[len(prior)-contextWindow:]
		}
		contextText := strings.Join(append(append([]string{}, prior...), labeled), " | ")

		msg := convo.Message{
			ID:          uuid.NewString(),
			ThreadID:    threadID,
			TurnIndex:   turnIndex,
			Role:        role,
			Text:        raw,
			CleanText:   clean,
			Stage:       stage,
			Timestamp:   timestampFor(get),
			ContextText: contextText,
			Partition:   partition,
		}
		res.Messages = append(res.Messages, msg)
		if len(pii) > 0 {
			res.PII[msg.ID] = pii
		}

		turnIndex++
		seenThreads[threadID] = true
		contextBuffers[threadID] = append(contextBuffers[threadID], labeled)
	}

	res.Threads = len(seenThreads)
	return res, nil
}

// timestampFor reads the export's timestamp column under either name.
func timestampFor(get func(string) string) time.Time {
	if v := get("date of message"); v != "" {
		return ParseTimestamp(v)
	}
	return ParseTimestamp(get("timestamp"))
}

// columnIndex maps lowercased header names to their positions. A UTF-8 BOM
// on the first header cell is stripped.
func columnIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimPrefix(name, "\uFEFF")
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return cols
}
