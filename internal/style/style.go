// Package style derives tone-only guidance from the agent's past messages.
// It retrieves a handful of agent exemplars relevant to the current turn and
// distills phrasing characteristics (brevity, acknowledgment habits,
// punctuation, call-to-action patterns) into a compact note block for the
// prompt. Exemplar content is never pasted into the notes — only its shape —
// so corpus text cannot leak into outgoing messages through this path.
package style

import (
	"context"
	"regexp"
	"strings"

	"github.com/leadline-ai/leadline/internal/convo"
	"github.com/leadline-ai/leadline/internal/logging"
	"github.com/leadline-ai/leadline/internal/retrieval"
)

// exemplarCount is how many agent messages the analysis looks at.
const exemplarCount = 5

// briefThreshold is the average message length below which the agent's
// voice is considered short-form.
const briefThreshold = 180

// Retriever is the slice of the retrieval engine the builder needs.
type Retriever interface {
	Retrieve(ctx context.Context, q retrieval.Query) (*retrieval.Result, error)
}

// Builder produces persona style notes from retrieved agent exemplars.
type Builder struct {
	// engine finds agent messages similar to the current turn.
	engine Retriever
	// persona is the display name used in the note header.
	persona string
}

// NewBuilder constructs a Builder for the given persona.
func NewBuilder(engine Retriever, persona string) *Builder {
	if persona == "" {
		persona = "AGENT"
	}
	return &Builder{engine: engine, persona: persona}
}

// Build returns tone-only guidance derived from agent exemplars relevant to
// the query, or "" when nothing useful was found. Failure here never fails
// the turn — the agent simply proceeds without style notes.
func (b *Builder) Build(ctx context.Context, query, stage string) string {
	res, err := b.engine.Retrieve(ctx, retrieval.Query{
		Text:       query,
		Stage:      stage,
		PreferRole: convo.RoleAgent,
	})
	if err != nil {
		logging.FromContext(ctx).Warn("style: exemplar retrieval failed, proceeding without notes")
		return ""
	}

	var exemplars []string
	for _, r := range res.Ranked {
		if r.Message.Role != convo.RoleAgent {
			continue
		}
		if text := strings.TrimSpace(r.Message.DisplayText()); text != "" {
			exemplars = append(exemplars, text)
		}
		if len(exemplars) == exemplarCount {
			break
		}
	}

	notes := analyze(exemplars)
	if len(notes) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(strings.ToUpper(b.persona))
	sb.WriteString(" STYLE NOTES (tone only):")
	for _, n := range notes {
		sb.WriteString("\n- ")
		sb.WriteString(n)
	}
	return sb.String()
}

var ackPattern = regexp.MustCompile(`(?i)\b(sounds good|got it|you're welcome)\b`)

// ctaSignals are fragments that indicate the agent ends with a next step.
var ctaSignals = []string{
	"when would you", "let me", "i'll", "i will", "can you", "would you like",
}

// analyze derives tone notes from sample agent messages. The notes describe
// style without copying content.
func analyze(messages []string) []string {
	if len(messages) == 0 {
		return nil
	}

	var notes []string

	total := 0
	for _, m := range messages {
		total += len(m)
	}
	avg := total / len(messages)
	if avg < briefThreshold {
		notes = append(notes, "Keep it brief (1–2 short sentences).")
	} else {
		notes = append(notes, "Prefer concise phrasing; avoid long paragraphs.")
	}

	joined := strings.Join(messages, "\n")
	lower := strings.ToLower(joined)

	if ackPattern.MatchString(lower) {
		notes = append(notes, "Avoid starting messages with acknowledgments; lead with the next step.")
	}

	if strings.Count(joined, "!") == 0 {
		notes = append(notes, "Avoid exclamation marks unless mirroring the lead's excitement.")
	} else {
		notes = append(notes, "Use exclamation marks sparingly.")
	}

	hasCTA := false
	for _, sig := range ctaSignals {
		if strings.Contains(lower, sig) {
			hasCTA = true
			break
		}
	}
	if hasCTA {
		notes = append(notes, "End with one clear next step (CTA), not multiple.")
	} else {
		notes = append(notes, "Include one concrete next step (CTA).")
	}

	notes = append(notes, "Avoid robotic fillers (e.g., 'let me know if you need anything').")

	return notes
}
