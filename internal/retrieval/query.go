package retrieval

import (
	"strings"

	"github.com/leadline-ai/leadline/internal/convo"
)

// enrichQuery builds the text that actually gets embedded for a query. The
// raw utterance is concatenated with the current stage tag and a bounded
// window of recent history so that short turns ("yes", "okay") still carry
// retrievable signal. The layout mirrors the context_text windows written at
// ingestion time, which keeps query and stored vectors in the same
// distribution.
func enrichQuery(q Query) string {
	var parts []string

	if stage := convo.NormalizeStage(q.Stage); stage != "" {
		parts = append(parts, "stage:"+stage)
	}

	history := q.ChatHistory
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	for _, turn := range history {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		if len(text) > historyTurnMaxLen {
			text = text[:historyTurnMaxLen]
		}
		parts = append(parts, string(turn.Role)+":"+text)
	}

	parts = append(parts, string(convo.RoleLead)+":"+strings.TrimSpace(q.Text))
	return strings.Join(parts, " | ")
}
