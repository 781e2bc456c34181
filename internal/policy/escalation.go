// Package policy implements the rule-based guardrails around the lead agent:
// safety escalations that must never be missed, message sending rules, action
// routing, and follow-up promise detection. The LLM handles most action
// detection through structured output; the rules here are the backstop for
// the cases where a model miss would be a compliance problem.
package policy

import (
	"strings"

	"github.com/leadline-ai/leadline/internal/convo"
)

// Turn is one prior message of the live conversation, as seen by the rules.
type Turn struct {
	// Role is the speaker of the turn.
	Role convo.Role
	// Text is the turn's content.
	Text string
}

// Escalation is a rule-triggered request for human review.
type Escalation struct {
	// Action is the escalation action name (e.g. "escalate_links").
	Action string
	// Reason is a short machine-readable explanation.
	Reason string
}

// linkFragments identify URLs, social media, and screenshot references.
// Replying to any of these without human review is a compliance risk.
var linkFragments = []string{
	"http://", "https://", "www.",
	"instagram", "facebook", "tiktok", "twitter", "x.com", "youtube", "youtu.be",
	"screenshot", "screen shot", "see pic", "see image", "check pic", "attached",
}

// ContainsLinkOrScreenshot reports whether the text references a link,
// social media, or an attached image.
func ContainsLinkOrScreenshot(text string) bool {
	t := strings.ToLower(text)
	for _, frag := range linkFragments {
		if strings.Contains(t, frag) {
			return true
		}
	}
	return false
}

// AgentStreak counts the trailing consecutive agent messages with no lead
// response. A long streak means the lead has gone cold.
func AgentStreak(turns []Turn) int {
	count := 0
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == convo.RoleAgent && strings.TrimSpace(turns[i].Text) != "" {
			count++
			continue
		}
		break
	}
	return count
}

// simpleAcks are single-word replies that carry no actionable content.
var simpleAcks = map[string]bool{
	"ok": true, "k": true, "okay": true, "thanks": true, "thx": true,
	"cool": true, "sure": true, "yes": true, "no": true, "yep": true, "nope": true,
}

// ackPhrases are short multi-word acknowledgments.
var ackPhrases = []string{"got it", "sounds good", "thank you", "no worries", "all good"}

// IsSimpleAcknowledgment reports whether the text is a bare acknowledgment
// ("ok", "thanks!", "sounds good"). Acknowledgments never trigger
// escalations on their own. Empty text is NOT an acknowledgment — a missing
// reply may mean a cold lead, which is handled separately.
func IsSimpleAcknowledgment(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return false
	}
	if len(t) < 2 {
		return t == "k"
	}
	if simpleAcks[t] || simpleAcks[strings.TrimSuffix(t, "!")] {
		return true
	}
	for _, phrase := range ackPhrases {
		if strings.HasPrefix(t, phrase) && len(t) <= len(phrase)+5 {
			return true
		}
	}
	return false
}

// coldStreakThreshold is the number of unanswered agent messages after which
// an empty incoming turn is treated as a cold lead.
const coldStreakThreshold = 3

// DetectEscalation applies the minimal rule-based checks that must never be
// missed, returning nil when no rule fires. The LLM handles everything else
// (fees, pricing, scheduling, approvals) through its structured output.
func DetectEscalation(userText string, turns []Turn) *Escalation {
	text := strings.TrimSpace(userText)

	if IsSimpleAcknowledgment(text) {
		return nil
	}

	if ContainsLinkOrScreenshot(text) {
		return &Escalation{Action: ActionEscalateLinks, Reason: "contains_link_or_screenshot"}
	}

	// Cold follow-up: nothing incoming and the agent has been talking to
	// themselves for a while.
	if text == "" && AgentStreak(turns) >= coldStreakThreshold {
		return &Escalation{Action: ActionEscalateFollowup, Reason: "cold_lead_followup"}
	}

	return nil
}
