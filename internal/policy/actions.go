package policy

import (
	"strings"

	"github.com/leadline-ai/leadline/internal/convo"
)

// Action names the agent may suggest. Escalation actions flag the thread for
// human review; whether a message is still sent depends on ShouldSend.
const (
	ActionEscalateFees        = "escalate_fees"         // fee questions (no-send)
	ActionEscalateLinks       = "escalate_links"        // links/screenshots (no-send)
	ActionEscalatePricing     = "escalate_pricing"      // specific property pricing (no-send)
	ActionEscalateComplaint   = "escalate_complaint"    // post-move complaints (no-send after close)
	ActionEscalateScheduling  = "escalate_scheduling"   // tour scheduling (send)
	ActionEscalateMoreOptions = "escalate_more_options" // sending property options (send)
	ActionEscalateApproved    = "escalate_approved"     // lead approved (send)
	ActionEscalateFollowup    = "escalate_followup"     // cold lead follow-up (send)
	ActionEscalateUncertainty = "escalate_uncertainty"  // lead hesitation (send)
	ActionEscalateGeneral     = "escalate_general"      // general escalation (send)

	ActionRequestApplication = "request_application" // lead ready to apply
)

// escalationActions is the set of actions that require human review.
var escalationActions = map[string]bool{
	ActionEscalateFees:        true,
	ActionEscalateLinks:       true,
	ActionEscalatePricing:     true,
	ActionEscalateComplaint:   true,
	ActionEscalateScheduling:  true,
	ActionEscalateMoreOptions: true,
	ActionEscalateApproved:    true,
	ActionEscalateFollowup:    true,
	ActionEscalateUncertainty: true,
	ActionEscalateGeneral:     true,
}

// noSendActions must never produce an outgoing message. Fees and pricing
// must be human-verified; links are a compliance requirement.
var noSendActions = map[string]bool{
	ActionEscalateLinks:   true,
	ActionEscalateFees:    true,
	ActionEscalatePricing: true,
}

// IsEscalationAction reports whether the action requires human review.
func IsEscalationAction(action string) bool {
	return escalationActions[strings.ToLower(strings.TrimSpace(action))]
}

// StageTransition returns the stage the conversation should move to when the
// agent suggests the given action, or "" when the stage is unchanged. Only
// application requests transition; escalations always stay put so the human
// reviewer sees the conversation where it was.
func StageTransition(action string) string {
	if strings.ToLower(strings.TrimSpace(action)) == ActionRequestApplication {
		return convo.StageApplied
	}
	return ""
}

// postMoveStages are the stages where a complaint means the lead already
// lives in the unit — those always need a human, never an automated reply.
var postMoveStages = map[string]bool{
	convo.StageApproved:  true,
	convo.StageClosed:    true,
	convo.StagePostClose: true,
}

// ShouldSend decides whether an outgoing message may be sent for the given
// action and stage. Suppressed messages are still generated and stored for
// the human reviewer; they just never reach the lead.
func ShouldSend(action, stage string) bool {
	a := strings.ToLower(strings.TrimSpace(action))
	if noSendActions[a] {
		return false
	}
	if a == ActionEscalateComplaint {
		return !postMoveStages[convo.NormalizeStage(stage)]
	}
	return true
}

// fallbackReplies are last-resort outgoing messages used only when the model
// fails to produce one for a send-allowed action.
var fallbackReplies = map[string]string{
	ActionEscalateScheduling:  "I'll check availability and follow up with times.",
	ActionEscalateMoreOptions: "I'll take another look and send a few fresh options.",
	ActionEscalateApproved:    "Congratulations! I'll follow up on next steps.",
	ActionEscalateFollowup:    "Just checking in—let me know if you want to move forward.",
	ActionEscalateUncertainty: "Totally understandable. I'll take another pass and send a few fresh options.",
	ActionEscalateGeneral:     "I'll look into that and follow up shortly.",
}

// FallbackReply returns a minimal safe outgoing message for the action, or
// "" when the action must not send at all.
func FallbackReply(action, stage string) string {
	a := strings.ToLower(strings.TrimSpace(action))
	if !ShouldSend(a, stage) {
		return ""
	}
	if reply, ok := fallbackReplies[a]; ok {
		return reply
	}
	return "I'll look into that and follow up shortly."
}
