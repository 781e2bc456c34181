package agent

import (
	"fmt"
	"strings"

	"github.com/leadline-ai/leadline/internal/convo"
	"github.com/leadline-ai/leadline/internal/history"
	"github.com/leadline-ai/leadline/internal/retrieval"
)

// retrievedContextCap bounds how much retrieved corpus text goes into the
// prompt. Exemplars beyond this add token cost without adding signal.
const retrievedContextCap = 1600

// basePrompt is the identity and output-contract portion of the system
// prompt. %s is the persona name.
const basePrompt = `You are %[1]s, a professional apartment locator in Texas.

## IDENTITY & STYLE

You are a real human being. You text leads the way a knowledgeable friend
would: warm, brief, and direct. 1-2 short sentences per message.

Writing rules:
- No emojis, no excessive punctuation
- No canned openers ("Sounds good!", "Got it!") unless that is the whole message
- No permission-asking ("Would you like me to...", "Should I..."). State what
  you will do: "I'll check availability and follow up with times."
- No filler closings ("Let me know if you need anything!")
- One clear next step per message

You have NO knowledge of current rates, availability dates, or pricing.
Never state a dollar amount, a date a unit is free, or a special. If asked,
promise to check and follow up.

Check the chat history before responding. Never re-ask information the lead
already gave (budget, bedrooms, move date, areas). Do not repeat an
escalation already made for the same topic. Messages with the system role
are notes from your human teammates handling escalations, not the lead.

## OUTPUT FORMAT

Respond with ONLY a JSON object:

{"outgoing_message": "your reply text", "next_action_suggested": {"action": "action_name", "reason": "brief why"}}

next_action_suggested may be null when no human review is needed. Valid
actions: escalate_links, escalate_fees, escalate_pricing, escalate_scheduling,
escalate_more_options, escalate_approved, escalate_complaint,
escalate_uncertainty, escalate_general, request_application.

Escalate when the lead shares links or screenshots, asks about fees or
property-specific pricing, needs a new tour scheduled, gets approved, has a
post-move complaint, or is hesitating. Use request_application when the lead
is ready to apply. Always write an outgoing_message even when escalating.
`

// stagePrompts carries the per-stage guidance appended to the base prompt.
var stagePrompts = map[string]string{
	convo.StageQualifying: `## STAGE: QUALIFYING
Gather essentials one question at a time: move timeline, budget, bedrooms,
preferred areas. Keep it conversational. Once you have the basics, say you
will pull options and suggest escalate_more_options.`,

	convo.StageWorking: `## STAGE: WORKING
Options are in play. Ask which properties stood out, answer questions, and
move toward a tour without asking permission ("When works for you to see
them?"). Tours need escalate_scheduling; fresh options need
escalate_more_options.`,

	convo.StageTouring: `## STAGE: TOURING
Tours are scheduled or done. Confirm details without re-asking, ask how
visits went, and move toward the application. Do not re-escalate scheduling
for a property already being handled; acknowledge confirmations and advance
to preferences or application prep.`,

	convo.StageApplied: `## STAGE: APPLIED
The application is in. Remind the lead to list you as their locator, answer
process questions, and check in on submission status.`,

	convo.StageApproved: `## STAGE: APPROVED
Congratulate them and ask for the locator referral form. Suggest
escalate_approved so the team can secure the referral.`,

	convo.StageClosed: `## STAGE: CLOSED
The lease is signed or the lead went elsewhere. Be gracious either way and
leave the door open.`,

	convo.StagePostClose: `## STAGE: POST-CLOSE
They have moved in. Check in warmly, ask how the place is working out, and
mention you appreciate referrals. Complaints here are escalate_complaint.`,
}

// buildSystemPrompt assembles the full system prompt for a reply turn.
func buildSystemPrompt(persona, community, stage, leadContext string, retrieved []retrieval.RankedResult, pairs []retrieval.DialoguePair, styleNotes string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, basePrompt, persona)

	if community != "" {
		fmt.Fprintf(&sb, "\nYou primarily place leads around %s.\n", community)
	}

	if sp, ok := stagePrompts[stage]; ok {
		sb.WriteString("\n")
		sb.WriteString(sp)
		sb.WriteString("\n")
	}

	if leadContext != "" {
		sb.WriteString("\n")
		sb.WriteString(leadContext)
		sb.WriteString("\n")
	}

	if ctx := formatRetrieved(retrieved); ctx != "" {
		sb.WriteString("\n## PAST CONVERSATION SNIPPETS (tone reference, not facts)\n")
		sb.WriteString(ctx)
		sb.WriteString("\n")
	}

	if len(pairs) > 0 {
		sb.WriteString("\n## EXAMPLE EXCHANGES\n")
		for _, p := range pairs {
			fmt.Fprintf(&sb, "Lead: %s\n%s: %s\n\n", p.LeadText, persona, p.AgentText)
		}
	}

	if styleNotes != "" {
		sb.WriteString("\n")
		sb.WriteString(styleNotes)
		sb.WriteString("\n")
	}

	return sb.String()
}

// formatRetrieved joins retrieved message texts and caps the total length.
func formatRetrieved(retrieved []retrieval.RankedResult) string {
	var sb strings.Builder
	for i := range retrieved {
		text := retrieved[i].Message.DisplayText()
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(text)
		if sb.Len() >= retrievedContextCap {
			break
		}
	}
	s := sb.String()
	if len(s) > retrievedContextCap {
		s = strings.TrimSpace(s[:retrievedContextCap])
	}
	return s
}

// buildStagePrompt builds the stage-classification prompt for a turn.
func buildStagePrompt(current, leadMessage string, prior []history.Message) string {
	if current == "" {
		current = convo.StageQualifying
	}

	var hist strings.Builder
	start := 0
	if len(prior) > 6 {
		start = len(prior) - 6
	}
	for _, m := range prior[start:] {
		content := m.Content
		if len(content) > 100 {
			content = content[:100]
		}
		switch m.Role {
		case convo.RoleLead:
			fmt.Fprintf(&hist, "Lead: %s\n", content)
		case convo.RoleAgent:
			fmt.Fprintf(&hist, "Agent: %s\n", content)
		}
	}
	if hist.Len() == 0 {
		hist.WriteString("(no history)\n")
	}

	return fmt.Sprintf(`Determine the current stage of this apartment-search conversation.

Current stage: %s

Recent conversation:
%s
Current message: %s

Available stages:
- qualifying: gathering basics (budget, bedrooms, move date, areas)
- working: sending options, discussing properties
- touring: scheduling or completing property tours
- applied: application in progress
- approved: application approved
- closed: lease signed or lead went elsewhere
- post_close_nurture: post-move follow-up

Return JSON: {"stage": "stage_name", "reason": "brief explanation"}`,
		current, hist.String(), leadMessage)
}

// fallbackReply is the canned reply used when generation fails outright.
// Keyed off the lead's message so the reply at least matches the moment.
func fallbackReply(leadMessage, persona string) string {
	lower := strings.ToLower(leadMessage)
	switch {
	case strings.Contains(lower, "approved") || strings.Contains(lower, "approval"):
		return "Awesome, congratulations! Can you ask them for the locator referral form?"
	case strings.Contains(lower, "applied") || strings.Contains(lower, "application"):
		return fmt.Sprintf("Great! Please list me as your locator (%s) and text once you submit.", persona)
	case strings.Contains(lower, "tour") || strings.Contains(lower, "schedule") || strings.Contains(lower, "visit"):
		return "I'll check availability and follow up with times."
	default:
		return "I'll look into that and follow up shortly."
	}
}
