// Package agent implements the per-turn reply orchestration: classify the
// conversation stage, retrieve corpus context and dialogue exemplars, build
// the persona prompt, generate a reply envelope, and apply the policy rules
// that decide whether a reply is sent and whether the thread changes stage.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/leadline-ai/leadline/internal/budget"
	"github.com/leadline-ai/leadline/internal/convo"
	"github.com/leadline-ai/leadline/internal/history"
	"github.com/leadline-ai/leadline/internal/logging"
	"github.com/leadline-ai/leadline/internal/policy"
	"github.com/leadline-ai/leadline/internal/retrieval"
	"github.com/leadline-ai/leadline/internal/style"
)

// ChatModel is the slice of the eino model surface the agent needs.
// model.ToolCallingChatModel satisfies it.
type ChatModel interface {
	Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Retriever is the retrieval façade the agent consumes.
// *retrieval.Engine satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, q retrieval.Query) (*retrieval.Result, error)
}

// Config holds the dependencies required to construct a LeadAgent.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel ChatModel

	// Retriever is the corpus retrieval engine. May be nil, in which case
	// every turn runs without retrieved context.
	Retriever Retriever

	// Style builds tone notes from retrieved agent exemplars. May be nil.
	Style *style.Builder

	// History is the optional per-thread conversation store. If nil, each
	// turn is stateless.
	History history.Store

	// Persona is the human agent name the replies are written as.
	// Defaults to "Ashanti" if empty.
	Persona string

	// Community is the property or market area the persona works, woven
	// into the identity prompt when set.
	Community string

	// HistoryDepth is the number of prior turns (lead+agent pairs) to
	// inject per turn. Defaults to 10 if zero.
	HistoryDepth int

	// MaxContextTokens is the estimated token budget for the full input
	// context (system prompt + history + lead message). History is trimmed
	// oldest-first to fit. Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int
}

// SuggestedAction is the action the model (or the policy backstop) attached
// to a turn, e.g. "escalate_scheduling" or "request_application".
type SuggestedAction struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// TurnResult is everything one conversation turn produces.
type TurnResult struct {
	// Reply is the outgoing message text. Empty when Send is false.
	Reply string
	// Stage is the (possibly advanced) stage after this turn.
	Stage string
	// Action is the suggested action for human review, if any.
	Action *SuggestedAction
	// Send reports whether the reply should actually go out. Escalation
	// actions that require a human in the loop suppress the send.
	Send bool
	// FollowUp records a detected follow-up promise in the outgoing text.
	FollowUp policy.FollowUpResult
	// Diagnostics is the retrieval call's diagnostics, when retrieval ran.
	Diagnostics *retrieval.Diagnostics
}

// LeadAgent generates replies in the persona of a human apartment locator.
type LeadAgent struct {
	chatModel ChatModel
	retriever Retriever
	style     *style.Builder
	history   history.Store

	persona          string
	community        string
	historyDepth     int
	maxContextTokens int
}

// New constructs a LeadAgent from the provided Config.
func New(cfg *Config) (*LeadAgent, error) {
	if cfg == nil || cfg.ChatModel == nil {
		return nil, fmt.Errorf("agent: ChatModel must not be nil")
	}

	persona := cfg.Persona
	if persona == "" {
		persona = "Ashanti"
	}
	depth := cfg.HistoryDepth
	if depth <= 0 {
		depth = 10
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}

	return &LeadAgent{
		chatModel:        cfg.ChatModel,
		retriever:        cfg.Retriever,
		style:            cfg.Style,
		history:          cfg.History,
		persona:          persona,
		community:        cfg.Community,
		historyDepth:     depth,
		maxContextTokens: maxCtx,
	}, nil
}

// Reply runs one conversation turn: the lead's message comes in, the agent's
// reply (or a suppressed escalation) comes out. currentStage may be in either
// stage vocabulary; the returned stage is always in the current one.
func (a *LeadAgent) Reply(ctx context.Context, threadID, currentStage, leadMessage string) (*TurnResult, error) {
	if leadMessage == "" {
		return nil, fmt.Errorf("agent: lead message must not be empty")
	}
	log := logging.FromContext(ctx)

	prior := a.loadHistory(ctx, threadID)

	stage := a.classifyStage(ctx, currentStage, leadMessage, prior)

	retrieved, pairs, diags := a.retrieve(ctx, threadID, stage, leadMessage, prior)

	var styleNotes string
	if a.style != nil {
		styleNotes = a.style.Build(ctx, leadMessage, stage)
	}

	leadContext := extractLeadContext(retrieved, prior, leadMessage)

	messages := a.buildMessages(stage, leadContext, retrieved, pairs, styleNotes, prior, leadMessage)

	reply, action := a.generate(ctx, messages, leadMessage)

	// The policy rules are the backstop for cases the model misses: links
	// and screenshots always need a human, and a cold lead going quiet is a
	// follow-up trigger regardless of what the model suggested.
	if action == nil {
		if esc := policy.DetectEscalation(leadMessage, policyTurns(prior)); esc != nil {
			action = &SuggestedAction{Action: esc.Action, Reason: esc.Reason}
		}
	}

	result := &TurnResult{
		Reply:       reply,
		Stage:       stage,
		Action:      action,
		Send:        true,
		Diagnostics: diags,
	}

	if action != nil {
		if next := policy.StageTransition(action.Action); next != "" {
			result.Stage = next
		}
		if !policy.ShouldSend(action.Action, stage) {
			result.Send = false
			result.Reply = ""
			log.Info("reply suppressed pending human review",
				slog.String("thread_id", threadID),
				slog.String("action", action.Action),
			)
		}
	}

	if result.Send {
		result.FollowUp = policy.DetectFollowUpPromise(result.Reply)
	}

	a.persistTurn(ctx, threadID, leadMessage, result)

	return result, nil
}

// loadHistory fetches the recent thread history, oldest first. Failures are
// non-fatal: a turn without history is degraded, not broken.
func (a *LeadAgent) loadHistory(ctx context.Context, threadID string) []history.Message {
	if a.history == nil || threadID == "" {
		return nil
	}
	prior, err := a.history.Recent(ctx, threadID, a.historyDepth*2)
	if err != nil {
		logging.FromContext(ctx).Warn("history: failed to load prior messages", slog.Any("error", err))
		return nil
	}
	return prior
}

// retrieve runs the corpus retrieval pass. ErrUnavailable degrades the turn
// to zero context with a warning rather than failing it — a reply without
// exemplars still beats no reply.
func (a *LeadAgent) retrieve(ctx context.Context, threadID, stage, leadMessage string, prior []history.Message) ([]retrieval.RankedResult, []retrieval.DialoguePair, *retrieval.Diagnostics) {
	if a.retriever == nil {
		return nil, nil, nil
	}

	res, err := a.retriever.Retrieve(ctx, retrieval.Query{
		Text:        leadMessage,
		ThreadID:    threadID,
		Stage:       stage,
		PreferRole:  convo.RoleAgent,
		ChatHistory: historyTurns(prior),
	})
	if err != nil {
		if errors.Is(err, retrieval.ErrUnavailable) {
			logging.FromContext(ctx).Warn("retrieval unavailable, replying without corpus context", slog.Any("error", err))
		} else {
			logging.FromContext(ctx).Warn("retrieval failed, replying without corpus context", slog.Any("error", err))
		}
		return nil, nil, nil
	}
	return res.Ranked, res.Pairs, &res.Diagnostics
}

// classifyStage asks the LLM which stage the conversation is in, falling back
// to keyword inference when the call or the parse fails.
func (a *LeadAgent) classifyStage(ctx context.Context, current, leadMessage string, prior []history.Message) string {
	normalized := convo.NormalizeStage(current)

	prompt := buildStagePrompt(normalized, leadMessage, prior)
	resp, err := a.chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		logging.FromContext(ctx).Warn("stage classification failed, using keyword fallback", slog.Any("error", err))
		return convo.InferStage(leadMessage, normalized)
	}

	stage, err := parseStageEnvelope(resp.Content)
	if err != nil || convo.NormalizeStage(stage) == "" {
		return convo.InferStage(leadMessage, normalized)
	}
	return convo.NormalizeStage(stage)
}

// generate runs the reply generation call and parses the JSON envelope.
// A failed call falls back to the rule-based canned reply.
func (a *LeadAgent) generate(ctx context.Context, messages []*schema.Message, leadMessage string) (string, *SuggestedAction) {
	resp, err := a.chatModel.Generate(ctx, messages)
	if err != nil {
		logging.FromContext(ctx).Error("reply generation failed, using fallback", slog.Any("error", err))
		return fallbackReply(leadMessage, a.persona), nil
	}

	reply, action := parseReplyEnvelope(resp.Content)
	if reply == "" {
		reply = fallbackReply(leadMessage, a.persona)
	}
	return reply, action
}

// buildMessages assembles the LLM input: persona system prompt, trimmed
// history, and the lead's current message.
func (a *LeadAgent) buildMessages(stage, leadContext string, retrieved []retrieval.RankedResult, pairs []retrieval.DialoguePair, styleNotes string, prior []history.Message, leadMessage string) []*schema.Message {
	system := buildSystemPrompt(a.persona, a.community, stage, leadContext, retrieved, pairs, styleNotes)

	var historyMsgs []*schema.Message
	for _, m := range prior {
		switch m.Role {
		case convo.RoleLead:
			historyMsgs = append(historyMsgs, schema.UserMessage(m.Content))
		case convo.RoleAgent:
			historyMsgs = append(historyMsgs, schema.AssistantMessage(m.Content, nil))
		case convo.RoleSystem:
			// Human team members answering an escalation show up as system
			// turns; they are context, not the lead speaking.
			historyMsgs = append(historyMsgs, schema.SystemMessage("Team note: "+m.Content))
		}
	}

	fixed := []*schema.Message{schema.SystemMessage(system), schema.UserMessage(leadMessage)}
	historyMsgs = budget.TrimHistory(fixed, historyMsgs, a.maxContextTokens)

	result := make([]*schema.Message, 0, len(historyMsgs)+2)
	result = append(result, schema.SystemMessage(system))
	result = append(result, historyMsgs...)
	result = append(result, schema.UserMessage(leadMessage))
	return result
}

// persistTurn appends the lead's message and the outgoing reply to the
// history store. Non-fatal on error.
func (a *LeadAgent) persistTurn(ctx context.Context, threadID string, leadMessage string, result *TurnResult) {
	if a.history == nil || threadID == "" {
		return
	}
	log := logging.FromContext(ctx)
	if err := a.history.Append(ctx, threadID, convo.RoleLead, leadMessage); err != nil {
		log.Warn("history: failed to persist lead message", slog.Any("error", err))
	}
	if result.Send && result.Reply != "" {
		if err := a.history.Append(ctx, threadID, convo.RoleAgent, result.Reply); err != nil {
			log.Warn("history: failed to persist agent reply", slog.Any("error", err))
		}
	}
}

// historyTurns converts stored history into the retrieval query shape.
func historyTurns(prior []history.Message) []retrieval.HistoryTurn {
	turns := make([]retrieval.HistoryTurn, 0, len(prior))
	for _, m := range prior {
		turns = append(turns, retrieval.HistoryTurn{Role: m.Role, Text: m.Content})
	}
	return turns
}

// policyTurns converts stored history into the policy rule shape.
func policyTurns(prior []history.Message) []policy.Turn {
	turns := make([]policy.Turn, 0, len(prior))
	for _, m := range prior {
		turns = append(turns, policy.Turn{Role: m.Role, Text: m.Content})
	}
	return turns
}
