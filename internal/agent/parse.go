package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// replyEnvelope is the JSON shape the model is instructed to return.
type replyEnvelope struct {
	OutgoingMessage string          `json:"outgoing_message"`
	NextAction      json.RawMessage `json:"next_action_suggested"`
}

// parseReplyEnvelope extracts the outgoing message and suggested action from
// raw model output. Models sometimes wrap the JSON in prose or fencing, so
// the parser scans for the outermost object. Unparseable output is treated
// as a plain-text reply with no action rather than an error — a slightly
// off-format reply still beats a dropped turn.
func parseReplyEnvelope(raw string) (string, *SuggestedAction) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return text, nil
	}

	var env replyEnvelope
	if err := json.Unmarshal([]byte(text[start:end+1]), &env); err != nil {
		return text, nil
	}

	msg := strings.TrimSpace(env.OutgoingMessage)
	action := parseAction(env.NextAction)

	if msg == "" && action == nil {
		return text, nil
	}
	return msg, action
}

// parseAction accepts the action field as an object, a bare string, or null.
func parseAction(raw json.RawMessage) *SuggestedAction {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var obj SuggestedAction
	if err := json.Unmarshal(raw, &obj); err == nil {
		obj.Action = strings.ToLower(strings.TrimSpace(obj.Action))
		if obj.Action == "" {
			return nil
		}
		if obj.Reason == "" {
			obj.Reason = "model_suggested"
		}
		return &obj
	}

	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return nil
		}
		return &SuggestedAction{Action: name, Reason: "model_suggested"}
	}

	return nil
}

// stageEnvelope is the JSON shape of the stage-classification response.
type stageEnvelope struct {
	Stage string `json:"stage"`
}

// parseStageEnvelope extracts the stage label from raw classifier output.
func parseStageEnvelope(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return "", fmt.Errorf("agent: no JSON object in stage response")
	}

	var env stageEnvelope
	if err := json.Unmarshal([]byte(text[start:end+1]), &env); err != nil {
		return "", fmt.Errorf("agent: failed to parse stage response: %w", err)
	}
	return strings.ToLower(strings.TrimSpace(env.Stage)), nil
}
