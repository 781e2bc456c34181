package convo

import "strings"

// Stage labels in the current vocabulary. New data is labelled with these.
const (
	StageQualifying = "qualifying"
	StageWorking    = "working"
	StageTouring    = "touring"
	StageApplied    = "applied"
	StageApproved   = "approved"
	StageClosed     = "closed"
	StagePostClose  = "post_close_nurture"
)

// legacyToCurrent maps the legacy stage vocabulary (used by the original CRM
// export) onto the current one. The corpus mixes both taxonomies, so every
// stage comparison goes through NormalizeStage first. Kept as a data table so
// a future vocabulary change is a table edit, not a code change.
var legacyToCurrent = map[string]string{
	"first_contact":       StageQualifying,
	"sending_list":        StageWorking,
	"selecting_favorites": StageWorking,
	"touring":             StageTouring,
	"applying":            StageApplied,
	"approval":            StageApproved,
	"post_close":          StagePostClose,
	"renewal":             StagePostClose,
}

// currentToLegacy is the reverse mapping, used when writing back to systems
// that still speak the legacy vocabulary. Where the current vocabulary is
// finer-grained than the legacy one, the closest legacy stage is chosen.
var currentToLegacy = map[string]string{
	StageQualifying: "first_contact",
	StageWorking:    "sending_list",
	StageTouring:    "touring",
	StageApplied:    "applying",
	StageApproved:   "approval",
	StageClosed:     "post_close",
	StagePostClose:  "post_close",
}

// currentStages is the set of valid current-vocabulary labels.
var currentStages = map[string]bool{
	StageQualifying: true,
	StageWorking:    true,
	StageTouring:    true,
	StageApplied:    true,
	StageApproved:   true,
	StageClosed:     true,
	StagePostClose:  true,
}

// NormalizeStage maps a stage label from either vocabulary onto the current
// one. Unknown or empty labels normalise to the empty string, which never
// matches anything — retrieval treats that as "no stage signal", not an error.
func NormalizeStage(stage string) string {
	s := strings.ToLower(strings.TrimSpace(stage))
	if s == "" {
		return ""
	}
	if currentStages[s] {
		return s
	}
	if mapped, ok := legacyToCurrent[s]; ok {
		return mapped
	}
	return ""
}

// LegacyStage maps a current-vocabulary label to its legacy equivalent.
// Returns the empty string for labels that do not normalise.
func LegacyStage(stage string) string {
	return currentToLegacy[NormalizeStage(stage)]
}

// IsStage reports whether stage is a valid label in the current vocabulary.
func IsStage(stage string) bool {
	return currentStages[strings.ToLower(strings.TrimSpace(stage))]
}

// stageKeywords drives InferStage. Order matters: more specific lifecycle
// signals are checked before generic qualifying chatter.
var stageKeywords = []struct {
	stage    string
	keywords []string
}{
	{StageApproved, []string{"approved", "approval", "got approved"}},
	{StageApplied, []string{"apply", "applied", "application"}},
	{StageTouring, []string{"tour", "showing", "schedule", "touring"}},
	{StageClosed, []string{"closed", "lease signed", "moved in", "went elsewhere"}},
	{StagePostClose, []string{"referral", "post-close", "move in", "nurture", "follow up"}},
	{StageWorking, []string{"options", "listings", "sent over", "send", "properties", "credit", "docs"}},
	{StageQualifying, []string{"budget", "bed", "bath", "move", "when", "qualify"}},
}

// InferStage guesses a current-vocabulary stage from message text. Used by
// ingestion when the export carries no stage column and by the agent as the
// fallback when LLM classification fails. Returns current when no keyword
// matches; an empty current falls back to qualifying.
func InferStage(text, current string) string {
	lower := strings.ToLower(text)
	for _, entry := range stageKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.stage
			}
		}
	}
	if c := NormalizeStage(current); c != "" {
		return c
	}
	return StageQualifying
}
