package policy

import (
	"regexp"
	"strings"
)

// FollowUpResult is the outcome of follow-up promise detection on an
// outgoing agent message.
type FollowUpResult struct {
	// IsFollowUp is true when the message commits to a future action.
	IsFollowUp bool
	// Confidence is the weight of the strongest matched pattern, 0..1.
	Confidence float64
	// Phrase is the matched text fragment, empty when nothing matched.
	Phrase string
}

// followUpPattern pairs a compiled pattern with its confidence weight.
type followUpPattern struct {
	re     *regexp.Regexp
	weight float64
}

// followUpPatterns matches common follow-up promises, strongest first in
// weight. A promise detected here means the thread needs a reminder so the
// commitment is actually kept.
var followUpPatterns = compileFollowUpPatterns([]struct {
	expr   string
	weight float64
}{
	// Strong/explicit commitments
	{`\b(i|we)'?ll\s+get\s+back\s+to\s+you\b`, 0.95},
	{`\b(i|we)\s+will\s+get\s+back\s+to\s+you\b`, 0.95},
	{`\b(get|getting)\s+back\s+to\s+you\b`, 0.9},
	{`\b(i|we)'?ll\s+follow[- ]?up\b`, 0.9},
	{`\b(i|we)\s+will\s+follow[- ]?up\b`, 0.9},
	{`\bfollow[- ]?up\s+(shortly|soon|tomorrow|later|with\s+details)\b`, 0.9},
	{`\b(i|we)'?ll\s+confirm.*?get\s+back\b`, 0.95},
	{`\b(i|we)'?ll\s+check.*?get\s+back\b`, 0.95},
	{`\b(i|we)'?ll\s+confirm\b`, 0.8},
	{`\b(i|we)'?ll\s+update\s+you\b`, 0.85},
	{`\b(i|we)'?ll\s+let\s+you\s+know\b`, 0.85},
	{`\bcircle\s+back\b`, 0.85},
	{`\btouch\s+base\b`, 0.75},
	{`\breach\s+out\b`, 0.75},
	{`\bcheck\s+in\b`, 0.75},
	// Variants without subject but clearly future commitment
	{`\bwill\s+follow[- ]?up\b`, 0.85},
	{`\bwill\s+get\s+back\b`, 0.9},
})

func compileFollowUpPatterns(specs []struct {
	expr   string
	weight float64
}) []followUpPattern {
	out := make([]followUpPattern, 0, len(specs))
	for _, s := range specs {
		out = append(out, followUpPattern{re: regexp.MustCompile(`(?i)` + s.expr), weight: s.weight})
	}
	return out
}

// smartQuoteReplacer normalises curly quotes before matching so "I’ll"
// matches the `'?` patterns.
var smartQuoteReplacer = strings.NewReplacer(
	"’", "'", "‘", "'",
	"“", `"`, "”", `"`,
)

var spaceRun = regexp.MustCompile(`\s+`)

// normalizeForMatch lowercases and normalises quoting/whitespace.
func normalizeForMatch(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	t = smartQuoteReplacer.Replace(t)
	return spaceRun.ReplaceAllString(t, " ")
}

// DetectFollowUpPromise reports whether an outgoing message promises a
// future follow-up, with the best matching phrase and its confidence.
func DetectFollowUpPromise(text string) FollowUpResult {
	normalized := normalizeForMatch(text)
	if normalized == "" {
		return FollowUpResult{}
	}

	var best FollowUpResult
	for _, p := range followUpPatterns {
		match := p.re.FindString(normalized)
		if match == "" {
			continue
		}
		if !best.IsFollowUp || p.weight > best.Confidence {
			best = FollowUpResult{IsFollowUp: true, Confidence: p.weight, Phrase: match}
		}
	}
	return best
}
