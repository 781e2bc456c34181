package agent

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/leadline-ai/leadline/internal/history"
	"github.com/leadline-ai/leadline/internal/retrieval"
)

var budgetRe = regexp.MustCompile(`\$\s*(\d{3,4})`)

// monthNames feeds move-timing detection; full names first so "may" inside
// "maybe" does not win over an explicit "May".
var monthNames = []string{
	"january", "february", "march", "april", "june",
	"july", "august", "september", "october", "november", "december",
	"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec",
}

// bedroomSignals maps text fragments to a bedroom label, checked in order.
var bedroomSignals = []struct {
	label     string
	fragments []string
}{
	{"studio", []string{"studio", "efficiency"}},
	{"1br", []string{"1 bed", "1bed", "1br", "one bed"}},
	{"2br", []string{"2 bed", "2bed", "2br", "two bed"}},
	{"3br", []string{"3 bed", "3bed", "3br", "three bed"}},
}

// areaNames maps lowercase area keywords to their display names.
var areaNames = map[string]string{
	"heights":    "Heights",
	"downtown":   "Downtown",
	"midtown":    "Midtown",
	"uptown":     "Uptown",
	"galleria":   "Galleria",
	"katy":       "Katy",
	"spring":     "Spring",
	"pearland":   "Pearland",
	"sugar land": "Sugar Land",
}

// extractLeadContext scans the retrieved context and recent history for what
// is already known about the lead (budget, move timing, bedrooms, areas) and
// renders a summary block so the model does not re-ask answered questions.
// Returns "" when there is nothing to say.
func extractLeadContext(retrieved []retrieval.RankedResult, prior []history.Message, leadMessage string) string {
	var sb strings.Builder
	for i := range retrieved {
		sb.WriteString(retrieved[i].Message.DisplayText())
		sb.WriteString(" ")
	}
	start := 0
	if len(prior) > 10 {
		start = len(prior) - 10
	}
	for _, m := range prior[start:] {
		sb.WriteString(m.Content)
		sb.WriteString(" ")
	}
	sb.WriteString(leadMessage)

	combined := sb.String()
	lower := strings.ToLower(combined)

	known := map[string]string{}
	var knownOrder, missing []string
	note := func(key, value string) {
		known[key] = value
		knownOrder = append(knownOrder, key)
	}

	if m := budgetRe.FindStringSubmatch(combined); m != nil {
		note("budget", "$"+m[1])
	} else if containsAny(lower, "budget", "afford", "price range") {
		note("budget", "mentioned")
	} else {
		missing = append(missing, "budget")
	}

	if month := firstMonth(lower); month != "" {
		note("move_timing", titleCase(month))
	} else if containsAny(lower, "move", "moving", "asap", "soon") {
		note("move_timing", "mentioned")
	} else {
		missing = append(missing, "move_timing")
	}

	if label := bedroomLabel(lower); label != "" {
		note("bedrooms", label)
	} else if strings.Contains(lower, "bed") {
		note("bedrooms", "mentioned")
	} else {
		missing = append(missing, "bedrooms")
	}

	if areas := foundAreas(lower); len(areas) > 0 {
		note("areas", strings.Join(areas, ", "))
	}

	if len(knownOrder) == 0 && len(missing) == 0 {
		return ""
	}

	var out strings.Builder
	out.WriteString("## LEAD CONTEXT SUMMARY\n")
	if len(knownOrder) > 0 {
		items := make([]string, 0, len(knownOrder))
		for _, k := range knownOrder {
			items = append(items, fmt.Sprintf("%s: %s", k, known[k]))
		}
		out.WriteString("Known: " + strings.Join(items, ", ") + "\n")
	}
	if len(missing) > 0 {
		if len(missing) > 2 {
			missing = missing[:2]
		}
		out.WriteString("Still need: " + strings.Join(missing, ", ") + "\n")
	}
	out.WriteString("Do not re-ask known info. Ask for ONE missing item naturally.")
	return out.String()
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func firstMonth(lower string) string {
	for _, month := range monthNames {
		if strings.Contains(lower, month) {
			return month
		}
	}
	return ""
}

func bedroomLabel(lower string) string {
	for _, sig := range bedroomSignals {
		for _, frag := range sig.fragments {
			if strings.Contains(lower, frag) {
				return sig.label
			}
		}
	}
	return ""
}

func foundAreas(lower string) []string {
	var areas []string
	for keyword, name := range areaNames {
		if strings.Contains(lower, keyword) {
			areas = append(areas, name)
		}
	}
	sort.Strings(areas)
	if len(areas) > 3 {
		areas = areas[:3]
	}
	return areas
}

// titleCase uppercases the first ASCII letter. Month names only.
func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
