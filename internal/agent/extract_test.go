package agent

import (
	"strings"
	"testing"

	"github.com/leadline-ai/leadline/internal/convo"
	"github.com/leadline-ai/leadline/internal/history"
)

func Test_extractLeadContext(t *testing.T) {
	t.Parallel()

	t.Run("budget bedrooms and area detected", func(t *testing.T) {
		t.Parallel()
		prior := []history.Message{
			{Role: convo.RoleLead, Content: "Looking for a 2 bed in the Heights, budget is $1500"},
		}
		got := extractLeadContext(nil, prior, "when can I tour?")
		if !strings.Contains(got, "budget: $1500") {
			t.Errorf("missing budget in %q", got)
		}
		if !strings.Contains(got, "bedrooms: 2br") {
			t.Errorf("missing bedrooms in %q", got)
		}
		if !strings.Contains(got, "areas: Heights") {
			t.Errorf("missing area in %q", got)
		}
	})

	t.Run("missing info listed", func(t *testing.T) {
		t.Parallel()
		got := extractLeadContext(nil, nil, "hi there")
		if !strings.Contains(got, "Still need:") {
			t.Fatalf("expected missing items in %q", got)
		}
		if !strings.Contains(got, "budget") {
			t.Errorf("budget should be listed as missing: %q", got)
		}
	})

	t.Run("missing list capped at two items", func(t *testing.T) {
		t.Parallel()
		got := extractLeadContext(nil, nil, "hi there")
		for _, line := range strings.Split(got, "\n") {
			if strings.HasPrefix(line, "Still need:") {
				if n := strings.Count(line, ","); n > 1 {
					t.Errorf("more than two missing items: %q", line)
				}
				return
			}
		}
		t.Fatalf("no Still need line in %q", got)
	})

	t.Run("move month detected", func(t *testing.T) {
		t.Parallel()
		got := extractLeadContext(nil, nil, "hoping to move in March")
		if !strings.Contains(got, "move_timing: March") {
			t.Errorf("missing move timing in %q", got)
		}
	})

	t.Run("vague budget mention", func(t *testing.T) {
		t.Parallel()
		got := extractLeadContext(nil, nil, "my budget is flexible")
		if !strings.Contains(got, "budget: mentioned") {
			t.Errorf("expected mentioned budget in %q", got)
		}
	})

	t.Run("studio recognised", func(t *testing.T) {
		t.Parallel()
		got := extractLeadContext(nil, nil, "just need a studio downtown")
		if !strings.Contains(got, "bedrooms: studio") {
			t.Errorf("missing studio in %q", got)
		}
		if !strings.Contains(got, "areas: Downtown") {
			t.Errorf("missing area in %q", got)
		}
	})
}
