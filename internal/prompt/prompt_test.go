package prompt

import (
	"strings"
	"testing"

	"github.com/floegence/llm-loop-lab/internal/notes"
)

func TestBatchRendering(t *testing.T) {
	t.Parallel()
	req := Batch("A Mars habitat loses power.")
	if req.System != SystemPrompt {
		t.Fatalf("system prompt mismatch")
	}
	if !strings.HasPrefix(req.User, "SCENARIO:\nA Mars habitat loses power.") {
		t.Fatalf("user prefix=%q", req.User[:40])
	}
	if strings.Contains(req.User, "PRIOR NOTES") {
		t.Fatalf("batch request must not carry state")
	}
	if !strings.Contains(req.User, `"answer"`) {
		t.Fatalf("batch schema missing answer field")
	}
}

func TestRefinementRendersPriorNotes(t *testing.T) {
	t.Parallel()
	prior := notes.Empty()
	prior.Premises = []string{"low oxygen", "crew of 4"}
	req := Refinement("scenario", prior)

	if !strings.Contains(req.User, "Premises*: [low oxygen, crew of 4]") {
		t.Fatalf("premises block missing:\n%s", req.User)
	}
	if !strings.Contains(req.User, "Hypotheses*: []") {
		t.Fatalf("empty category must render as empty brackets:\n%s", req.User)
	}
	if !strings.Contains(req.User, "Reconcile PRIOR NOTES") {
		t.Fatalf("reconciliation instructions missing")
	}
}

func TestStepwiseHistoryWindow(t *testing.T) {
	t.Parallel()
	req := Stepwise("scenario", []string{"t1", "t2", "t3"}, 2)

	i3 := strings.Index(req.User, "- t3")
	i2 := strings.Index(req.User, "- t2")
	if i3 < 0 || i2 < 0 {
		t.Fatalf("history lines missing:\n%s", req.User)
	}
	if i3 > i2 {
		t.Fatalf("history not most-recent-first")
	}
	if strings.Contains(req.User, "- t1") {
		t.Fatalf("t1 must be outside the window")
	}
}

func TestStepwiseEmptyHistoryPlaceholder(t *testing.T) {
	t.Parallel()
	req := Stepwise("scenario", nil, 5)
	if !strings.Contains(req.User, "- (none)") {
		t.Fatalf("placeholder missing:\n%s", req.User)
	}
	if !strings.Contains(req.User, "illustrative only") {
		t.Fatalf("example must be marked non-authoritative")
	}
	if !strings.Contains(req.User, `"next_thought"`) {
		t.Fatalf("stepwise schema missing next_thought")
	}
}
