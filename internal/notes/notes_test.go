package notes

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCompactTruncates(t *testing.T) {
	t.Parallel()
	raw := map[string]any{
		"premises": []any{"a", "b", "c", "d"},
	}
	got := Compact(raw, 3)
	if len(got.Premises) != 3 {
		t.Fatalf("len(premises)=%d, want 3", len(got.Premises))
	}
	if got.Premises[0] != "a" || got.Premises[2] != "c" {
		t.Fatalf("premises=%v, want [a b c]", got.Premises)
	}
}

func TestCompactEmptyInput(t *testing.T) {
	t.Parallel()
	got := Compact(map[string]any{}, 3)
	for name, category := range map[string][]string{
		"premises":      got.Premises,
		"hypotheses":    got.Hypotheses,
		"uncertainties": got.Uncertainties,
		"plan_next":     got.PlanNext,
	} {
		if category == nil {
			t.Fatalf("%s is nil, want empty slice", name)
		}
		if len(category) != 0 {
			t.Fatalf("%s=%v, want empty", name, category)
		}
	}
}

func TestCompactCoercesScalars(t *testing.T) {
	t.Parallel()
	raw := map[string]any{
		"hypotheses": "single hypothesis",
		"plan_next":  float64(7),
	}
	got := Compact(raw, 3)
	if len(got.Hypotheses) != 1 || got.Hypotheses[0] != "single hypothesis" {
		t.Fatalf("hypotheses=%v", got.Hypotheses)
	}
	if len(got.PlanNext) != 1 || got.PlanNext[0] != "7" {
		t.Fatalf("plan_next=%v", got.PlanNext)
	}
}

func TestEmptyMarshalsWithoutNulls(t *testing.T) {
	t.Parallel()
	b, err := json.Marshal(Empty())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(b), "null") {
		t.Fatalf("marshaled notes contain null: %s", b)
	}
}
