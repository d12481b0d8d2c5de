package notes

import (
	"fmt"
	"strings"
)

// Notes is the bounded categorized scratchpad carried between iterations.
//
// Notes:
// - The category set is fixed. Absent categories are empty slices, never nil,
//   so a marshaled value always shows [] instead of null.
// - Values are normalized through Compact before they are carried forward.
type Notes struct {
	Premises      []string `json:"premises"`
	Hypotheses    []string `json:"hypotheses"`
	Uncertainties []string `json:"uncertainties"`
	PlanNext      []string `json:"plan_next"`
}

// DefaultMaxItems bounds each category after compaction.
const DefaultMaxItems = 3

// Empty returns a well-formed Notes value with all categories present and empty.
func Empty() Notes {
	return Notes{
		Premises:      []string{},
		Hypotheses:    []string{},
		Uncertainties: []string{},
		PlanNext:      []string{},
	}
}

// Compact normalizes raw notes extracted from a model response into a bounded
// Notes value. Non-sequence category values are coerced into a single-element
// sequence via string conversion; each category keeps at most maxItems entries;
// missing categories become empty. Compact never fails.
func Compact(raw map[string]any, maxItems int) Notes {
	if maxItems <= 0 {
		maxItems = DefaultMaxItems
	}
	return Notes{
		Premises:      compactCategory(raw["premises"], maxItems),
		Hypotheses:    compactCategory(raw["hypotheses"], maxItems),
		Uncertainties: compactCategory(raw["uncertainties"], maxItems),
		PlanNext:      compactCategory(raw["plan_next"], maxItems),
	}
}

func compactCategory(v any, maxItems int) []string {
	items := coerceSlice(v)
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	return items
}

func coerceSlice(v any) []string {
	switch x := v.(type) {
	case nil:
		return []string{}
	case []string:
		out := make([]string, 0, len(x))
		return append(out, x...)
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			out = append(out, anyToString(item))
		}
		return out
	default:
		return []string{anyToString(v)}
	}
}

func anyToString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}
