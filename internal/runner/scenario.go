package runner

import (
	"fmt"
	"strings"
)

// scenarioState tracks the scenario text in effect for a run. The base text is
// immutable; once the perturbation fires, the appended change-log section stays
// for every later iteration.
type scenarioState struct {
	base    string
	current string
	applied bool
}

func newScenarioState(base string) scenarioState {
	return scenarioState{base: base, current: base}
}

// maybePerturb fires at most once, on exact index equality. indexWord is the
// mode's label word ("Iteration" or "step") and appears verbatim in the text
// the model sees. The returned marker is empty when nothing was applied.
func (s scenarioState) maybePerturb(index int, at *int, text string, indexWord string) (scenarioState, string) {
	if s.applied || at == nil || index != *at {
		return s, ""
	}
	s.current = s.base + fmt.Sprintf("\n\nCHANGE LOG (%s %d): %s", indexWord, index, text)
	s.applied = true
	marker := fmt.Sprintf("CHANGE LOG applied at %s %d: %s", strings.ToLower(indexWord), index, text)
	return s, marker
}
