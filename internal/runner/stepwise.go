package runner

import (
	"context"
	"fmt"

	"github.com/floegence/llm-loop-lab/internal/extract"
	"github.com/floegence/llm-loop-lab/internal/notes"
	"github.com/floegence/llm-loop-lab/internal/prompt"
	"github.com/floegence/llm-loop-lab/internal/runlog"
)

// stepwiseState carries both Notes and the full thought history. The history
// is append-only; it is windowed only when rendered into a prompt.
type stepwiseState struct {
	scenario scenarioState
	notes    notes.Notes
	thoughts []string
}

func (c *Controller) runStepwise(ctx context.Context) error {
	// The stepwise schema carries next_thought, which enables the last-resort
	// regex rescue; the other modes deliberately have none.
	extractor := extract.New(true)
	state := stepwiseState{
		scenario: newScenarioState(c.cfg.Scenario),
		notes:    notes.Empty(),
	}
	for step := 0; step < c.cfg.Thoughts; step++ {
		var err error
		state, err = c.stepwiseStep(ctx, extractor, state, step)
		if err != nil {
			return fmt.Errorf("step %d: %w", step, err)
		}
	}
	return nil
}

func (c *Controller) stepwiseStep(ctx context.Context, extractor *extract.Extractor, state stepwiseState, step int) (stepwiseState, error) {
	var changeLog string
	state.scenario, changeLog = state.scenario.maybePerturb(step, c.cfg.PerturbAt, c.cfg.PerturbText, "step")

	req := prompt.Stepwise(state.scenario.current, state.thoughts, c.cfg.HistoryWindow)
	raw, latency, err := c.invoke(ctx, req)
	if err != nil {
		return state, err
	}

	payload := c.extractPayload(extractor, raw, step)
	if rawNotes, ok := payload.RawNotes(); ok {
		state.notes = notes.Compact(rawNotes, c.cfg.MaxNoteItems)
	}
	// Only a non-empty trimmed thought advances the history; an empty or
	// missing value leaves the rendered history for the next step unchanged.
	next := payload.NextThought()
	if next != "" {
		state.thoughts = append(append([]string(nil), state.thoughts...), next)
	}

	record := runlog.StepwiseRecord{
		Header:        c.header(ModeStepwise, state.scenario.current, latency),
		Step:          step,
		PriorNotes:    state.notes,
		Response:      payload,
		NextThought:   next,
		ThoughtsSoFar: len(state.thoughts),
		HistoryWindow: c.cfg.HistoryWindow,
		ChangeLog:     changeLog,
	}
	if err := c.store.Append(&record); err != nil {
		return state, err
	}
	c.emitProgress(step, next)
	return state, nil
}
