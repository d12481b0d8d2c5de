package runner

import (
	"context"
	"fmt"

	"github.com/floegence/llm-loop-lab/internal/extract"
	"github.com/floegence/llm-loop-lab/internal/notes"
	"github.com/floegence/llm-loop-lab/internal/prompt"
	"github.com/floegence/llm-loop-lab/internal/runlog"
)

// refinementState is the value threaded through refinement iterations. Each
// step returns a replaced state; nothing is mutated in place.
type refinementState struct {
	scenario scenarioState
	notes    notes.Notes
}

func (c *Controller) runRefinement(ctx context.Context) error {
	extractor := extract.New(false)
	state := refinementState{
		scenario: newScenarioState(c.cfg.Scenario),
		notes:    notes.Empty(),
	}
	for k := 0; k < c.cfg.Iterations; k++ {
		var err error
		state, err = c.refinementStep(ctx, extractor, state, k)
		if err != nil {
			return fmt.Errorf("iteration %d: %w", k, err)
		}
	}
	return nil
}

// refinementStep runs one full iteration: perturb, render, invoke, extract,
// update notes, persist. A parse failure leaves the carried notes unchanged.
func (c *Controller) refinementStep(ctx context.Context, extractor *extract.Extractor, state refinementState, k int) (refinementState, error) {
	var changeLog string
	state.scenario, changeLog = state.scenario.maybePerturb(k, c.cfg.PerturbAt, c.cfg.PerturbText, "Iteration")

	req := prompt.Refinement(state.scenario.current, state.notes)
	raw, latency, err := c.invoke(ctx, req)
	if err != nil {
		return state, err
	}

	payload := c.extractPayload(extractor, raw, k)
	if rawNotes, ok := payload.RawNotes(); ok {
		state.notes = notes.Compact(rawNotes, c.cfg.MaxNoteItems)
	}

	record := runlog.RefinementRecord{
		Header:     c.header(ModeRefinement, state.scenario.current, latency),
		Iteration:  k,
		PriorNotes: state.notes,
		Response:   payload,
		ChangeLog:  changeLog,
	}
	if err := c.store.Append(&record); err != nil {
		return state, err
	}
	c.emitProgress(k, payload.Answer())
	return state, nil
}
