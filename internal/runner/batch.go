package runner

import (
	"context"
	"fmt"

	"github.com/floegence/llm-loop-lab/internal/extract"
	"github.com/floegence/llm-loop-lab/internal/prompt"
	"github.com/floegence/llm-loop-lab/internal/runlog"
)

// runBatch resamples the same prompt N times with no carried state, as a
// baseline distribution measurement.
func (c *Controller) runBatch(ctx context.Context) error {
	extractor := extract.New(false)
	for i := 0; i < c.cfg.Samples; i++ {
		req := prompt.Batch(c.cfg.Scenario)
		raw, latency, err := c.invoke(ctx, req)
		if err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}
		payload := c.extractPayload(extractor, raw, i)
		record := runlog.BatchRecord{
			Header:    c.header(ModeBatch, c.cfg.Scenario, latency),
			Iteration: i,
			Response:  payload,
		}
		if err := c.store.Append(&record); err != nil {
			return fmt.Errorf("iteration %d: %w", i, err)
		}
		c.emitProgress(i, payload.Answer())
	}
	return nil
}
