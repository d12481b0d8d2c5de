package runner

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/floegence/llm-loop-lab/internal/extract"
	"github.com/floegence/llm-loop-lab/internal/notes"
	"github.com/floegence/llm-loop-lab/internal/prompt"
	"github.com/floegence/llm-loop-lab/internal/provider"
	"github.com/floegence/llm-loop-lab/internal/runlog"
	"github.com/floegence/llm-loop-lab/internal/sysinfo"
)

const (
	ModeBatch      = "batch"
	ModeRefinement = "refinement"
	ModeStepwise   = "stepwise"
)

const (
	defaultSamples       = 10
	defaultIterations    = 15
	defaultThoughts      = 20
	defaultHistoryWindow = 5
)

// Config is the explicit per-run configuration. Nothing here is ambient: a
// controller sees only what it was constructed with.
type Config struct {
	Mode     string
	Model    string
	Scenario string

	// Samples/Iterations/Thoughts select N for the matching mode.
	Samples    int
	Iterations int
	Thoughts   int

	// HistoryWindow bounds how many prior thoughts stepwise prompts show.
	HistoryWindow int

	// PerturbAt, when set, appends PerturbText to the scenario at that exact
	// 0-based index, once, for the rest of the run.
	PerturbAt   *int
	PerturbText string

	Sampling provider.Sampling

	// MaxNoteItems bounds each notes category after compaction.
	MaxNoteItems int
}

type Options struct {
	Logger *slog.Logger
	Client provider.Client
	Store  *runlog.Store
	Config Config

	// Progress, when set, receives a one-line summary per iteration.
	Progress func(index int, summary string)
}

// Controller owns one run end-to-end. It is single-mode and strictly
// sequential; per-run state lives only in values threaded through the
// per-iteration step functions.
type Controller struct {
	log      *slog.Logger
	client   provider.Client
	store    *runlog.Store
	cfg      Config
	progress func(index int, summary string)
	now      func() time.Time
}

func New(opts Options) (*Controller, error) {
	if opts.Client == nil {
		return nil, errors.New("missing client")
	}
	if opts.Store == nil {
		return nil, errors.New("missing store")
	}
	cfg := opts.Config
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	switch cfg.Mode {
	case ModeBatch, ModeRefinement, ModeStepwise:
	default:
		return nil, fmt.Errorf("invalid mode %q", opts.Config.Mode)
	}
	if strings.TrimSpace(cfg.Scenario) == "" {
		return nil, errors.New("missing scenario")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("missing model")
	}
	if cfg.Samples <= 0 {
		cfg.Samples = defaultSamples
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = defaultIterations
	}
	if cfg.Thoughts <= 0 {
		cfg.Thoughts = defaultThoughts
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}
	if cfg.MaxNoteItems <= 0 {
		cfg.MaxNoteItems = notes.DefaultMaxItems
	}
	// All modes request JSON-shaped output from the endpoint.
	cfg.Sampling.JSONOnly = true

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		log:      logger,
		client:   opts.Client,
		store:    opts.Store,
		cfg:      cfg,
		progress: opts.Progress,
		now:      time.Now,
	}, nil
}

// Run executes the configured mode for its full N iterations. Transport and
// persistence failures terminate the run; malformed responses do not.
func (c *Controller) Run(ctx context.Context) error {
	runID, err := newRunID()
	if err != nil {
		return err
	}
	head := runlog.RunHeader{
		Kind:      runlog.KindRunHeader,
		RunID:     runID,
		Mode:      c.cfg.Mode,
		Model:     c.cfg.Model,
		Params:    c.cfg.Sampling,
		StartedAt: c.now().UTC().Format(time.RFC3339Nano),
		Host:      sysinfo.Collect(ctx),
	}
	if err := c.store.Append(&head); err != nil {
		return fmt.Errorf("persist run header: %w", err)
	}
	c.log.Info("run started", "run_id", runID, "mode", c.cfg.Mode, "model", c.cfg.Model, "log", c.store.Path())

	switch c.cfg.Mode {
	case ModeBatch:
		err = c.runBatch(ctx)
	case ModeRefinement:
		err = c.runRefinement(ctx)
	case ModeStepwise:
		err = c.runStepwise(ctx)
	}
	if err != nil {
		return err
	}
	c.log.Info("run finished", "run_id", runID, "mode", c.cfg.Mode)
	return nil
}

func (c *Controller) invoke(ctx context.Context, req prompt.Request) (string, time.Duration, error) {
	messages := []provider.Message{
		{Role: "system", Content: req.System},
		{Role: "user", Content: req.User},
	}
	started := time.Now()
	text, err := c.client.Chat(ctx, provider.ChatRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		Options:  c.cfg.Sampling,
	})
	latency := time.Since(started)
	if err != nil {
		return "", latency, err
	}
	return text, latency, nil
}

// extractPayload never fails: a total extraction failure becomes the sentinel
// error payload and the run continues.
func (c *Controller) extractPayload(e *extract.Extractor, raw string, index int) extract.Payload {
	payload, err := e.Extract(raw)
	if err != nil {
		c.log.Warn("response parse failed, continuing", "index", index, "error", err)
		return extract.ErrorPayload(raw, err)
	}
	return payload
}

func (c *Controller) header(promptKind string, scenario string, latency time.Duration) runlog.Header {
	return runlog.Header{
		Mode:       c.cfg.Mode,
		Timestamp:  c.now().UTC().Format(time.RFC3339Nano),
		Model:      c.cfg.Model,
		Params:     c.cfg.Sampling,
		Scenario:   scenario,
		PromptKind: promptKind,
		LatencyMS:  latency.Milliseconds(),
	}
}

func (c *Controller) emitProgress(index int, summary string) {
	if c.progress == nil {
		return
	}
	summary = strings.ReplaceAll(strings.TrimSpace(summary), "\n", " ")
	r := []rune(summary)
	if len(r) > 160 {
		summary = string(r[:160])
	}
	c.progress(index, summary)
}

func newRunID() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "run_" + base64.RawURLEncoding.EncodeToString(b), nil
}
