package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/floegence/llm-loop-lab/internal/config"
	"github.com/floegence/llm-loop-lab/internal/experiment"
	"github.com/floegence/llm-loop-lab/internal/provider"
	"github.com/floegence/llm-loop-lab/internal/runlog"
	"github.com/floegence/llm-loop-lab/internal/runner"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
	// Commit is set via -ldflags at build time.
	Commit = "unknown"
)

const (
	defaultTemperature   = 0.7
	defaultTopP          = 0.9
	defaultRepeatPenalty = 1.1
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		runCmd(os.Args[2:])
	case "experiment":
		experimentCmd(os.Args[2:])
	case "init":
		initCmd(os.Args[2:])
	case "version":
		fmt.Printf("llm-loop %s (%s)\n", Version, Commit)
	default:
		printUsage()
		os.Exit(2)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `llm-loop

Usage:
  llm-loop run [flags]
  llm-loop experiment [flags]
  llm-loop init [flags]
  llm-loop version

Commands:
  run          Run one experiment loop against the configured endpoint.
  experiment   Run every run defined in a YAML experiment spec.
  init         Write a starter config file.
  version      Print build information.

`)
}

type samplingFlags struct {
	temperature   *float64
	topP          *float64
	seed          *int
	repeatPenalty *float64
}

func addSamplingFlags(fs *flag.FlagSet) samplingFlags {
	return samplingFlags{
		temperature:   fs.Float64("temperature", defaultTemperature, "sampling temperature"),
		topP:          fs.Float64("top-p", defaultTopP, "nucleus sampling cutoff"),
		seed:          fs.Int("seed", 0, "sampling seed (omit for nondeterministic sampling)"),
		repeatPenalty: fs.Float64("repeat-penalty", defaultRepeatPenalty, "repetition penalty"),
	}
}

func (f samplingFlags) sampling(fs *flag.FlagSet) provider.Sampling {
	s := provider.Sampling{
		Temperature:   *f.temperature,
		TopP:          *f.topP,
		RepeatPenalty: *f.repeatPenalty,
	}
	// A zero seed still pins sampling, so presence matters, not value.
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == "seed" {
			seed := *f.seed
			s.Seed = &seed
		}
	})
	return s
}

func runCmd(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)

	cfgPath := fs.String("config", config.DefaultConfigPath(), "config file path")
	mode := fs.String("mode", runner.ModeBatch, "run mode: batch|refinement|stepwise")
	model := fs.String("model", "", "model name (default from config)")
	scenario := fs.String("scenario", "", "inline scenario text")
	scenarioFile := fs.String("scenario-file", "", "file containing the scenario text")
	out := fs.String("out", "run_log.jsonl", "output JSONL log path")

	samples := fs.Int("samples", 0, "batch sample count (default 10)")
	iterations := fs.Int("iterations", 0, "refinement iteration count (default 15)")
	thoughts := fs.Int("thoughts", 0, "stepwise thought count (default 20)")
	historyWindow := fs.Int("history-window", 0, "stepwise rendered history size (default 5)")

	perturbAt := fs.Int("perturb-at", -1, "0-based index at which to perturb the scenario (-1: never)")
	perturbText := fs.String("perturb-text", "", "text appended to the scenario at the perturbation index")
	maxNoteItems := fs.Int("max-note-items", 0, "max items kept per notes category (default 3)")

	sampling := addSamplingFlags(fs)

	logFormat := fs.String("log-format", "", "log format: json|text (default from config)")
	logLevel := fs.String("log-level", "", "log level: debug|info|warn|error (default from config)")

	_ = fs.Parse(args)

	cfg := loadConfig(*cfgPath)
	logger := buildLogger(cfg, *logFormat, *logLevel)

	scenarioText, err := resolveScenario(*scenario, *scenarioFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[llm-loop] %v\n", err)
		fs.Usage()
		os.Exit(2)
	}

	runCfg := runner.Config{
		Mode:          *mode,
		Model:         strings.TrimSpace(*model),
		Scenario:      scenarioText,
		Samples:       *samples,
		Iterations:    *iterations,
		Thoughts:      *thoughts,
		HistoryWindow: *historyWindow,
		PerturbText:   strings.TrimSpace(*perturbText),
		Sampling:      sampling.sampling(fs),
		MaxNoteItems:  *maxNoteItems,
	}
	if *perturbAt >= 0 {
		at := *perturbAt
		runCfg.PerturbAt = &at
	}
	if runCfg.Model == "" {
		runCfg.Model = cfg.EffectiveModel()
	}

	ctx := signalContext()
	if err := executeRun(ctx, logger, cfg, runCfg, *out); err != nil {
		fatalf("%v", err)
	}
}

func experimentCmd(args []string) {
	fs := flag.NewFlagSet("experiment", flag.ExitOnError)

	cfgPath := fs.String("config", config.DefaultConfigPath(), "config file path")
	specPath := fs.String("spec", "", "experiment spec yaml path")
	outDir := fs.String("out-dir", "runs", "directory for run logs without an explicit out path")
	logFormat := fs.String("log-format", "", "log format: json|text (default from config)")
	logLevel := fs.String("log-level", "", "log level: debug|info|warn|error (default from config)")
	sampling := addSamplingFlags(fs)

	_ = fs.Parse(args)

	if strings.TrimSpace(*specPath) == "" {
		fs.Usage()
		os.Exit(2)
	}

	cfg := loadConfig(*cfgPath)
	logger := buildLogger(cfg, *logFormat, *logLevel)

	runs, err := experiment.Load(*specPath, sampling.sampling(fs))
	if err != nil {
		fatalf("failed to load experiment spec: %v", err)
	}

	ctx := signalContext()
	for _, run := range runs {
		runCfg := run.Config
		if runCfg.Model == "" {
			runCfg.Model = cfg.EffectiveModel()
		}
		out := run.Out
		if out == "" {
			out = filepath.Join(*outDir, run.Name+".jsonl")
		}
		logger.Info("experiment run starting", "name", run.Name, "mode", runCfg.Mode, "out", out)
		if err := executeRun(ctx, logger, cfg, runCfg, out); err != nil {
			fatalf("run %s: %v", run.Name, err)
		}
	}
}

func initCmd(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	cfgPath := fs.String("config", config.DefaultConfigPath(), "config file path")
	providerType := fs.String("provider", provider.TypeOllama, "provider type: ollama|openai_compatible|anthropic")
	baseURL := fs.String("base-url", "", "endpoint base URL")
	apiKeyEnv := fs.String("api-key-env", "", "environment variable holding the API key")
	model := fs.String("model", config.DefaultModel, "default model name")
	_ = fs.Parse(args)

	cfg := &config.Config{
		ProviderType: strings.TrimSpace(*providerType),
		BaseURL:      strings.TrimSpace(*baseURL),
		APIKeyEnv:    strings.TrimSpace(*apiKeyEnv),
		Model:        strings.TrimSpace(*model),
	}
	if err := config.Save(*cfgPath, cfg); err != nil {
		fatalf("failed to write config: %v", err)
	}
	fmt.Printf("Config written: %s\n", filepath.Clean(*cfgPath))
}

// executeRun wires one configured run: client, connectivity check, log store,
// controller. Progress lines are printed only on an interactive stdout.
func executeRun(ctx context.Context, logger *slog.Logger, cfg *config.Config, runCfg runner.Config, out string) error {
	client, err := provider.New(cfg.EffectiveProviderType(), cfg.EffectiveBaseURL(), cfg.EffectiveAPIKey(), cfg.EffectiveRequestTimeout())
	if err != nil {
		return err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = client.Ping(pingCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("endpoint unreachable: %w", err)
	}

	store, err := runlog.New(out)
	if err != nil {
		return err
	}

	var progress func(int, string)
	if term.IsTerminal(int(os.Stdout.Fd())) {
		progress = func(index int, summary string) {
			fmt.Printf("[%d] %s\n", index, summary)
		}
	}

	c, err := runner.New(runner.Options{
		Logger:   logger,
		Client:   client,
		Store:    store,
		Config:   runCfg,
		Progress: progress,
	})
	if err != nil {
		return err
	}
	return c.Run(ctx)
}

func resolveScenario(inline string, file string) (string, error) {
	inline = strings.TrimSpace(inline)
	file = strings.TrimSpace(file)
	switch {
	case inline != "" && file != "":
		return "", fmt.Errorf("-scenario and -scenario-file are mutually exclusive")
	case inline != "":
		return inline, nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read scenario file: %w", err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return "", fmt.Errorf("scenario file %s is empty", file)
		}
		return text, nil
	default:
		return "", fmt.Errorf("one of -scenario or -scenario-file is required")
	}
}

func loadConfig(path string) *config.Config {
	cfg, err := config.Load(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			return &config.Config{}
		}
		fatalf("failed to load config: %v", err)
	}
	return cfg
}

func buildLogger(cfg *config.Config, formatFlag string, levelFlag string) *slog.Logger {
	format := strings.TrimSpace(formatFlag)
	if format == "" {
		format = cfg.LogFormat
	}
	level := strings.TrimSpace(levelFlag)
	if level == "" {
		level = cfg.LogLevel
	}
	logger, err := newLogger(format, level)
	if err != nil {
		fatalf("%v", err)
	}
	return logger
}

func newLogger(format string, level string) (*slog.Logger, error) {
	var h slog.Handler

	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		lvl = slog.LevelInfo
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %s", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		h = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}

	return slog.New(h), nil
}

func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()
	return ctx
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[llm-loop] "+format+"\n", args...)
	os.Exit(1)
}
