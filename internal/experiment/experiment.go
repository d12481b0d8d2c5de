// Package experiment loads declarative run definitions from YAML, so that a
// sweep of related runs can live in one reviewable file instead of a shell
// history of flag invocations.
package experiment

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/floegence/llm-loop-lab/internal/provider"
	"github.com/floegence/llm-loop-lab/internal/runner"
)

type specFile struct {
	Version string     `yaml:"version"`
	Runs    []specItem `yaml:"runs"`
}

type specItem struct {
	Name          string   `yaml:"name"`
	Mode          string   `yaml:"mode"`
	Model         string   `yaml:"model"`
	Scenario      string   `yaml:"scenario"`
	ScenarioFile  string   `yaml:"scenario_file"`
	Samples       int      `yaml:"samples"`
	Iterations    int      `yaml:"iterations"`
	Thoughts      int      `yaml:"thoughts"`
	HistoryWindow int      `yaml:"history_window"`
	PerturbAt     *int     `yaml:"perturb_at"`
	PerturbText   string   `yaml:"perturb_text"`
	Temperature   *float64 `yaml:"temperature"`
	TopP          *float64 `yaml:"top_p"`
	Seed          *int     `yaml:"seed"`
	RepeatPenalty *float64 `yaml:"repeat_penalty"`
	MaxNoteItems  int      `yaml:"max_note_items"`
	Out           string   `yaml:"out"`
}

// Run is one resolved run definition. Config is complete except for fields the
// CLI supplies (model fallback comes from config when the item omits it).
type Run struct {
	Name   string
	Out    string
	Config runner.Config
}

// Load reads a spec file and resolves every run in it. scenario_file paths are
// resolved relative to the spec file's directory.
func Load(specPath string, defaults provider.Sampling) ([]Run, error) {
	cleanPath := strings.TrimSpace(specPath)
	if cleanPath == "" {
		return nil, fmt.Errorf("missing experiment spec path")
	}
	cleanPath = filepath.Clean(cleanPath)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, err
	}
	var spec specFile
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	if len(spec.Runs) == 0 {
		return nil, fmt.Errorf("experiment spec has no runs")
	}

	baseDir := filepath.Dir(cleanPath)
	out := make([]Run, 0, len(spec.Runs))
	seen := make(map[string]bool, len(spec.Runs))
	for i, item := range spec.Runs {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			name = fmt.Sprintf("run-%d", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate run name %q", name)
		}
		seen[name] = true

		mode := strings.TrimSpace(strings.ToLower(item.Mode))
		switch mode {
		case runner.ModeBatch, runner.ModeRefinement, runner.ModeStepwise:
		default:
			return nil, fmt.Errorf("run %s has invalid mode: %s", name, item.Mode)
		}

		scenario, err := resolveScenario(baseDir, item)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", name, err)
		}

		sampling := defaults
		if item.Temperature != nil {
			sampling.Temperature = *item.Temperature
		}
		if item.TopP != nil {
			sampling.TopP = *item.TopP
		}
		if item.Seed != nil {
			sampling.Seed = item.Seed
		}
		if item.RepeatPenalty != nil {
			sampling.RepeatPenalty = *item.RepeatPenalty
		}

		out = append(out, Run{
			Name: name,
			Out:  strings.TrimSpace(item.Out),
			Config: runner.Config{
				Mode:          mode,
				Model:         strings.TrimSpace(item.Model),
				Scenario:      scenario,
				Samples:       item.Samples,
				Iterations:    item.Iterations,
				Thoughts:      item.Thoughts,
				HistoryWindow: item.HistoryWindow,
				PerturbAt:     item.PerturbAt,
				PerturbText:   strings.TrimSpace(item.PerturbText),
				Sampling:      sampling,
				MaxNoteItems:  item.MaxNoteItems,
			},
		})
	}
	return out, nil
}

func resolveScenario(baseDir string, item specItem) (string, error) {
	inline := strings.TrimSpace(item.Scenario)
	file := strings.TrimSpace(item.ScenarioFile)
	switch {
	case inline != "" && file != "":
		return "", fmt.Errorf("scenario and scenario_file are mutually exclusive")
	case inline != "":
		return inline, nil
	case file != "":
		if !filepath.IsAbs(file) {
			file = filepath.Join(baseDir, file)
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read scenario_file: %w", err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return "", fmt.Errorf("scenario_file %s is empty", file)
		}
		return text, nil
	default:
		return "", fmt.Errorf("missing scenario")
	}
}
