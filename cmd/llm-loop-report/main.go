package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/floegence/llm-loop-lab/internal/runlog"
	"github.com/floegence/llm-loop-lab/internal/runstore"
)

type logSummary struct {
	LogPath     string  `json:"log_path"`
	RunID       string  `json:"run_id"`
	Mode        string  `json:"mode"`
	Model       string  `json:"model"`
	StartedAt   string  `json:"started_at"`
	Records     int     `json:"records"`
	ParseErrors int     `json:"parse_errors"`
	Perturbed   int     `json:"perturbed"`
	AvgLatency  float64 `json:"avg_latency_ms"`
}

type modeSummary struct {
	Mode           string  `json:"mode"`
	Records        int     `json:"records"`
	ParseErrors    int     `json:"parse_errors"`
	ParseErrorRate float64 `json:"parse_error_rate"`
	AvgLatency     float64 `json:"avg_latency_ms"`
}

type report struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Logs        []logSummary  `json:"logs"`
	Modes       []modeSummary `json:"modes"`
}

func main() {
	fs := flag.NewFlagSet("llm-loop-report", flag.ExitOnError)
	outDir := fs.String("out-dir", ".", "directory for report.json and report.md")
	archiveDB := fs.String("archive-db", "", "optional SQLite database to archive the logs into")
	_ = fs.Parse(os.Args[1:])

	logPaths := fs.Args()
	if len(logPaths) == 0 {
		fmt.Fprintf(os.Stderr, "Usage: llm-loop-report [flags] <run_log.jsonl> [more logs...]\n\n")
		fs.PrintDefaults()
		os.Exit(2)
	}

	rep := report{GeneratedAt: time.Now().UTC()}
	totals := map[string]*modeSummary{}
	latencySums := map[string]int64{}
	for _, logPath := range logPaths {
		sum, err := summarizeLog(logPath)
		if err != nil {
			fatalf("failed to read %s: %v", logPath, err)
		}
		rep.Logs = append(rep.Logs, sum)

		ms := totals[sum.Mode]
		if ms == nil {
			ms = &modeSummary{Mode: sum.Mode}
			totals[sum.Mode] = ms
		}
		ms.Records += sum.Records
		ms.ParseErrors += sum.ParseErrors
		latencySums[sum.Mode] += int64(sum.AvgLatency * float64(sum.Records))
	}
	for _, mode := range sortedModes(totals) {
		ms := totals[mode]
		if ms.Records > 0 {
			ms.ParseErrorRate = float64(ms.ParseErrors) / float64(ms.Records)
			ms.AvgLatency = float64(latencySums[mode]) / float64(ms.Records)
		}
		rep.Modes = append(rep.Modes, *ms)
	}

	if err := os.MkdirAll(*outDir, 0o700); err != nil {
		fatalf("failed to create output dir: %v", err)
	}
	jsonPath := filepath.Join(*outDir, "report.json")
	mdPath := filepath.Join(*outDir, "report.md")
	if err := writeJSON(jsonPath, rep); err != nil {
		fatalf("failed to write report.json: %v", err)
	}
	if err := writeMarkdown(mdPath, rep); err != nil {
		fatalf("failed to write report.md: %v", err)
	}
	fmt.Printf("Report written: %s, %s\n", jsonPath, mdPath)

	if strings.TrimSpace(*archiveDB) != "" {
		if err := archiveLogs(*archiveDB, logPaths); err != nil {
			fatalf("failed to archive logs: %v", err)
		}
		fmt.Printf("Archived %d log(s) into %s\n", len(logPaths), *archiveDB)
	}
}

func summarizeLog(logPath string) (logSummary, error) {
	sum := logSummary{LogPath: logPath}
	var latencyTotal int64
	err := runlog.ForEachLine(logPath, func(line []byte) error {
		var obj map[string]any
		if err := json.Unmarshal(line, &obj); err != nil {
			return fmt.Errorf("malformed log line: %w", err)
		}
		if obj["kind"] == runlog.KindRunHeader {
			sum.RunID, _ = obj["run_id"].(string)
			sum.Mode, _ = obj["mode"].(string)
			sum.Model, _ = obj["model"].(string)
			sum.StartedAt, _ = obj["started_at"].(string)
			return nil
		}
		sum.Records++
		if mode, _ := obj["mode"].(string); sum.Mode == "" {
			sum.Mode = mode
		}
		if v, ok := obj["latency_ms"].(float64); ok {
			latencyTotal += int64(v)
		}
		if resp, ok := obj["response"].(map[string]any); ok {
			if _, failed := resp["parse_error"]; failed {
				sum.ParseErrors++
			}
		}
		if cl, ok := obj["change_log"].(string); ok && cl != "" {
			sum.Perturbed++
		}
		return nil
	})
	if err != nil {
		return logSummary{}, err
	}
	if sum.Records == 0 {
		return logSummary{}, errors.New("log has no iteration records")
	}
	sum.AvgLatency = float64(latencyTotal) / float64(sum.Records)
	return sum, nil
}

func archiveLogs(dbPath string, logPaths []string) error {
	store, err := runstore.Open(dbPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	for _, logPath := range logPaths {
		if _, err := store.ArchiveLog(ctx, logPath); err != nil {
			return fmt.Errorf("%s: %w", logPath, err)
		}
	}
	return nil
}

func sortedModes(totals map[string]*modeSummary) []string {
	out := make([]string, 0, len(totals))
	for mode := range totals {
		out = append(out, mode)
	}
	sort.Strings(out)
	return out
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return os.WriteFile(path, b, 0o600)
}

func writeMarkdown(path string, rep report) error {
	if len(rep.Logs) == 0 {
		return errors.New("empty report")
	}
	var b strings.Builder
	b.WriteString("# LLM Loop Report\n\n")
	b.WriteString(fmt.Sprintf("- Generated at: %s\n", rep.GeneratedAt.Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("- Logs: %d\n", len(rep.Logs)))

	b.WriteString("\n## Runs\n\n")
	b.WriteString("| Run | Mode | Model | Records | Parse errors | Perturbed | Avg latency (ms) |\n")
	b.WriteString("|---|---|---|---:|---:|---:|---:|\n")
	for _, sum := range rep.Logs {
		b.WriteString(fmt.Sprintf("| `%s` | %s | `%s` | %d | %d | %d | %.0f |\n",
			sum.RunID, sum.Mode, sum.Model, sum.Records, sum.ParseErrors, sum.Perturbed, sum.AvgLatency))
	}

	b.WriteString("\n## By mode\n\n")
	b.WriteString("| Mode | Records | Parse errors | Parse error rate | Avg latency (ms) |\n")
	b.WriteString("|---|---:|---:|---:|---:|\n")
	for _, ms := range rep.Modes {
		b.WriteString(fmt.Sprintf("| %s | %d | %d | %.2f | %.0f |\n",
			ms.Mode, ms.Records, ms.ParseErrors, ms.ParseErrorRate, ms.AvgLatency))
	}

	return os.WriteFile(path, []byte(b.String()), 0o600)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[llm-loop-report] "+format+"\n", args...)
	os.Exit(1)
}
