package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleLog = `{"kind":"run_header","run_id":"run_9","mode":"stepwise","model":"llama3.2:3b","started_at":"2026-08-31T09:00:00Z"}
{"mode":"stepwise","latency_ms":100,"step":0,"response":{"next_thought":"a"},"change_log":""}
{"mode":"stepwise","latency_ms":200,"step":1,"response":{"raw_text":"x","parse_error":"no json object found"},"change_log":"CHANGE LOG applied at step 1: Y"}
{"mode":"stepwise","latency_ms":300,"step":2,"response":{"next_thought":"b"},"change_log":""}
`

func TestSummarizeLog(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "log.jsonl")
	if err := os.WriteFile(path, []byte(sampleLog), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	sum, err := summarizeLog(path)
	if err != nil {
		t.Fatalf("summarizeLog: %v", err)
	}
	if sum.RunID != "run_9" || sum.Mode != "stepwise" || sum.Model != "llama3.2:3b" {
		t.Fatalf("identity fields: %+v", sum)
	}
	if sum.Records != 3 || sum.ParseErrors != 1 || sum.Perturbed != 1 {
		t.Fatalf("counts: %+v", sum)
	}
	if sum.AvgLatency != 200 {
		t.Fatalf("avg latency=%v, want 200", sum.AvgLatency)
	}
}

func TestSummarizeLogRejectsEmpty(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "log.jsonl")
	if err := os.WriteFile(path, []byte(`{"kind":"run_header","run_id":"run_9"}`+"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := summarizeLog(path); err == nil {
		t.Fatalf("record-less log accepted")
	}
}

func TestWriteMarkdown(t *testing.T) {
	t.Parallel()
	rep := report{
		GeneratedAt: time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC),
		Logs: []logSummary{
			{RunID: "run_9", Mode: "stepwise", Model: "llama3.2:3b", Records: 3, ParseErrors: 1, Perturbed: 1, AvgLatency: 200},
		},
		Modes: []modeSummary{
			{Mode: "stepwise", Records: 3, ParseErrors: 1, ParseErrorRate: 1.0 / 3, AvgLatency: 200},
		},
	}
	path := filepath.Join(t.TempDir(), "report.md")
	if err := writeMarkdown(path, rep); err != nil {
		t.Fatalf("writeMarkdown: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	out := string(data)
	for _, want := range []string{"# LLM Loop Report", "`run_9`", "| stepwise |", "0.33"} {
		if !strings.Contains(out, want) {
			t.Fatalf("markdown missing %q:\n%s", want, out)
		}
	}
}
