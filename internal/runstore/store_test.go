package runstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeLog(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run_log.jsonl")
	if err := os.WriteFile(path, []byte(lines), 0o600); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

const sampleLog = `{"kind":"run_header","run_id":"run_1","mode":"refinement","model":"llama3.2:3b","params":{"temperature":0.7,"top_p":0.9},"started_at":"2026-08-31T10:00:00Z","host":{}}
{"mode":"refinement","latency_ms":120,"iteration":0,"response":{"answer":"a"},"change_log":""}
{"mode":"refinement","latency_ms":80,"iteration":1,"response":{"raw_text":"garbage","parse_error":"no json object found"},"change_log":"CHANGE LOG applied at iteration 1: X"}
`

func TestArchiveLogAndStats(t *testing.T) {
	t.Parallel()
	s, err := Open(filepath.Join(t.TempDir(), "archive.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	logPath := writeLog(t, sampleLog)

	run, err := s.ArchiveLog(ctx, logPath)
	if err != nil {
		t.Fatalf("ArchiveLog: %v", err)
	}
	if run.RunID != "run_1" || run.Mode != "refinement" || run.Records != 2 {
		t.Fatalf("run=%+v", run)
	}

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Records != 2 {
		t.Fatalf("runs=%+v", runs)
	}

	stats, err := s.StatsByMode(ctx)
	if err != nil {
		t.Fatalf("StatsByMode: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("stats=%+v", stats)
	}
	st := stats[0]
	if st.Mode != "refinement" || st.Records != 2 || st.ParseFailed != 1 || st.Perturbed != 1 {
		t.Fatalf("stats=%+v", st)
	}
	if st.AvgLatencyMS != 100 {
		t.Fatalf("avg latency=%v, want 100", st.AvgLatencyMS)
	}
}

func TestArchiveLogIsIdempotent(t *testing.T) {
	t.Parallel()
	s, err := Open(filepath.Join(t.TempDir(), "archive.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	logPath := writeLog(t, sampleLog)
	for i := 0; i < 2; i++ {
		if _, err := s.ArchiveLog(ctx, logPath); err != nil {
			t.Fatalf("ArchiveLog %d: %v", i, err)
		}
	}

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("re-archiving duplicated the run: %+v", runs)
	}
	if runs[0].Records != 2 {
		t.Fatalf("records=%d, want 2", runs[0].Records)
	}
}

func TestArchiveLogRequiresHeader(t *testing.T) {
	t.Parallel()
	s, err := Open(filepath.Join(t.TempDir(), "archive.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	logPath := writeLog(t, `{"mode":"batch","iteration":0,"response":{}}`+"\n")
	if _, err := s.ArchiveLog(context.Background(), logPath); err == nil {
		t.Fatalf("headerless log accepted")
	}
}
