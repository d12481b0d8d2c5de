package runlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/floegence/llm-loop-lab/internal/extract"
	"github.com/floegence/llm-loop-lab/internal/notes"
)

func TestAppendWritesIndependentLines(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "logs", "run_log.jsonl")
	store, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	head := RunHeader{Kind: KindRunHeader, RunID: "run_abc", Mode: "batch", Model: "m"}
	if err := store.Append(&head); err != nil {
		t.Fatalf("Append header: %v", err)
	}
	rec := BatchRecord{
		Header:    Header{Mode: "batch", Model: "m", Scenario: "s <with> markup", LatencyMS: 12},
		Iteration: 0,
		Response:  extract.Payload{"answer": "ok"},
	}
	if err := store.Append(&rec); err != nil {
		t.Fatalf("Append record: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines=%d, want 2", len(lines))
	}
	// Each line must parse on its own.
	for i, line := range lines {
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			t.Fatalf("line %d not standalone JSON: %v", i, err)
		}
	}
	if strings.Contains(lines[1], `<`) {
		t.Fatalf("HTML escaping must be off: %s", lines[1])
	}
}

func TestAppendSurvivesReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "run_log.jsonl")

	for i := 0; i < 3; i++ {
		store, err := New(path)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		rec := RefinementRecord{
			Header:     Header{Mode: "refinement"},
			Iteration:  i,
			PriorNotes: notes.Empty(),
			Response:   extract.Payload{},
		}
		if err := store.Append(&rec); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	var got []int
	err := ForEachLine(path, func(line []byte) error {
		var rec RefinementRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return err
		}
		got = append(got, rec.Iteration)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachLine: %v", err)
	}
	if len(got) != 3 || got[0] != 0 || got[2] != 2 {
		t.Fatalf("iterations=%v", got)
	}
}

func TestStepwiseRecordKeepsEmptyFields(t *testing.T) {
	t.Parallel()
	rec := StepwiseRecord{
		Header:     Header{Mode: "stepwise"},
		PriorNotes: notes.Empty(),
		Response:   extract.Payload{},
	}
	data, err := json.Marshal(&rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"next_thought", "thoughts_so_far", "history_window", "change_log"} {
		if _, ok := obj[key]; !ok {
			t.Fatalf("missing key %q in %s", key, data)
		}
	}
}

func TestForEachLineSkipsBlank(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "log.jsonl")
	if err := os.WriteFile(path, []byte("{\"a\":1}\n\n{\"a\":2}\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	var n int
	if err := ForEachLine(path, func([]byte) error { n++; return nil }); err != nil {
		t.Fatalf("ForEachLine: %v", err)
	}
	if n != 2 {
		t.Fatalf("lines=%d, want 2", n)
	}
}

func TestNewRejectsEmptyPath(t *testing.T) {
	t.Parallel()
	if _, err := New("   "); err == nil {
		t.Fatalf("empty path accepted")
	}
}
