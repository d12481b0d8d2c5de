package runlog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/floegence/llm-loop-lab/internal/extract"
	"github.com/floegence/llm-loop-lab/internal/notes"
	"github.com/floegence/llm-loop-lab/internal/provider"
	"github.com/floegence/llm-loop-lab/internal/sysinfo"
)

// KindRunHeader tags the leading per-run metadata line. Iteration records
// carry no kind tag.
const KindRunHeader = "run_header"

// Header carries the fields shared by every iteration record.
type Header struct {
	Mode       string            `json:"mode"`
	Timestamp  string            `json:"timestamp"`
	Model      string            `json:"model"`
	Params     provider.Sampling `json:"params"`
	Scenario   string            `json:"scenario"`
	PromptKind string            `json:"prompt_kind"`
	LatencyMS  int64             `json:"latency_ms"`
}

// BatchRecord is one stateless resampling iteration.
type BatchRecord struct {
	Header
	Iteration int             `json:"iteration"`
	Response  extract.Payload `json:"response"`
}

// RefinementRecord is one iterative-refinement iteration, including the
// post-update notes snapshot.
type RefinementRecord struct {
	Header
	Iteration  int             `json:"iteration"`
	PriorNotes notes.Notes     `json:"prior_notes"`
	Response   extract.Payload `json:"response"`
	ChangeLog  string          `json:"change_log"`
}

// StepwiseRecord is one stepwise-thought step. NextThought and ThoughtsSoFar
// are always present, even when the step produced no usable thought.
type StepwiseRecord struct {
	Header
	Step          int             `json:"step"`
	PriorNotes    notes.Notes     `json:"prior_notes"`
	Response      extract.Payload `json:"response"`
	NextThought   string          `json:"next_thought"`
	ThoughtsSoFar int             `json:"thoughts_so_far"`
	HistoryWindow int             `json:"history_window"`
	ChangeLog     string          `json:"change_log"`
}

// RunHeader is the leading line of a run, recorded once before any iteration.
type RunHeader struct {
	Kind      string            `json:"kind"`
	RunID     string            `json:"run_id"`
	Mode      string            `json:"mode"`
	Model     string            `json:"model"`
	Params    provider.Sampling `json:"params"`
	StartedAt string            `json:"started_at"`
	Host      sysinfo.Snapshot  `json:"host"`
}

// Store is an append-only JSONL log. The file is opened, appended, and closed
// on every record so a crash after k iterations leaves exactly k complete lines.
type Store struct {
	path string
}

func New(path string) (*Store, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("missing log path")
	}
	if dir := filepath.Dir(p); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}
	return &Store{path: filepath.Clean(p)}, nil
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Append writes one record as a single JSON line. Any failure is returned to
// the caller; silently dropping a record would break the append-only audit
// guarantee.
func (s *Store) Append(record any) error {
	if s == nil {
		return errors.New("nil store")
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(record); err != nil {
		_ = f.Close()
		return fmt.Errorf("append log record: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close log: %w", err)
	}
	return nil
}

// ForEachLine streams the log as independent JSON objects, never as one
// document. fn receives each non-empty line.
func ForEachLine(path string, fn func(line []byte) error) error {
	f, err := os.Open(strings.TrimSpace(path))
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	// Long scenarios and raw-text error payloads can produce large lines.
	sc.Buffer(make([]byte, 0, 64*1024), 8<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := fn([]byte(line)); err != nil {
			return err
		}
	}
	return sc.Err()
}
