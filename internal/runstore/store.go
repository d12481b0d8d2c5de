// Package runstore archives finished JSONL run logs into a local SQLite
// database so that many runs can be queried together. The JSONL file stays the
// source of truth; the archive keeps the full record JSON alongside the
// columns worth filtering on.
package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/floegence/llm-loop-lab/internal/runlog"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	p := filepath.Clean(strings.TrimSpace(path))
	if p == "" {
		return nil, errors.New("missing db path")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Run is one archived run, keyed by the run_id from the log header.
type Run struct {
	RunID            string `json:"run_id"`
	Mode             string `json:"mode"`
	Model            string `json:"model"`
	StartedAt        string `json:"started_at"`
	LogPath          string `json:"log_path"`
	Records          int    `json:"records"`
	ArchivedAtUnixMs int64  `json:"archived_at_unix_ms"`
}

// ArchiveLog ingests one JSONL run log. The log's leading header line supplies
// the run identity; re-archiving the same run_id replaces its records.
func (s *Store) ArchiveLog(ctx context.Context, logPath string) (*Run, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var head *runlog.RunHeader
	type row struct {
		idx         int
		mode        string
		latencyMS   int64
		parseFailed bool
		perturbed   bool
		recordJSON  string
	}
	var rows []row

	err := runlog.ForEachLine(logPath, func(line []byte) error {
		var obj map[string]any
		if err := json.Unmarshal(line, &obj); err != nil {
			return fmt.Errorf("malformed log line: %w", err)
		}
		if obj["kind"] == runlog.KindRunHeader {
			var h runlog.RunHeader
			if err := json.Unmarshal(line, &h); err != nil {
				return fmt.Errorf("malformed run header: %w", err)
			}
			head = &h
			return nil
		}
		mode, _ := obj["mode"].(string)
		r := row{idx: len(rows), mode: mode, recordJSON: string(line)}
		if v, ok := obj["latency_ms"].(float64); ok {
			r.latencyMS = int64(v)
		}
		if resp, ok := obj["response"].(map[string]any); ok {
			_, r.parseFailed = resp["parse_error"]
		}
		if cl, ok := obj["change_log"].(string); ok && cl != "" {
			r.perturbed = true
		}
		rows = append(rows, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if head == nil {
		return nil, fmt.Errorf("log %s has no run header", logPath)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	archivedAt := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, mode, model, started_at, log_path, archived_at_unix_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			mode = excluded.mode,
			model = excluded.model,
			started_at = excluded.started_at,
			log_path = excluded.log_path,
			archived_at_unix_ms = excluded.archived_at_unix_ms
	`, head.RunID, head.Mode, head.Model, head.StartedAt, logPath, archivedAt); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE run_id = ?`, head.RunID); err != nil {
		return nil, fmt.Errorf("clear records: %w", err)
	}
	for _, r := range rows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO records (run_id, idx, mode, latency_ms, parse_failed, perturbed, record_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, head.RunID, r.idx, r.mode, r.latencyMS, boolInt(r.parseFailed), boolInt(r.perturbed), r.recordJSON); err != nil {
			return nil, fmt.Errorf("insert record %d: %w", r.idx, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &Run{
		RunID:            head.RunID,
		Mode:             head.Mode,
		Model:            head.Model,
		StartedAt:        head.StartedAt,
		LogPath:          logPath,
		Records:          len(rows),
		ArchivedAtUnixMs: archivedAt,
	}, nil
}

// ListRuns returns archived runs, most recently archived first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.run_id, r.mode, r.model, r.started_at, r.log_path, r.archived_at_unix_ms,
			(SELECT COUNT(*) FROM records WHERE records.run_id = r.run_id)
		FROM runs r
		ORDER BY r.archived_at_unix_ms DESC, r.run_id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.Mode, &r.Model, &r.StartedAt, &r.LogPath, &r.ArchivedAtUnixMs, &r.Records); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ModeStats is an aggregate over the archived records of one mode.
type ModeStats struct {
	Mode         string  `json:"mode"`
	Records      int     `json:"records"`
	ParseFailed  int     `json:"parse_failed"`
	Perturbed    int     `json:"perturbed"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
}

// StatsByMode aggregates every archived record, grouped by mode.
func (s *Store) StatsByMode(ctx context.Context) ([]ModeStats, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT mode, COUNT(*), SUM(parse_failed), SUM(perturbed), AVG(latency_ms)
		FROM records
		GROUP BY mode
		ORDER BY mode
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModeStats
	for rows.Next() {
		var st ModeStats
		if err := rows.Scan(&st.Mode, &st.Records, &st.ParseFailed, &st.Perturbed, &st.AvgLatencyMS); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func initSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("nil db")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return fmt.Errorf("pragma journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=3000;`); err != nil {
		return fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			model TEXT NOT NULL,
			started_at TEXT NOT NULL DEFAULT '',
			log_path TEXT NOT NULL DEFAULT '',
			archived_at_unix_ms INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			mode TEXT NOT NULL,
			latency_ms INTEGER NOT NULL DEFAULT 0,
			parse_failed INTEGER NOT NULL DEFAULT 0,
			perturbed INTEGER NOT NULL DEFAULT 0,
			record_json TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_records_run ON records(run_id, idx);
	`); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}
