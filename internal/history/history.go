// Package history persists build run outcomes in a local SQLite database so
// past runs can be inspected after the terminal output is gone.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"git.home.luguber.info/inful/plugbuild/internal/orchestrator"
)

// Run is one recorded orchestration run.
type Run struct {
	ID       string
	Started  time.Time
	Duration time.Duration
	Success  bool
	Built    int
	Skipped  int
	Failed   int
}

// PluginOutcome is one plugin's recorded result within a run.
type PluginOutcome struct {
	Plugin string
	Status string
	Reason string
	Error  string
}

// Store records and queries run history.
// Use ":memory:" for an in-memory database, or a file path for persistence.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore opens (and if needed initializes) the history database.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}
	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		success INTEGER NOT NULL,
		built INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		failed INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS run_plugins (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		plugin TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started);
	CREATE INDEX IF NOT EXISTS idx_run_plugins_run ON run_plugins(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores one run result and its per-plugin outcomes in a single
// transaction.
func (s *Store) Record(ctx context.Context, result *orchestrator.Result, started time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO runs (id, started, duration_ms, success, built, skipped, failed) VALUES (?, ?, ?, ?, ?, ?, ?)",
		result.RunID, started.Unix(), result.Duration.Milliseconds(),
		boolInt(result.OverallSuccess), result.Built, result.SkippedCount, result.FailedCount,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for plugin, outcome := range result.PerPlugin {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO run_plugins (run_id, plugin, status, reason, error) VALUES (?, ?, ?, ?, ?)",
			result.RunID, plugin, string(outcome.Status), string(outcome.Reason), outcome.Error,
		)
		if err != nil {
			return fmt.Errorf("insert plugin outcome: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history transaction: %w", err)
	}
	return nil
}

// Recent returns the most recent runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, started, duration_ms, success, built, skipped, failed FROM runs ORDER BY started DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var started, durationMS int64
		var success int
		if err := rows.Scan(&run.ID, &started, &durationMS, &success, &run.Built, &run.Skipped, &run.Failed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Started = time.Unix(started, 0)
		run.Duration = time.Duration(durationMS) * time.Millisecond
		run.Success = success != 0
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Plugins returns the per-plugin outcomes for one run, ordered by plugin
// name.
func (s *Store) Plugins(ctx context.Context, runID string) ([]PluginOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT plugin, status, reason, error FROM run_plugins WHERE run_id = ? ORDER BY plugin",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query plugin outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []PluginOutcome
	for rows.Next() {
		var o PluginOutcome
		if err := rows.Scan(&o.Plugin, &o.Status, &o.Reason, &o.Error); err != nil {
			return nil, fmt.Errorf("scan plugin outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
