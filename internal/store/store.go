// Package store persists problems, notebooks, versioned cells, agent runs,
// context summaries and pipeline sessions in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Astrasv/EVoCv2-LLM-Pipeline/internal/logging"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConcurrentWrite is returned by Supersede when another writer
	// committed a newer version first.
	ErrConcurrentWrite = errors.New("concurrent write conflict")
)

// Store is a SQLite-backed persistence layer. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			logging.Debug("store: pragma failed", "pragma", pragma, "error", err)
		}
	}

	s := &Store{db: db, path: path, now: time.Now}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.Debug("store: opened", "path", path)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the path the store was opened with.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initialize() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("%s: %w", firstLine(stmt), err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS problems (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		problem_type TEXT NOT NULL,
		constraints TEXT NOT NULL DEFAULT '{}',
		objectives TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS notebooks (
		id TEXT PRIMARY KEY,
		problem_id TEXT NOT NULL REFERENCES problems(id),
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		toolbox TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cells (
		id TEXT PRIMARY KEY,
		notebook_id TEXT NOT NULL REFERENCES notebooks(id) ON DELETE CASCADE,
		cell_type TEXT NOT NULL,
		code TEXT NOT NULL,
		agent_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		position INTEGER NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		UNIQUE(notebook_id, cell_type, version)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_cells_one_active
		ON cells(notebook_id, cell_type) WHERE is_active = 1`,
	`CREATE INDEX IF NOT EXISTS idx_cells_notebook ON cells(notebook_id, position)`,
	`CREATE TABLE IF NOT EXISTS agent_runs (
		id TEXT PRIMARY KEY,
		notebook_id TEXT NOT NULL REFERENCES notebooks(id) ON DELETE CASCADE,
		session_id TEXT NOT NULL DEFAULT '',
		iteration INTEGER NOT NULL,
		agent_id TEXT NOT NULL,
		cell_type TEXT NOT NULL,
		cell_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		output TEXT NOT NULL DEFAULT '',
		token_usage INTEGER NOT NULL DEFAULT 0,
		execution_ms INTEGER NOT NULL DEFAULT 0,
		reasoning TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_agent_runs_notebook ON agent_runs(notebook_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS context_summaries (
		id TEXT PRIMARY KEY,
		notebook_id TEXT NOT NULL REFERENCES notebooks(id) ON DELETE CASCADE,
		summary TEXT NOT NULL,
		range_from INTEGER NOT NULL,
		range_to INTEGER NOT NULL,
		token_count INTEGER NOT NULL,
		is_current INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_summaries_notebook ON context_summaries(notebook_id, is_current)`,
	`CREATE TABLE IF NOT EXISTS pipeline_sessions (
		id TEXT PRIMARY KEY,
		notebook_id TEXT NOT NULL REFERENCES notebooks(id) ON DELETE CASCADE,
		state TEXT NOT NULL,
		stage INTEGER NOT NULL DEFAULT 0,
		retries TEXT NOT NULL DEFAULT '{}',
		reason TEXT NOT NULL DEFAULT '',
		cancel_requested INTEGER NOT NULL DEFAULT 0,
		heartbeat_at INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_notebook ON pipeline_sessions(notebook_id, updated_at)`,
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func (s *Store) stamp() int64 {
	return s.now().UnixNano()
}

func fromStamp(ns int64) time.Time {
	return time.Unix(0, ns)
}

// withTx runs fn inside a transaction, committing on nil error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func notFound(what, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return err
}
