// Package store persists sessions, verification attempts, and step
// completions to SQLite, and saves the analyzed snapshots alongside.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"sparkeye/internal/logging"
)

// Store wraps the session database. All methods are safe for concurrent
// use; writes serialize on a single connection.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// New opens (or creates) the database at path and ensures the schema.
func New(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "New")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("session store ready at %s", path)
	return s, nil
}

func (s *Store) initialize() error {
	sessionsTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		plan TEXT NOT NULL,
		source TEXT,
		provider TEXT,
		started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		ended_at DATETIME,
		completed INTEGER DEFAULT 0,
		last_step INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_plan ON sessions(plan);
	`

	attemptsTable := `
	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		step_id INTEGER NOT NULL,
		status TEXT NOT NULL,
		confidence REAL DEFAULT 0,
		feedback TEXT,
		model TEXT,
		cached INTEGER DEFAULT 0,
		latency_ms INTEGER DEFAULT 0,
		frame_seq INTEGER DEFAULT 0,
		frame_hash TEXT,
		snapshot_path TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_session ON attempts(session_id);
	CREATE INDEX IF NOT EXISTS idx_attempts_status ON attempts(status);
	`

	stepEventsTable := `
	CREATE TABLE IF NOT EXISTS step_events (
		session_id TEXT NOT NULL,
		step_id INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		completed_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY(session_id, step_id)
	);
	`

	for _, stmt := range []string{sessionsTable, attemptsTable, stepEventsTable} {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.dbPath }
