package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists counters and summary timestamps in a local SQLite
// database. All write paths are serialized through a mutex so concurrent
// increments from the turn handler and the scheduler never lose updates.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (and initializes if needed) the counter database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open counter database: %w", err)
	}

	// WAL keeps readers from blocking the per-turn increment path.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS message_counts (
			session_id TEXT PRIMARY KEY,
			count INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS summary_times (
			session_id TEXT PRIMARY KEY,
			last_summary_timestamp REAL NOT NULL
		);`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) IncrementCount(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("empty session id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(
		`INSERT OR IGNORE INTO message_counts (session_id, count) VALUES (?, 0)`,
		sessionID,
	); err != nil {
		return fmt.Errorf("failed to seed count row: %w", err)
	}
	if _, err := s.db.Exec(
		`UPDATE message_counts SET count = count + 1 WHERE session_id = ?`,
		sessionID,
	); err != nil {
		return fmt.Errorf("failed to increment count: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ResetCount(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("empty session id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO message_counts (session_id, count) VALUES (?, 0)
		 ON CONFLICT(session_id) DO UPDATE SET count = 0`,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to reset count: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetCount(sessionID string) (int, error) {
	if sessionID == "" {
		return 0, nil
	}
	row := s.db.QueryRow(
		`SELECT count FROM message_counts WHERE session_id = ?`, sessionID,
	)
	var count int
	if err := row.Scan(&count); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read count: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) ReconcileCount(sessionID string, historyLen int) error {
	if sessionID == "" {
		return fmt.Errorf("empty session id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// The guard in the WHERE clause makes this a no-op unless the stored
	// count exceeds the live history; counts are never forced up.
	_, err := s.db.Exec(
		`UPDATE message_counts SET count = ? WHERE session_id = ? AND count > ?`,
		historyLen, sessionID, historyLen,
	)
	if err != nil {
		return fmt.Errorf("failed to reconcile count: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetLastSummaryTime(sessionID string) (float64, bool, error) {
	row := s.db.QueryRow(
		`SELECT last_summary_timestamp FROM summary_times WHERE session_id = ?`,
		sessionID,
	)
	var ts float64
	if err := row.Scan(&ts); err != nil {
		if err == sql.ErrNoRows {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read summary time: %w", err)
	}
	return ts, true, nil
}

func (s *SQLiteStore) SetLastSummaryTime(sessionID string, epochSeconds float64) error {
	if sessionID == "" {
		return fmt.Errorf("empty session id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO summary_times (session_id, last_summary_timestamp) VALUES (?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET last_summary_timestamp = excluded.last_summary_timestamp`,
		sessionID, epochSeconds,
	)
	if err != nil {
		return fmt.Errorf("failed to persist summary time: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
