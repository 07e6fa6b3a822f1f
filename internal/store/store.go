// Package store records execution outcomes for the lifetime of the
// worker process. The default DSN is :memory:, so nothing outlives the
// process unless the operator points DBPath at a file.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// isBusyLock reports whether err indicates SQLite database lock (SQLITE_BUSY).
func isBusyLock(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "database is locked") || strings.Contains(s, "SQLITE_BUSY")
}

// retryOnBusy runs fn and retries on SQLITE_BUSY with exponential backoff.
func retryOnBusy(fn func() error) error {
	const maxAttempts = 4
	backoff := 25 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isBusyLock(lastErr) {
			return lastErr
		}
		if attempt < maxAttempts-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return lastErr
}

// Execution is one processed worker request.
type Execution struct {
	ID         int64     `json:"id"`
	RequestID  string    `json:"request_id"`
	Language   string    `json:"language"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Sandbox    string    `json:"sandbox,omitempty"` // container name, python path only
	DurationMs float64   `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

type Store struct {
	db *sql.DB
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS executions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id  TEXT NOT NULL,
	language    TEXT NOT NULL,
	success     INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	sandbox     TEXT NOT NULL DEFAULT '',
	duration_ms REAL NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_created_at ON executions(created_at);
`

// dsnWithPragmas applies busy_timeout and WAL pragmas per-connection.
func dsnWithPragmas(dbPath string) string {
	return dbPath + "?_pragma=busy_timeout(15000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)"
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dsnWithPragmas(dbPath))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// The worker is sequential; a single connection also keeps an
	// in-memory database from vanishing between calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) RecordExecution(rec *Execution) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	err := retryOnBusy(func() error {
		res, e := s.db.Exec(
			`INSERT INTO executions (request_id, language, success, error, sandbox, duration_ms, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.RequestID, rec.Language, rec.Success, rec.Error, rec.Sandbox, rec.DurationMs, rec.CreatedAt.UTC(),
		)
		if e != nil {
			return e
		}
		rec.ID, _ = res.LastInsertId()
		return nil
	})
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// ListExecutions returns the most recent executions, newest first.
// limit <= 0 means no limit.
func (s *Store) ListExecutions(limit int) ([]*Execution, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(
		`SELECT id, request_id, language, success, error, sandbox, duration_ms, created_at
		 FROM executions ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing executions: %w", err)
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		var e Execution
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Language, &e.Success, &e.Error, &e.Sandbox, &e.DurationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning execution: %w", err)
		}
		execs = append(execs, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating executions: %w", err)
	}
	return execs, nil
}

// Counts returns how many executions succeeded and failed.
func (s *Store) Counts() (succeeded, failed int, err error) {
	row := s.db.QueryRow(
		`SELECT COALESCE(SUM(success), 0), COALESCE(SUM(1 - success), 0) FROM executions`,
	)
	if err := row.Scan(&succeeded, &failed); err != nil {
		return 0, 0, fmt.Errorf("counting executions: %w", err)
	}
	return succeeded, failed, nil
}
