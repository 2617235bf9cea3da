// Package state keeps the worker's local bookkeeping in SQLite: job run
// history for the scheduler and HTTP validators for conditional fetches.
package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite-backed worker state.
type Store struct {
	db   *sql.DB
	path string
}

// Run is one recorded job execution.
type Run struct {
	ID         int64
	Job        string
	StartedAt  time.Time
	FinishedAt time.Time
	Success    bool
	Counters   map[string]int
}

// NewStore opens (creating if needed) the state database under dataDir.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "curio.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize state database: %w", err)
	}
	return store, nil
}

func (s *Store) initialize() error {
	runsTable := `
	CREATE TABLE IF NOT EXISTS job_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		success INTEGER NOT NULL,
		counters TEXT
	);`

	validatorsTable := `
	CREATE TABLE IF NOT EXISTS http_validators (
		url TEXT PRIMARY KEY,
		etag TEXT,
		last_modified TEXT,
		updated_at DATETIME NOT NULL
	);`

	for _, table := range []string{runsTable, validatorsTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun appends one job execution to the run history.
func (s *Store) RecordRun(run Run) error {
	var counters []byte
	if run.Counters != nil {
		var err error
		counters, err = json.Marshal(run.Counters)
		if err != nil {
			return fmt.Errorf("failed to marshal counters: %w", err)
		}
	}

	query := `
	INSERT INTO job_runs (job, started_at, finished_at, success, counters)
	VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.Exec(query,
		run.Job, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Success, string(counters))
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// LastSuccessfulRun returns when the named job last finished successfully.
// The second return is false when the job has never succeeded.
func (s *Store) LastSuccessfulRun(job string) (time.Time, bool, error) {
	query := `
	SELECT finished_at FROM job_runs
	WHERE job = ? AND success = 1
	ORDER BY finished_at DESC
	LIMIT 1`

	var finished time.Time
	err := s.db.QueryRow(query, job).Scan(&finished)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query last run: %w", err)
	}
	return finished.UTC(), true, nil
}

// RecentRuns returns up to limit runs of the named job, newest first.
func (s *Store) RecentRuns(job string, limit int) ([]Run, error) {
	query := `
	SELECT id, job, started_at, finished_at, success, counters
	FROM job_runs
	WHERE job = ?
	ORDER BY finished_at DESC
	LIMIT ?`

	rows, err := s.db.Query(query, job, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var counters sql.NullString
		if err := rows.Scan(&run.ID, &run.Job, &run.StartedAt, &run.FinishedAt, &run.Success, &counters); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if counters.Valid && counters.String != "" {
			if err := json.Unmarshal([]byte(counters.String), &run.Counters); err != nil {
				return nil, fmt.Errorf("failed to unmarshal counters: %w", err)
			}
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Validators returns the cached ETag and Last-Modified for a URL. Both are
// empty when the URL has not been fetched before.
func (s *Store) Validators(url string) (etag, lastModified string, err error) {
	query := `SELECT etag, last_modified FROM http_validators WHERE url = ?`

	var e, lm sql.NullString
	err = s.db.QueryRow(query, url).Scan(&e, &lm)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to query validators: %w", err)
	}
	return e.String, lm.String, nil
}

// SetValidators stores the validators returned by the last fetch of url.
// Empty values clear the cached entry's fields.
func (s *Store) SetValidators(url, etag, lastModified string) error {
	query := `
	INSERT OR REPLACE INTO http_validators (url, etag, last_modified, updated_at)
	VALUES (?, ?, ?, ?)`

	if _, err := s.db.Exec(query, url, etag, lastModified, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to store validators: %w", err)
	}
	return nil
}
