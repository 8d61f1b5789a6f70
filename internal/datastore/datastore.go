// Package datastore implements a small persistent key/value store: running,
// last_manual_run, last_scheduled_run, backups. Backed by modernc.org/sqlite
// (pure Go, no cgo) the way polarfoxDev/marina's internal/database package
// backs its own small embedded state with it.
package datastore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/viperadnan-git/usbackup/internal/model"
)

// Keys recognized by the Datastore.
const (
	KeyRunning           = "running"
	KeyLastManualRun     = "last_manual_run"
	KeyLastScheduledRun  = "last_scheduled_run"
	KeyBackups           = "backups"
)

// Store is the persistent key/value store. A single *Store is process-wide;
// writes are serialized under its own mutex (: "a single-writer
// backing store suffices").
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite-backed store at path, with
// WAL mode and a retry-with-backoff around the initial connection — the same
// defensive opening sequence polarfoxDev/marina's InitDB uses, since WAL
// mode's first writer can transiently see "database is locked".
func Open(path string) (*Store, error) {
	const maxRetries = 5
	const baseDelay = 100 * time.Millisecond

	var db *sql.DB
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(baseDelay * time.Duration(1<<uint(attempt-1)))
		}

		db, err = sql.Open("sqlite", path)
		if err != nil {
			continue
		}

		pragmas := []string{
			"PRAGMA busy_timeout = 10000",
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
		}
		pragmaFailed := false
		for _, p := range pragmas {
			if _, perr := db.Exec(p); perr != nil {
				db.Close()
				pragmaFailed = true
				err = perr
				break
			}
		}
		if pragmaFailed {
			continue
		}

		if _, cerr := db.Exec(`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value BLOB NOT NULL)`); cerr != nil {
			db.Close()
			err = cerr
			continue
		}

		return &Store{db: db}, nil
	}

	if db != nil {
		db.Close()
	}
	return nil, fmt.Errorf("datastore: failed to open %s after %d attempts: %w", path, maxRetries, err)
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// get reads the raw JSON blob for key, returning ok=false if absent.
func (s *Store) get(ctx context.Context, key string) (raw []byte, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key)
	var blob []byte
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return blob, true, nil
}

// set upserts the raw JSON blob for key.
func (s *Store) set(ctx context.Context, key string, raw []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, raw)
	return err
}

// SetRunning persists the running flag.
func (s *Store) SetRunning(ctx context.Context, running bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(running)
	if err != nil {
		return err
	}
	return s.set(ctx, KeyRunning, raw)
}

// Running reads the running flag; false if never set.
func (s *Store) Running(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok, err := s.get(ctx, KeyRunning)
	if err != nil || !ok {
		return false, err
	}
	var running bool
	if err := json.Unmarshal(raw, &running); err != nil {
		return false, err
	}
	return running, nil
}

// SetLastManualRun records the timestamp of the most recent `run` invocation.
func (s *Store) SetLastManualRun(ctx context.Context, t time.Time) error {
	return s.setTime(ctx, KeyLastManualRun, t)
}

// LastManualRun returns the zero time if never set.
func (s *Store) LastManualRun(ctx context.Context) (time.Time, error) {
	return s.getTime(ctx, KeyLastManualRun)
}

// SetLastScheduledRun records the timestamp of the most recent daemon-triggered run.
func (s *Store) SetLastScheduledRun(ctx context.Context, t time.Time) error {
	return s.setTime(ctx, KeyLastScheduledRun, t)
}

// LastScheduledRun returns the zero time if never set.
func (s *Store) LastScheduledRun(ctx context.Context) (time.Time, error) {
	return s.getTime(ctx, KeyLastScheduledRun)
}

func (s *Store) setTime(ctx context.Context, key string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.set(ctx, key, raw)
}

func (s *Store) getTime(ctx context.Context, key string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok, err := s.get(ctx, key)
	if err != nil || !ok {
		return time.Time{}, err
	}
	var t time.Time
	if err := json.Unmarshal(raw, &t); err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// Backups returns the full backups map (source name -> latest RunResult).
func (s *Store) Backups(ctx context.Context) (map[string]model.RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backupsLocked(ctx)
}

func (s *Store) backupsLocked(ctx context.Context) (map[string]model.RunResult, error) {
	raw, ok, err := s.get(ctx, KeyBackups)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.RunResult)
	if !ok {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RecordBackups merges results into the backups map under key source_name,
// overwriting any prior entry for that source. Read-modify-write under the
// store's own mutex.
func (s *Store) RecordBackups(ctx context.Context, results []model.RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.backupsLocked(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		current[r.SourceName] = r
	}
	raw, err := json.Marshal(current)
	if err != nil {
		return err
	}
	return s.set(ctx, KeyBackups, raw)
}
