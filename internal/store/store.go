// Package store persists finished mod results in SQLite so the queue
// status endpoint survives process restarts.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"levelup/internal/logging"
	"levelup/internal/result"
)

// Store is a small WAL-mode SQLite store keyed by mod id.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// Open initializes the database at the given path, creating directories and
// schema as needed.
func Open(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.Open")
	defer timer.Stop()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set journal_mode=WAL: %v", err)
	}
	// NORMAL is safe with WAL and considerably faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("failed to set synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("Result store ready at %s", path)
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS results (
		mod_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		message TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		payload TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_results_status ON results(status);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Put upserts a result.
func (s *Store) Put(modID string, res result.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(res)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO results (mod_id, status, message, timestamp, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(mod_id) DO UPDATE SET
			status = excluded.status,
			message = excluded.message,
			timestamp = excluded.timestamp,
			payload = excluded.payload
	`, modID, string(res.Status), res.Message, res.Timestamp, string(payload))
	if err != nil {
		return fmt.Errorf("failed to store result %s: %w", modID, err)
	}
	logging.StoreDebug("Stored result %s (%s)", modID, res.Status)
	return nil
}

// Get loads one result; the second return is false when absent.
func (s *Store) Get(modID string) (result.Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload string
	err := s.db.QueryRow("SELECT payload FROM results WHERE mod_id = ?", modID).Scan(&payload)
	if err == sql.ErrNoRows {
		return result.Result{}, false, nil
	}
	if err != nil {
		return result.Result{}, false, err
	}

	var res result.Result
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return result.Result{}, false, fmt.Errorf("corrupt result payload for %s: %w", modID, err)
	}
	return res, true, nil
}

// All loads every stored result keyed by mod id.
func (s *Store) All() (map[string]result.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query("SELECT mod_id, payload FROM results")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]result.Result)
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var res result.Result
		if err := json.Unmarshal([]byte(payload), &res); err != nil {
			logging.Get(logging.CategoryStore).Warn("skipping corrupt result %s: %v", id, err)
			continue
		}
		out[id] = res
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
