package session

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists History snapshots in a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (or creates) the database at path, ensuring that the
// parent directory and the sessions table exist.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create db directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open db at %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db at %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			key TEXT PRIMARY KEY,
			snapshot TEXT NOT NULL,
			head_count INTEGER NOT NULL,
			body_count INTEGER NOT NULL,
			message_count INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init session schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save upserts snap under key. created_at survives overwrites.
func (s *SQLiteStore) Save(key string, snap Snapshot) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("cannot save session with empty key")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", key, err)
	}

	now := time.Now().UnixNano()
	_, err = s.db.Exec(`
		INSERT INTO sessions (key, snapshot, head_count, body_count, message_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			snapshot = excluded.snapshot,
			head_count = excluded.head_count,
			body_count = excluded.body_count,
			message_count = excluded.message_count,
			updated_at = excluded.updated_at`,
		key, string(data), len(snap.Head), len(snap.Body), len(snap.Messages), now, now)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", key, err)
	}
	return nil
}

// Load returns the snapshot stored under key.
func (s *SQLiteStore) Load(key string) (Snapshot, bool, error) {
	var data string
	err := s.db.QueryRow(`SELECT snapshot FROM sessions WHERE key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("failed to load session %s: %w", key, err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return Snapshot{}, false, fmt.Errorf("failed to parse session %s: %w", key, err)
	}
	return snap, true, nil
}

// Delete removes a stored session. It returns false if nothing was removed.
func (s *SQLiteStore) Delete(key string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE key = ?`, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete session %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// List returns information about all stored sessions, most recently
// updated first.
func (s *SQLiteStore) List() ([]Info, error) {
	rows, err := s.db.Query(`
		SELECT key, head_count, body_count, message_count, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Info
	for rows.Next() {
		var (
			info             Info
			created, updated int64
		)
		if err := rows.Scan(&info.Key, &info.HeadCount, &info.BodyCount, &info.MessageCount, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		info.CreatedAt = time.Unix(0, created)
		info.UpdatedAt = time.Unix(0, updated)
		sessions = append(sessions, info)
	}
	return sessions, rows.Err()
}
