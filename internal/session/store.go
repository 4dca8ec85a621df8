package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const snapshotFileExt = ".json"

// storedSnapshot is the on-disk form of a session snapshot.
type storedSnapshot struct {
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Snapshot
}

// Info provides summary information about a stored session.
type Info struct {
	Key          string    `json:"key"`
	HeadCount    int       `json:"headCount"`
	BodyCount    int       `json:"bodyCount"`
	MessageCount int       `json:"messageCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SnapshotStore persists History snapshots by session key.
type SnapshotStore interface {
	Save(key string, snap Snapshot) error
	// Load reports false when no session exists for key.
	Load(key string) (Snapshot, bool, error)
	// Delete reports false when nothing was removed.
	Delete(key string) (bool, error)
	// List returns stored sessions, most recently updated first.
	List() ([]Info, error)
}

// Store persists History snapshots, one JSON document per session key.
// The mutex guards the files, not the histories whose snapshots are stored.
type Store struct {
	sessionsDir string
	mu          sync.RWMutex
}

// NewStore creates a snapshot store under dataDir/sessions.
func NewStore(dataDir string) *Store {
	sessionsDir := filepath.Join(dataDir, "sessions")

	if err := os.MkdirAll(sessionsDir, 0700); err != nil {
		// Operations below fail with a descriptive error if this persists
		fmt.Fprintf(os.Stderr, "warning: failed to create sessions directory: %v\n", err)
	}

	return &Store{sessionsDir: sessionsDir}
}

// Dir returns the directory holding session files.
func (s *Store) Dir() string {
	return s.sessionsDir
}

// Save writes snap under key, keeping the original creation time if the
// session already exists.
func (s *Store) Save(key string, snap Snapshot) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("cannot save session with empty key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	record := storedSnapshot{
		Key:       key,
		CreatedAt: now,
		UpdatedAt: now,
		Snapshot:  snap,
	}
	if existing, err := s.readFile(s.getFilePath(key)); err == nil {
		record.CreatedAt = existing.CreatedAt
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", key, err)
	}

	if err := os.MkdirAll(s.sessionsDir, 0700); err != nil {
		return fmt.Errorf("failed to create sessions directory: %w", err)
	}

	// Write to a temp file first so a crash never leaves a truncated snapshot
	filePath := s.getFilePath(key)
	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	return nil
}

// Load returns the snapshot stored under key. The boolean is false when no
// session exists for key.
func (s *Store) Load(key string) (Snapshot, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, err := s.readFile(s.getFilePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, false, nil
		}
		return Snapshot{}, false, err
	}
	return record.Snapshot, true, nil
}

// Delete removes a stored session. It returns false if nothing was removed.
func (s *Store) Delete(key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.getFilePath(key)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to delete session %s: %w", key, err)
	}
	return true, nil
}

// List returns information about all stored sessions, most recently
// updated first.
func (s *Store) List() ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []Info

	entries, err := os.ReadDir(s.sessionsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return sessions, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), snapshotFileExt) {
			continue
		}

		record, err := s.readFile(filepath.Join(s.sessionsDir, entry.Name()))
		if err != nil {
			continue // Skip unreadable files
		}
		sessions = append(sessions, Info{
			Key:          record.Key,
			HeadCount:    len(record.Head),
			BodyCount:    len(record.Body),
			MessageCount: len(record.Messages),
			CreatedAt:    record.CreatedAt,
			UpdatedAt:    record.UpdatedAt,
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// readFile decodes a stored session file.
func (s *Store) readFile(filePath string) (*storedSnapshot, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var record storedSnapshot
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", filePath, err)
	}
	return &record, nil
}

// getFilePath returns the file path for a session key
func (s *Store) getFilePath(key string) string {
	return filepath.Join(s.sessionsDir, safeKey(key)+snapshotFileExt)
}

// safeKey converts a session key to a safe filename
func safeKey(key string) string {
	// Remove null bytes
	key = strings.ReplaceAll(key, "\x00", "")
	// Remove path traversal components
	key = strings.ReplaceAll(key, "..", "")
	// Remove path separators
	key = strings.ReplaceAll(key, "/", "")
	key = strings.ReplaceAll(key, "\\", "")
	// Replace ":" with "_" for filesystem safety
	return strings.ReplaceAll(key, ":", "_")
}
