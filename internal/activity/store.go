package activity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// record is the on-disk layout, also read by the kiosk renderer
type record struct {
	ActiveState bool `json:"active_state"`
}

// FileStore persists the activity flag as a small JSON document
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the persisted flag
func (s *FileStore) Load() (bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, fmt.Errorf("state file %s does not exist: %w", s.path, err)
		}
		return false, fmt.Errorf("failed to read state file: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return false, fmt.Errorf("failed to parse state file: %w", err)
	}
	return rec.ActiveState, nil
}

// Save rewrites the file via rename so a crash never leaves it truncated
func (s *FileStore) Save(active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(record{ActiveState: active})
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
