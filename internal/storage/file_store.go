package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"tg-eventbot/internal/models"
)

// fileStore keeps the state document in a single JSON file. Every save
// rewrites the full document through a temp file + rename, so a crash mid
// write never leaves a truncated document behind. The mutex serializes
// writers.
type fileStore struct {
	mu   sync.Mutex
	path string
}

func openFileStore(path string) (Store, error) {
	if path == "" {
		path = "data/state.json"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &fileStore{path: path}, nil
}

func (s *fileStore) Load() (*models.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.NewState(), nil
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	state := models.NewState()
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("failed to decode state file: %w", err)
	}
	state.Normalize()
	return state, nil
}

func (s *fileStore) Save(state *models.State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

func (s *fileStore) Close() error {
	return nil
}
