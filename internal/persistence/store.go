// Package persistence is the sole authoritative persistent artifact: the
// charger_id -> learned_max_power_watts document described in spec §4.7.
// Grounded on original_source/local_server.py's load_learned_powers/
// save_learned_powers: a flat JSON document, malformed or missing file
// treated as empty, last-write-wins on save.
package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Store reads and writes the flat charger_id -> watts document at path.
type Store struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{path: path, logger: logger}
}

// Load returns the persisted mapping. A missing or malformed file is not an
// error: it is treated as an empty mapping (spec §6).
func (s *Store) Load() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read persisted learned powers, starting empty", zap.Error(err))
		}
		return map[string]float64{}
	}

	out := make(map[string]float64)
	if err := json.Unmarshal(data, &out); err != nil {
		s.logger.Warn("persisted learned powers file is malformed, starting empty", zap.Error(err))
		return map[string]float64{}
	}
	return out
}

// Save rewrites the document with data. Atomicity across crashes is not
// required (spec §4.7); a temp-file-then-rename is used only because it's
// free and avoids leaving a half-written file behind a concurrent reader.
func (s *Store) Save(data map[string]float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, encoded, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
