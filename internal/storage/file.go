package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileStore persists every key in a single JSON object on disk. Writes go to
// a temporary file that is renamed over the original.
type FileStore struct {
	path string
	mu   sync.RWMutex
}

func NewFile(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file location
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values, err := s.load()
	if err != nil {
		return nil, false, err
	}
	value, exists := values[key]
	if !exists {
		return nil, false, nil
	}
	return []byte(value), true, nil
}

func (s *FileStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = string(value)
	return s.save(values)
}

func (s *FileStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	if _, exists := values[key]; !exists {
		return nil
	}
	delete(values, key)
	return s.save(values)
}

func (s *FileStore) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values, err := s.load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// load reads the backing file; a missing file is an empty store
func (s *FileStore) load() (map[string]string, error) {
	values := make(map[string]string)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}
	if len(data) == 0 {
		return values, nil
	}

	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to decode store file %s: %w", s.path, err)
	}
	return values, nil
}

func (s *FileStore) save(values map[string]string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close store file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace store file: %w", err)
	}

	slog.Debug("Store saved", "path", s.path, "keys", len(values), "bytes", len(data))
	return nil
}
