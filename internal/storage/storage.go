package storage

import (
	"sort"
	"sync"
)

// Store is a string-keyed value store scoped to one client, the local
// counterpart of a browser's localStorage. Implementations must be safe for
// concurrent use.
type Store interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Remove(key string) error
	Keys() ([]string, error)
}

// MemoryStore keeps values in process memory
type MemoryStore struct {
	values map[string][]byte
	mu     sync.RWMutex
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		values: make(map[string][]byte),
	}
}

func (s *MemoryStore) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, exists := s.values[key]
	if !exists {
		return nil, false, nil
	}
	return clone(value), true, nil
}

func (s *MemoryStore) Set(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = clone(value)
	return nil
}

func (s *MemoryStore) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func (s *MemoryStore) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
