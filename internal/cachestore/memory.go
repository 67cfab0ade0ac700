package cachestore

import (
	"errors"
	"sort"
	"sync"
)

// MemoryStore keeps generations in process memory. Used by tests and as the
// store of last resort when the disk database cannot be opened.
type MemoryStore struct {
	mu             sync.RWMutex
	generations    map[string]map[string]Entry
	maxObjectBytes int64
}

func NewMemoryStore(maxObjectBytes int64) *MemoryStore {
	if maxObjectBytes <= 0 {
		maxObjectBytes = DefaultMaxObjectBytes
	}
	return &MemoryStore{
		generations:    make(map[string]map[string]Entry),
		maxObjectBytes: maxObjectBytes,
	}
}

func (m *MemoryStore) Get(generation string, key string) (Entry, bool) {
	if m == nil {
		return Entry{}, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries, ok := m.generations[generation]
	if !ok {
		return Entry{}, false
	}
	entry, ok := entries[key]
	return entry, ok
}

func (m *MemoryStore) Set(generation string, key string, entry Entry) error {
	if m == nil {
		return errors.New("cache store not initialized")
	}
	if generation == "" || key == "" {
		return errors.New("generation and key are required")
	}
	if m.maxObjectBytes > 0 && int64(len(entry.Body)) > m.maxObjectBytes {
		return errors.New("cache entry exceeds max object bytes")
	}
	m.mu.Lock()
	entries, ok := m.generations[generation]
	if !ok {
		entries = make(map[string]Entry)
		m.generations[generation] = entries
	}
	entries[key] = entry
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(generation string, key string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if entries, ok := m.generations[generation]; ok {
		delete(entries, key)
	}
	m.mu.Unlock()
}

func (m *MemoryStore) Generations() ([]string, error) {
	if m == nil {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.generations))
	for name := range m.generations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) DropGeneration(generation string) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	delete(m.generations, generation)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
