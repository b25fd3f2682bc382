package blob

import (
	"context"
	"fmt"
	"maps"
	"sync"
)

const memoryRefPrefix = "mem:"

// MemoryStore keeps blobs in process memory. Used by tests and the
// memory backend; contents do not survive a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[string][]byte
	metadata map[string]map[string]string
	types    map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:     make(map[string][]byte),
		metadata: make(map[string]map[string]string),
		types:    make(map[string]string),
	}
}

func (m *MemoryStore) Put(_ context.Context, key string, data []byte, contentType string, metadata map[string]string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	m.metadata[key] = maps.Clone(metadata)
	m.types[key] = contentType
	return memoryRefPrefix + key, nil
}

func (m *MemoryStore) Get(_ context.Context, ref string) ([]byte, error) {
	key, err := trimRef(ref, memoryRefPrefix)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

// Metadata returns what was stored alongside key.
func (m *MemoryStore) Metadata(key string) (map[string]string, string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.metadata[key]
	return maps.Clone(meta), m.types[key], ok
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
