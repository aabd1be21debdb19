package store

import (
	"context"
	"strings"
	"sync"
)

// Memory is an in-process store for development and tests. It is
// deliberately not a Transactor so the registry's compensation path
// stays exercised.
type Memory struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.records[key]
	if !ok {
		return Record{}, ErrKeyNotFound
	}
	return Record{Key: key, Doc: cloneDoc(doc)}, nil
}

func (m *Memory) PutIfAbsent(ctx context.Context, key string, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[key]; exists {
		return ErrKeyExists
	}
	m.records[key] = cloneDoc(doc)
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, key)
	return nil
}

func (m *Memory) ScanPrefix(ctx context.Context, prefix string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for key, doc := range m.records {
		if strings.HasPrefix(key, prefix) {
			out = append(out, Record{Key: key, Doc: cloneDoc(doc)})
		}
	}
	return out, nil
}

// cloneDoc keeps callers from mutating stored documents through a
// shared slice.
func cloneDoc(doc []byte) []byte {
	out := make([]byte, len(doc))
	copy(out, doc)
	return out
}
