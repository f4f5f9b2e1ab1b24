package session

import (
	"context"
	"slices"
	"sync"
)

// MemoryBackend keeps sessions in process memory.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]Record)}
}

func (m *MemoryBackend) Get(_ context.Context, id string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return Record{}, false, nil
	}
	rec.Payload = slices.Clone(rec.Payload)
	return rec, true, nil
}

func (m *MemoryBackend) CompareAndSet(_ context.Context, id string, expected uint64, payload []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.records[id].Version
	if current != expected {
		return 0, conflict(id, expected, current)
	}
	next := expected + 1
	m.records[id] = Record{Version: next, Payload: slices.Clone(payload)}
	return next, nil
}

func (m *MemoryBackend) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, id)
	return nil
}

func (m *MemoryBackend) DeleteIfVersion(_ context.Context, id string, expected uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.records[id].Version
	if current != expected {
		return conflict(id, expected, current)
	}
	delete(m.records, id)
	return nil
}
