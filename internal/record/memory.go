package record

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store keeping records in a map. Used in
// tests and in deployments that do not need durable metadata.
type Memory struct {
	mu      sync.RWMutex
	records map[string]FileRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]FileRecord)}
}

// Save implements Store.
func (m *Memory) Save(ctx context.Context, rec *FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = cp.CreatedAt
	m.records[cp.ID] = cp
	return nil
}

// Update implements Store.
func (m *Memory) Update(ctx context.Context, rec *FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.records[rec.ID]
	if !ok {
		return ErrNotFound
	}
	cp := *rec
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	m.records[cp.ID] = cp
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[id]; !ok {
		return ErrNotFound
	}
	delete(m.records, id)
	return nil
}

// Find implements Store.
func (m *Memory) Find(ctx context.Context, id string) (*FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := rec
	return &cp, nil
}

// FindByHash implements Store. Linear scan: the memory store holds
// test-sized data sets.
func (m *Memory) FindByHash(ctx context.Context, namespace, hash string) (*FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.records {
		if rec.Namespace == namespace && rec.ContentHash == hash {
			cp := rec
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// Exists implements Store.
func (m *Memory) Exists(ctx context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.records[id]
	return ok, nil
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
