package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory store for tests and the rebuild fallback.
// Data is lost when the process exits.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
	}
}

// Lookup implements Store.
func (m *MemoryStore) Lookup(_ context.Context, fingerprint string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	e, ok := m.entries[fingerprint]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

// Record implements Store.
func (m *MemoryStore) Record(_ context.Context, e Entry) (bool, error) {
	if err := e.validate(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false, ErrStoreClosed
	}
	if _, exists := m.entries[e.Fingerprint]; exists {
		return false, nil
	}
	m.entries[e.Fingerprint] = e
	return true, nil
}

// Stats implements Store.
func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Stats{}, ErrStoreClosed
	}
	s := Stats{Backend: BackendMemory, Entries: len(m.entries)}
	for _, e := range m.entries {
		s.Original += e.OriginalDuration
	}
	return s, nil
}

// Prune implements Store.
func (m *MemoryStore) Prune(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}
	n := 0
	for fp, e := range m.entries {
		if e.CreatedAt.Before(before) {
			delete(m.entries, fp)
			n++
		}
	}
	return n, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.entries = nil
	return nil
}

// Len returns the number of entries. Useful for testing.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
