package store

import (
	"sync"
	"time"
)

// MemoryStore keeps snapshots in memory. Suitable for tests and for boards
// that opt out of local persistence.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]memorySnapshot
	closed    bool
}

type memorySnapshot struct {
	data      []byte
	updatedAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]memorySnapshot)}
}

// Save implements Store.
func (s *MemoryStore) Save(graphID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	// Copy so the caller can reuse its buffer.
	cp := make([]byte, len(data))
	copy(cp, data)
	s.snapshots[graphID] = memorySnapshot{data: cp, updatedAt: time.Now().UTC()}
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(graphID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	snap, ok := s.snapshots[graphID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(snap.data))
	copy(cp, snap.data)
	return cp, nil
}

// List implements Store.
func (s *MemoryStore) List() ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	infos := make([]Info, 0, len(s.snapshots))
	for id, snap := range s.snapshots {
		infos = append(infos, Info{
			GraphID:   id,
			UpdatedAt: snap.updatedAt,
			Size:      int64(len(snap.data)),
		})
	}
	return infos, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(graphID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	delete(s.snapshots, graphID)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
