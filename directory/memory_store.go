package directory

import (
	"sync"

	"github.com/lamwimham/neuroflow/core"
)

// MemoryStore is a volatile Store implementation keeping peer records in a
// process-local map. Safe for concurrent access; List preserves registration
// order.
type MemoryStore struct {
	mu    sync.RWMutex
	recs  map[string]core.PeerRecord
	order []string
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]core.PeerRecord)}
}

// Put inserts or replaces a record.
func (s *MemoryStore) Put(rec core.PeerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.recs[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.recs[rec.ID] = rec
	return nil
}

// Get returns the record for id.
func (s *MemoryStore) Get(id string) (core.PeerRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.recs[id]
	return rec, ok, nil
}

// Delete removes the record for id, reporting whether it existed.
func (s *MemoryStore) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recs[id]; !ok {
		return false, nil
	}
	delete(s.recs, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// List returns all records in registration order.
func (s *MemoryStore) List() ([]core.PeerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.PeerRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.recs[id])
	}
	return out, nil
}
