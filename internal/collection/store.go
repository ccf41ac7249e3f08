// Package collection holds per-conversation chunk lists in memory.
package collection

import (
	"sort"
	"sync"

	"github.com/rcliao/recall/internal/model"
)

// Store maps a collection id to its ordered chunk records. A single mutex
// guards every collection; callers never hold it across embedding calls.
type Store struct {
	mu          sync.Mutex
	collections map[string][]model.ChunkRecord
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{collections: make(map[string][]model.ChunkRecord)}
}

// Insert appends records to a collection, creating it on first use.
func (s *Store) Insert(collectionID string, records ...model.ChunkRecord) {
	if len(records) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collectionID] = append(s.collections[collectionID], records...)
}

// GetAll returns a snapshot of a collection in insertion order.
func (s *Store) GetAll(collectionID string) []model.ChunkRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.collections[collectionID]
	if len(recs) == 0 {
		return nil
	}
	out := make([]model.ChunkRecord, len(recs))
	copy(out, recs)
	return out
}

// Count returns the number of records in a collection.
func (s *Store) Count(collectionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collections[collectionID])
}

// Has reports whether a collection holds at least one record.
func (s *Store) Has(collectionID string) bool {
	return s.Count(collectionID) > 0
}

// Clear removes a whole collection.
func (s *Store) Clear(collectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, collectionID)
}

// RemoveWhere deletes the records of a collection matching pred and returns
// how many were removed. Order of the remaining records is preserved.
func (s *Store) RemoveWhere(collectionID string, pred func(model.ChunkRecord) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs, ok := s.collections[collectionID]
	if !ok {
		return 0
	}
	kept := recs[:0:0]
	for _, r := range recs {
		if !pred(r) {
			kept = append(kept, r)
		}
	}
	removed := len(recs) - len(kept)
	if len(kept) == 0 {
		delete(s.collections, collectionID)
	} else {
		s.collections[collectionID] = kept
	}
	return removed
}

// IDs returns the ids of all non-empty collections, sorted.
func (s *Store) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.collections))
	for id, recs := range s.collections {
		if len(recs) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
