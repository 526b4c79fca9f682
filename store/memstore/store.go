// Package memstore provides an in-memory edzip.Directory for tests and
// callers that do not need durability.
package memstore

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/edzip/edzip"
)

// Store is an in-memory edzip.Directory. The zero value is not usable; use New.
type Store struct {
	mu        sync.RWMutex
	entries   []edzip.Entry
	byName    map[string]int // index of the last entry with each name
	meta      edzip.Meta
	finalized bool
}

// New creates an empty Store.
func New() *Store {
	return &Store{byName: make(map[string]int)}
}

// Put appends a batch of entries.
func (s *Store) Put(_ context.Context, entries []edzip.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.byName[e.Name] = len(s.entries)
		s.entries = append(s.entries, e)
	}
	return nil
}

// SetMeta finalizes the store.
func (s *Store) SetMeta(_ context.Context, meta edzip.Meta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta = meta
	s.finalized = true
	return nil
}

// GetByName returns the last entry with the given name.
func (s *Store) GetByName(_ context.Context, name string) (edzip.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byName[name]
	if !ok {
		return edzip.Entry{}, fmt.Errorf("%w: %q", edzip.ErrNotFound, name)
	}
	return s.entries[i], nil
}

// Entries iterates entries in sequence order starting at startSeq.
func (s *Store) Entries(_ context.Context, startSeq uint64) iter.Seq2[edzip.Entry, error] {
	return func(yield func(edzip.Entry, error) bool) {
		s.mu.RLock()
		snapshot := s.entries
		s.mu.RUnlock()
		for _, e := range snapshot {
			if e.Seq < startSeq {
				continue
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// Count returns the number of entries.
func (s *Store) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.entries)), nil
}

// Close is a no-op; the store holds no external resources.
func (s *Store) Close() error {
	return nil
}

// Meta returns the finalized build metadata.
func (s *Store) Meta(_ context.Context) (edzip.Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.finalized {
		return edzip.Meta{}, fmt.Errorf("%w: in-memory store", edzip.ErrNotFinalized)
	}
	return s.meta, nil
}
