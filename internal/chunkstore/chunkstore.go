// Package chunkstore implements the weak-reference deduplicating chunk
// registry described by the replay service spec. It never itself keeps a
// chunk alive: callers that need liveness (an Item, or an InsertReactor's
// local map) hold a strong *chunk.Chunk, and the store only upgrades a weak
// pointer on lookup.
package chunkstore

import (
	"sync"
	"weak"

	"github.com/cartridge/replay/internal/chunk"
)

// Store is a key -> weak reference registry of chunks currently referenced
// by at least one live Item or in-flight InsertReactor.
type Store struct {
	mu   sync.Mutex
	refs map[chunk.Key]weak.Pointer[chunk.Chunk]
}

// New creates an empty Store.
func New() *Store {
	return &Store{refs: make(map[chunk.Key]weak.Pointer[chunk.Chunk])}
}

// Track registers c's weak pointer under its key, overwriting any previous
// (presumably collected) entry. Track does not extend c's lifetime.
func (s *Store) Track(c *chunk.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[c.Key] = weak.Make(c)
}

// Get returns a still-live chunk for key, or (nil, false) if it was never
// tracked or has since been collected.
func (s *Store) Get(key chunk.Key) (*chunk.Chunk, bool) {
	s.mu.Lock()
	ref, ok := s.refs[key]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	c := ref.Value()
	return c, c != nil
}

// Len reports the number of tracked keys, live or not. It is intended for
// diagnostics only; a collected entry is not removed until overwritten by a
// later Track call for the same key.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.refs)
}
