// Package shard implements the concurrent, authoritative in-memory map for
// one shard of the keyspace (spec §4.L4). Values are stored as raw JSON
// bytes exactly as received, so a round-trip GET returns the original
// representation byte-for-byte (invariant in §3, property P3).
package shard

import (
	"encoding/json"
	"sync"
)

// Shard is a bounded partition of the key space: a unique-key map from
// string to JSON value, safe for concurrent access.
type Shard struct {
	id uint32

	mu   sync.RWMutex
	data map[string]json.RawMessage
}

// New creates an empty shard with the given id.
func New(id uint32) *Shard {
	return &Shard{
		id:   id,
		data: make(map[string]json.RawMessage),
	}
}

// ID returns this shard's id.
func (s *Shard) ID() uint32 { return s.id }

// Get returns the value stored under key, if present.
func (s *Shard) Get(key string) (json.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// InsertOrReplace stores value under key, returning the previous value (if
// any) so the caller can remove its stale index entries (Q3).
func (s *Shard) InsertOrReplace(key string, value json.RawMessage) (prev json.RawMessage, hadPrev bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, hadPrev = s.data[key]
	s.data[key] = value
	return prev, hadPrev
}

// Remove deletes key, returning the removed value if it was present.
func (s *Shard) Remove(key string) (prev json.RawMessage, existed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed = s.data[key]
	if existed {
		delete(s.data, key)
	}
	return prev, existed
}

// RemoveAll clears every entry in this shard.
func (s *Shard) RemoveAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]json.RawMessage)
}

// Len returns the number of records currently held.
func (s *Shard) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// SnapshotEntries returns a point-in-time copy of every (key, value) pair,
// suitable for serializing to disk (spec §4.L4, §5 "snapshotting takes a
// point-in-time copy ... then releases the shard").
func (s *Shard) SnapshotEntries() map[string]json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(s.data))
	for k, v := range s.data {
		cp := make(json.RawMessage, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// LoadEntries replaces the shard's contents wholesale. Used by recovery
// before WAL replay (spec §4.L7).
func (s *Shard) LoadEntries(entries map[string]json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = entries
}

// Each calls fn for every (key, value) pair currently held. fn must not
// mutate the shard.
func (s *Shard) Each(fn func(key string, value json.RawMessage)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.data {
		fn(k, v)
	}
}
