package index

import (
	"sync"

	"github.com/cuemby/jsonkv/internal/config"
	"github.com/cuemby/jsonkv/internal/jsonpath"
)

// Registry holds one Index per configured field and keeps them coherent
// with the primary store as records are inserted, replaced, and deleted.
// It is global, not per-shard (spec §3).
type Registry struct {
	mu     sync.RWMutex
	fields []config.FieldSpec
	byName map[string]Index
}

// NewRegistry builds a registry for the given field specs. Fields with an
// invalid index type were already rejected at config validation time
// (spec §7.4); NewRegistry assumes fields is valid.
func NewRegistry(fields []config.FieldSpec) *Registry {
	r := &Registry{
		fields: fields,
		byName: make(map[string]Index, len(fields)),
	}
	for _, f := range fields {
		var kind Kind
		switch f.IndexType {
		case config.IndexNumeric:
			kind = Numeric
		case config.IndexString:
			kind = String
		default:
			continue
		}
		r.byName[f.Field] = NewIndex(kind)
	}
	return r
}

// IndexInsert adds key to every configured index whose field resolves in
// value to a leaf of the matching kind.
func (r *Registry) IndexInsert(key string, value any) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.fields {
		leaf, ok := jsonpath.Resolve(value, f.Field)
		if !ok {
			continue
		}
		idx := r.byName[f.Field]
		if idx == nil {
			continue
		}
		idx.Add(leaf, key)
	}
}

// IndexRemove undoes IndexInsert for the previous value of key, so callers
// must invoke it with the value being replaced or deleted (invariant I1,
// open question Q3: remove-old before add-new on update).
func (r *Registry) IndexRemove(key string, value any) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.fields {
		leaf, ok := jsonpath.Resolve(value, f.Field)
		if !ok {
			continue
		}
		idx := r.byName[f.Field]
		if idx == nil {
			continue
		}
		idx.Remove(leaf, key)
	}
}

// Lookup returns the Index configured for field, if any (spec §4.L9:
// "if an index exists for field"). An index that exists but currently
// holds no keys still returns ok=true; its Query calls simply yield the
// empty set, which satisfies invariant I4 without conflating "configured"
// with "non-empty".
func (r *Registry) Lookup(field string) (Index, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byName[field]
	return idx, ok
}

// Contains reports whether field is indexed by at least one key
// (invariant I4).
func (r *Registry) Contains(field string) bool {
	r.mu.RLock()
	idx, ok := r.byName[field]
	r.mu.RUnlock()
	return ok && !idx.Empty()
}

// Fields returns the configured field specs, for recovery and diagnostics.
func (r *Registry) Fields() []config.FieldSpec {
	return r.fields
}

// Clear discards every indexed entry for every configured field, leaving
// the set of configured fields unchanged. Used by DeleteAll.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.fields {
		var kind Kind
		switch f.IndexType {
		case config.IndexNumeric:
			kind = Numeric
		case config.IndexString:
			kind = String
		default:
			continue
		}
		r.byName[f.Field] = NewIndex(kind)
	}
}
