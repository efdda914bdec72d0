// Package index implements per-field secondary indexes (spec §4.L3): an
// ordered map from a normalized indexed value to the set of record keys
// that carry it, one per configured field, kept coherent with the primary
// store by the store facade on every mutation (invariant I1).
package index

import (
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/google/btree"
)

// degree is the btree branching factor; 32 matches the teacher pack's
// common choice for in-memory ordered sets of this size.
const degree = 32

// Kind is the declared type of an indexed field.
type Kind string

const (
	Numeric Kind = "Numeric"
	String  Kind = "String"
)

// Index answers predicate queries over one indexed field.
type Index interface {
	// Add indexes key under value. ok is false if value's type doesn't
	// match the index kind (spec §3: "the field is ignored for that
	// record").
	Add(value any, key string) (ok bool)
	// Remove undoes a prior Add for the same (value, key) pair. Eagerly
	// removes empty buckets (invariant I4).
	Remove(value any, key string)
	// Query evaluates op against literal, returning the matching key set.
	// An unparseable literal or unsupported op yields an empty set.
	Query(op, literal string) map[string]struct{}
	// Empty reports whether the index currently indexes zero keys.
	Empty() bool
}

// NewIndex constructs an empty Index of the given kind.
func NewIndex(kind Kind) Index {
	switch kind {
	case Numeric:
		return &numericIndex{tree: btree.New(degree)}
	case String:
		return &stringIndex{tree: btree.New(degree)}
	default:
		return nil
	}
}

// NormalizeNumeric converts a decoded JSON number into the i64 sort key
// used by numeric indexes: round(v*1000), truncated to i64. ok is false if
// the scaled value doesn't fit in an int64 (spec §3).
func NormalizeNumeric(v float64) (n int64, ok bool) {
	scaled := math.Round(v * 1000)
	if scaled >= math.MaxInt64 || scaled < math.MinInt64 || math.IsNaN(scaled) {
		return 0, false
	}
	return int64(scaled), true
}

type numericIndex struct {
	mu    sync.Mutex
	tree  *btree.BTree
	count int
}

func (idx *numericIndex) Add(value any, key string) bool {
	f, ok := value.(float64)
	if !ok {
		return false
	}
	n, ok := NormalizeNumeric(f)
	if !ok {
		return false
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	pivot := &numericBucket{val: n}
	if existing := idx.tree.Get(pivot); existing != nil {
		b := existing.(*numericBucket)
		if _, dup := b.keys[key]; !dup {
			b.keys[key] = struct{}{}
			idx.count++
		}
		return true
	}
	pivot.keys = map[string]struct{}{key: {}}
	idx.tree.ReplaceOrInsert(pivot)
	idx.count++
	return true
}

func (idx *numericIndex) Remove(value any, key string) {
	f, ok := value.(float64)
	if !ok {
		return
	}
	n, ok := NormalizeNumeric(f)
	if !ok {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	pivot := &numericBucket{val: n}
	existing := idx.tree.Get(pivot)
	if existing == nil {
		return
	}
	b := existing.(*numericBucket)
	if _, ok := b.keys[key]; !ok {
		return
	}
	delete(b.keys, key)
	idx.count--
	if len(b.keys) == 0 {
		idx.tree.Delete(pivot)
	}
}

func (idx *numericIndex) Query(op, literal string) map[string]struct{} {
	lit, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		return map[string]struct{}{}
	}
	n, ok := NormalizeNumeric(lit)
	if !ok {
		return map[string]struct{}{}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	out := make(map[string]struct{})
	pivot := &numericBucket{val: n}
	switch op {
	case "=":
		if existing := idx.tree.Get(pivot); existing != nil {
			addAll(out, existing.(*numericBucket).keys)
		}
	case "!=":
		idx.tree.Ascend(func(i btree.Item) bool {
			b := i.(*numericBucket)
			if b.val != n {
				addAll(out, b.keys)
			}
			return true
		})
	case ">":
		idx.tree.AscendGreaterOrEqual(pivot, func(i btree.Item) bool {
			b := i.(*numericBucket)
			if b.val > n {
				addAll(out, b.keys)
			}
			return true
		})
	case ">=":
		idx.tree.AscendGreaterOrEqual(pivot, func(i btree.Item) bool {
			addAll(out, i.(*numericBucket).keys)
			return true
		})
	case "<":
		idx.tree.AscendLessThan(pivot, func(i btree.Item) bool {
			addAll(out, i.(*numericBucket).keys)
			return true
		})
	case "<=":
		idx.tree.DescendLessOrEqual(pivot, func(i btree.Item) bool {
			addAll(out, i.(*numericBucket).keys)
			return true
		})
	}
	return out
}

func (idx *numericIndex) Empty() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.count == 0
}

type stringIndex struct {
	mu    sync.Mutex
	tree  *btree.BTree
	count int
}

func (idx *stringIndex) Add(value any, key string) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	pivot := &stringBucket{val: s}
	if existing := idx.tree.Get(pivot); existing != nil {
		b := existing.(*stringBucket)
		if _, dup := b.keys[key]; !dup {
			b.keys[key] = struct{}{}
			idx.count++
		}
		return true
	}
	pivot.keys = map[string]struct{}{key: {}}
	idx.tree.ReplaceOrInsert(pivot)
	idx.count++
	return true
}

func (idx *stringIndex) Remove(value any, key string) {
	s, ok := value.(string)
	if !ok {
		return
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	pivot := &stringBucket{val: s}
	existing := idx.tree.Get(pivot)
	if existing == nil {
		return
	}
	b := existing.(*stringBucket)
	if _, ok := b.keys[key]; !ok {
		return
	}
	delete(b.keys, key)
	idx.count--
	if len(b.keys) == 0 {
		idx.tree.Delete(pivot)
	}
}

func (idx *stringIndex) Query(op, literal string) map[string]struct{} {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	out := make(map[string]struct{})
	switch op {
	case "=":
		pivot := &stringBucket{val: literal}
		if existing := idx.tree.Get(pivot); existing != nil {
			addAll(out, existing.(*stringBucket).keys)
		}
	case "!=":
		idx.tree.Ascend(func(i btree.Item) bool {
			b := i.(*stringBucket)
			if b.val != literal {
				addAll(out, b.keys)
			}
			return true
		})
	case "CONTAINS":
		idx.tree.Ascend(func(i btree.Item) bool {
			b := i.(*stringBucket)
			if strings.Contains(b.val, literal) {
				addAll(out, b.keys)
			}
			return true
		})
	}
	return out
}

func (idx *stringIndex) Empty() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.count == 0
}

func addAll(dst, src map[string]struct{}) {
	for k := range src {
		dst[k] = struct{}{}
	}
}
