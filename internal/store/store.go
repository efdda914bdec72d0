// Package store implements the store facade (spec §4.L10): the public
// contract that orchestrates the shard router, shards, WAL writers, and
// secondary-index registry on every mutation, and backs point lookups,
// bulk insert/delete, full scans, and predicate queries.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/cuemby/jsonkv/internal/config"
	"github.com/cuemby/jsonkv/internal/index"
	"github.com/cuemby/jsonkv/internal/log"
	"github.com/cuemby/jsonkv/internal/metrics"
	"github.com/cuemby/jsonkv/internal/query"
	"github.com/cuemby/jsonkv/internal/recovery"
	"github.com/cuemby/jsonkv/internal/shard"
	"github.com/cuemby/jsonkv/internal/shardrouter"
	"github.com/cuemby/jsonkv/internal/snapshot"
	"github.com/cuemby/jsonkv/internal/wal"
)

// ErrNotFound is returned by Delete when the key is absent (spec §7.2).
var ErrNotFound = errors.New("key not found")

// KV is one pair in an InsertOrUpdateMany batch.
type KV struct {
	Key   string
	Value json.RawMessage
}

// Store is the process-wide facade over every shard, its WAL writer, and
// the secondary-index registry. Constructed once at startup (running
// recovery) and held for the process lifetime (spec §9 "Global mutable
// state").
type Store struct {
	dataDir   string
	numShards uint32

	shards   []*shard.Shard
	wals     []*wal.Writer
	registry *index.Registry
}

// Open constructs a Store for cfg, running crash recovery (spec §4.L7)
// before returning.
func Open(cfg config.Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	shards := make([]*shard.Shard, cfg.NumShards)
	wals := make([]*wal.Writer, cfg.NumShards)
	for i := uint32(0); i < cfg.NumShards; i++ {
		shards[i] = shard.New(i)
		w, err := wal.Open(wal.FileName(cfg.DataDir, i))
		if err != nil {
			return nil, fmt.Errorf("open wal for shard %d: %w", i, err)
		}
		wals[i] = w
	}

	registry := index.NewRegistry(cfg.IndexedFields)

	st := &Store{
		dataDir:   cfg.DataDir,
		numShards: cfg.NumShards,
		shards:    shards,
		wals:      wals,
		registry:  registry,
	}

	if err := recovery.Load(cfg.DataDir, shards, registry); err != nil {
		return nil, fmt.Errorf("recovery: %w", err)
	}

	st.refreshRecordCountMetric()
	return st, nil
}

// Close releases the WAL file handles.
func (st *Store) Close() error {
	var firstErr error
	for _, w := range st.wals {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (st *Store) shardFor(key string) (*shard.Shard, *wal.Writer) {
	id := shardrouter.ShardOf(key, st.numShards)
	return st.shards[id], st.wals[id]
}

func decodeValue(value json.RawMessage) (any, bool) {
	var v any
	if err := json.Unmarshal(value, &v); err != nil {
		return nil, false
	}
	return v, true
}

// Get reads one key from its shard. No persistence side effects.
func (st *Store) Get(key string) (json.RawMessage, bool) {
	s, _ := st.shardFor(key)
	return s.Get(key)
}

// InsertOrUpdate writes value under key: shard write, then WAL append,
// then index maintenance (remove stale entries for any previous value,
// add entries for the new one — spec §9 Q3). INSERT on an existing key
// replaces it (Q2).
func (st *Store) InsertOrUpdate(key string, value json.RawMessage) error {
	s, w := st.shardFor(key)

	prev, hadPrev := s.InsertOrReplace(key, value)

	if err := w.Append(key, value); err != nil {
		metrics.CommandsTotal.WithLabelValues("insert_or_update", "error").Inc()
		return fmt.Errorf("persist insert for %q: %w", key, err)
	}
	metrics.WALAppendsTotal.WithLabelValues(strconv.FormatUint(uint64(s.ID()), 10)).Inc()

	if hadPrev {
		if prevVal, ok := decodeValue(prev); ok {
			st.registry.IndexRemove(key, prevVal)
		}
	}
	if newVal, ok := decodeValue(value); ok {
		st.registry.IndexInsert(key, newVal)
	} else {
		log.WithComponent("store").Warn().Str("key", key).Msg("value is not valid JSON; indexed fields will not apply")
	}

	metrics.CommandsTotal.WithLabelValues("insert_or_update", "ok").Inc()
	if !hadPrev {
		metrics.RecordsTotal.Inc()
	}
	return nil
}

// InsertOrUpdateMany applies InsertOrUpdate for each pair, batched by
// shard id and parallelized across shards; within one shard, pairs are
// applied in the order given. No batch-level atomicity: a failure stops
// that shard's batch, leaving a prefix of it durable; other shards' batches
// are not affected (spec §4.L10).
func (st *Store) InsertOrUpdateMany(items []KV) error {
	buckets := make(map[uint32][]KV)
	for _, it := range items {
		id := shardrouter.ShardOf(it.Key, st.numShards)
		buckets[id] = append(buckets[id], it)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, batch := range buckets {
		wg.Add(1)
		go func(batch []KV) {
			defer wg.Done()
			for _, it := range batch {
				if err := st.InsertOrUpdate(it.Key, it.Value); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
			}
		}(batch)
	}
	wg.Wait()
	return firstErr
}

// Delete removes key from its shard, removes its index entries, and
// persists the deletion by re-snapshotting that shard — the current WAL
// format has no tombstone, so this is the only durability path for a
// delete (spec §4.L5 note, §9 Q5). Returns ErrNotFound if key is absent.
func (st *Store) Delete(key string) error {
	s, w := st.shardFor(key)

	prev, existed := s.Remove(key)
	if !existed {
		metrics.CommandsTotal.WithLabelValues("delete", "not_found").Inc()
		return ErrNotFound
	}
	if prevVal, ok := decodeValue(prev); ok {
		st.registry.IndexRemove(key, prevVal)
	}

	if err := st.snapshotShard(s, w); err != nil {
		metrics.CommandsTotal.WithLabelValues("delete", "error").Inc()
		return err
	}
	metrics.CommandsTotal.WithLabelValues("delete", "ok").Inc()
	metrics.RecordsTotal.Dec()
	return nil
}

// DeleteMany removes each key in keys, batched by shard id; each affected
// shard is re-snapshotted at most once. Keys not present are silently
// skipped (spec §4.L10, differs deliberately from single-key Delete).
func (st *Store) DeleteMany(keys []string) error {
	buckets := make(map[uint32][]string)
	for _, k := range keys {
		id := shardrouter.ShardOf(k, st.numShards)
		buckets[id] = append(buckets[id], k)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for id, batch := range buckets {
		wg.Add(1)
		go func(id uint32, batch []string) {
			defer wg.Done()
			s, w := st.shards[id], st.wals[id]
			removedAny := false
			for _, k := range batch {
				prev, existed := s.Remove(k)
				if !existed {
					continue
				}
				removedAny = true
				if prevVal, ok := decodeValue(prev); ok {
					st.registry.IndexRemove(k, prevVal)
				}
			}
			if !removedAny {
				return
			}
			if err := st.snapshotShard(s, w); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(id, batch)
	}
	wg.Wait()
	if firstErr == nil {
		st.refreshRecordCountMetric()
	}
	return firstErr
}

// DeleteAll removes every record across every shard and re-snapshots each;
// indexes become empty.
func (st *Store) DeleteAll() error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, s := range st.shards {
		wg.Add(1)
		go func(s *shard.Shard) {
			defer wg.Done()
			s.RemoveAll()
			w := st.wals[s.ID()]
			if err := st.snapshotShard(s, w); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()

	st.registry.Clear()
	metrics.RecordsTotal.Set(0)
	return firstErr
}

// List returns every value across all shards in unspecified order.
func (st *Store) List() []json.RawMessage {
	var out []json.RawMessage
	for _, s := range st.shards {
		s.Each(func(_ string, value json.RawMessage) {
			out = append(out, value)
		})
	}
	if out == nil {
		out = []json.RawMessage{}
	}
	return out
}

// Query evaluates expr and returns the values for the resulting key set,
// in unspecified order, without duplicates.
func (st *Store) Query(expr query.Expr) []json.RawMessage {
	keys := query.Eval(expr, st.registry)
	out := make([]json.RawMessage, 0, len(keys))
	for key := range keys {
		s, _ := st.shardFor(key)
		if v, ok := s.Get(key); ok {
			out = append(out, v)
		}
	}
	return out
}

func (st *Store) snapshotShard(s *shard.Shard, w *wal.Writer) error {
	entries := s.SnapshotEntries()
	if err := snapshot.Write(snapshot.FileName(st.dataDir, s.ID()), entries); err != nil {
		return fmt.Errorf("snapshot shard %d: %w", s.ID(), err)
	}
	metrics.SnapshotsWrittenTotal.WithLabelValues(strconv.FormatUint(uint64(s.ID()), 10)).Inc()
	// The snapshot now fully reflects this shard's state, so every WAL
	// record preceding it is redundant; truncating keeps the log from
	// growing unbounded across repeated deletes.
	if err := w.Truncate(); err != nil {
		log.WithShard("store", s.ID()).Warn().Err(err).Msg("failed to truncate wal after snapshot")
	}
	return nil
}

func (st *Store) refreshRecordCountMetric() {
	total := 0
	for _, s := range st.shards {
		total += s.Len()
	}
	metrics.RecordsTotal.Set(float64(total))
}
