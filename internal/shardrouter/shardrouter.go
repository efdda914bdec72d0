// Package shardrouter implements the deterministic key→shard mapping
// (spec §4.L1). The hash is fixed for the lifetime of a data directory:
// changing it, or the shard count, without a rebuild silently reassigns
// keys to different shards.
package shardrouter

import "github.com/cespare/xxhash/v2"

// ShardOf returns the shard id for key under a keyspace of n shards.
// n must be positive; callers own that invariant (it comes from startup
// config, validated once).
func ShardOf(key string, n uint32) uint32 {
	return uint32(xxhash.Sum64String(key) % uint64(n))
}
