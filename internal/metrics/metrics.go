// Package metrics exposes Prometheus counters and gauges for jsonkv,
// adapted from the teacher's pkg/metrics: store mutations by operation,
// WAL appends, snapshots written, active connections, and the record
// count. This is ambient
// instrumentation, not a queryable feature of the store itself.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// CommandsTotal counts store mutations by operation and outcome: one
	// insert_or_update per record written and one delete per single-key
	// Delete. Read commands, DeleteMany and DeleteAll are not counted.
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsonkv_commands_total",
			Help: "Total store mutations (insert_or_update per record, single-key delete), by operation and outcome.",
		},
		[]string{"verb", "outcome"},
	)

	// WALAppendsTotal counts WAL records appended, by shard.
	WALAppendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsonkv_wal_appends_total",
			Help: "Total WAL records appended, by shard id.",
		},
		[]string{"shard"},
	)

	// SnapshotsWrittenTotal counts full-shard snapshots written, by shard.
	SnapshotsWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jsonkv_snapshots_written_total",
			Help: "Total full-shard snapshots written, by shard id.",
		},
		[]string{"shard"},
	)

	// ActiveConnections tracks currently open client connections.
	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "jsonkv_active_connections",
			Help: "Number of currently open client TCP connections.",
		},
	)

	// RecordsTotal tracks the total record count across all shards.
	RecordsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "jsonkv_records_total",
			Help: "Total number of records held across all shards.",
		},
	)
)

// Registry is the Prometheus registry jsonkv's /metrics endpoint serves.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		CommandsTotal,
		WALAppendsTotal,
		SnapshotsWrittenTotal,
		ActiveConnections,
		RecordsTotal,
	)
}
