package pool

import "github.com/go-i2p/leasepool/lib/metrics"

// Pool lifecycle metrics
var (
	// EntriesGauge is the number of keys the pool is tracking.
	EntriesGauge = metrics.NewGauge(
		"leasepool_entries",
		"Number of keys currently tracked by the pool",
	)
	// ReadyGauge is the number of live, referenced instances.
	ReadyGauge = metrics.NewGauge(
		"leasepool_entries_ready",
		"Number of instances that are live and referenced",
	)
	// PendingEvictionGauge is the number of instances waiting out their TTL.
	PendingEvictionGauge = metrics.NewGauge(
		"leasepool_entries_pending_eviction",
		"Number of unreferenced instances whose eviction timer is armed",
	)
	// ConstructingGauge is the number of in-flight constructions.
	ConstructingGauge = metrics.NewGauge(
		"leasepool_entries_constructing",
		"Number of factory calls currently in flight",
	)
	// LeasesGauge is the number of outstanding leases.
	LeasesGauge = metrics.NewGauge(
		"leasepool_leases",
		"Number of outstanding leases across all entries",
	)
	// ConstructionsTotal is the total number of factory invocations.
	ConstructionsTotal = metrics.NewCounter(
		"leasepool_constructions_total",
		"Total number of factory invocations",
	)
	// ConstructionFailsTotal is the number of factory invocations that failed.
	ConstructionFailsTotal = metrics.NewCounter(
		"leasepool_construction_fails_total",
		"Total number of factory invocations that failed",
	)
	// HitsTotal is the number of Gets served by a live instance.
	HitsTotal = metrics.NewCounter(
		"leasepool_hits_total",
		"Total number of Gets served by an already-live instance",
	)
	// RevivalsTotal is the number of Gets that stopped a pending eviction.
	RevivalsTotal = metrics.NewCounter(
		"leasepool_revivals_total",
		"Total number of Gets that stopped a pending eviction timer",
	)
	// WaitsTotal is the number of Gets that joined an in-flight construction.
	WaitsTotal = metrics.NewCounter(
		"leasepool_waits_total",
		"Total number of Gets that waited on an in-flight construction",
	)
	// ReleasesTotal is the number of lease releases.
	ReleasesTotal = metrics.NewCounter(
		"leasepool_releases_total",
		"Total number of lease releases",
	)
	// EvictionsTotal is the number of instances torn down by TTL expiry.
	EvictionsTotal = metrics.NewCounter(
		"leasepool_evictions_total",
		"Total number of instances torn down after their TTL elapsed",
	)
	// ForcedEvictionsTotal is the number of instances torn down by Close.
	ForcedEvictionsTotal = metrics.NewCounter(
		"leasepool_forced_evictions_total",
		"Total number of instances torn down by pool shutdown",
	)
	// TeardownFailsTotal is the number of teardowns that returned an error.
	TeardownFailsTotal = metrics.NewCounter(
		"leasepool_teardown_fails_total",
		"Total number of instance teardowns that returned an error",
	)
	// ConstructionLatency tracks factory time for constructions that
	// committed an instance. Failed and abandoned constructions are
	// counted by their own counters, not observed here.
	ConstructionLatency = metrics.NewHistogram(
		"leasepool_construction_duration_seconds",
		"Time spent constructing instances that were successfully committed",
		metrics.DefaultLatencyBuckets,
	)
)

// UpdateMetrics refreshes the pool gauges from a Stats snapshot.
func UpdateMetrics(stats Stats) {
	EntriesGauge.Set(int64(stats.Entries))
	ReadyGauge.Set(int64(stats.Ready))
	PendingEvictionGauge.Set(int64(stats.PendingEviction))
	ConstructingGauge.Set(int64(stats.Constructing))
	LeasesGauge.Set(int64(stats.Leases))
}
