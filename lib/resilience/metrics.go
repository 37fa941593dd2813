package resilience

import (
	"github.com/go-i2p/leasepool/lib/metrics"
)

// Construction guard metrics for Prometheus exposition.
var (
	// ConstructionGuardState tracks the current state of the guard.
	// 0 = closed, 1 = open, 2 = half-open
	ConstructionGuardState = metrics.NewGauge(
		"leasepool_guard_state",
		"Current state of the construction guard (0=closed, 1=open, 2=half-open)",
	)

	// ConstructionGuardTrips counts the number of times guards have opened.
	ConstructionGuardTrips = metrics.NewCounter(
		"leasepool_guard_trips_total",
		"Total number of times construction guards have opened",
	)

	// ConstructionGuardSuccesses counts constructions that succeeded through a guard.
	ConstructionGuardSuccesses = metrics.NewCounter(
		"leasepool_guard_successes_total",
		"Total constructions that succeeded through a guard",
	)

	// ConstructionGuardFailures counts constructions that failed through a guard.
	ConstructionGuardFailures = metrics.NewCounter(
		"leasepool_guard_failures_total",
		"Total constructions that failed through a guard",
	)

	// ConstructionGuardRejections counts constructions suppressed by an open guard.
	ConstructionGuardRejections = metrics.NewCounter(
		"leasepool_guard_rejections_total",
		"Total constructions suppressed by an open guard",
	)
)

// MetricsCallback is a state change callback that updates the guard metrics.
// Use this with SetStateChangeCallback to automatically track transitions.
func MetricsCallback(from, to GuardState) {
	ConstructionGuardState.Set(int64(to))
	if to == GuardOpen {
		ConstructionGuardTrips.Inc()
	}
}
