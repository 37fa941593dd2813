package pool

import "context"

// entryState tracks where an entry is in its lifecycle.
type entryState int

const (
	// stateConstructing means the factory call is in flight.
	stateConstructing entryState = iota
	// stateReady means the instance is live and referenced.
	stateReady
	// statePendingEviction means the instance is unreferenced and its
	// TTL timer is armed.
	statePendingEviction
	// stateEvicted means the instance has been torn down. Terminal.
	stateEvicted
)

func (s entryState) String() string {
	switch s {
	case stateConstructing:
		return "constructing"
	case stateReady:
		return "ready"
	case statePendingEviction:
		return "pending-eviction"
	case stateEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// waitResult is what a queued waiter receives when construction settles.
type waitResult[K comparable, R Resource] struct {
	lease *Lease[K, R]
	err   error
}

// waiter is one Get call suspended on an in-flight construction.
type waiter[K comparable, R Resource] struct {
	ch chan waitResult[K, R]

	// cancelled is guarded by the pool mutex.
	cancelled bool
}

// entry pairs one constructed instance with its bookkeeping.
// All fields are guarded by the owning pool's mutex.
type entry[K comparable, R Resource] struct {
	key   K
	state entryState
	value R

	// refs counts outstanding leases. Never negative.
	refs int

	// waiters holds Get calls that arrived during construction, in
	// arrival order.
	waiters []*waiter[K, R]

	// timer is the pending-eviction handle; non-nil iff the entry is in
	// statePendingEviction. timerSeq is bumped every time a timer is
	// armed or stopped so a callback from a stale timer can recognize
	// itself and do nothing.
	timer    Timer
	timerSeq uint64

	// cancel aborts the in-flight construction context; non-nil only
	// while constructing.
	cancel context.CancelFunc
}
