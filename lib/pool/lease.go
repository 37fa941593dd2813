package pool

import "sync/atomic"

// Lease is a caller-held handle to a pooled instance. Every successful Get
// returns a distinct lease over the (possibly shared) instance, and every
// lease must be closed exactly once. Closing the last lease for a key starts
// the TTL countdown instead of tearing the instance down immediately.
type Lease[K comparable, R Resource] struct {
	pool  *Pool[K, R]
	entry *entry[K, R]

	// released is guarded by pool.mu.
	released bool
}

// Resource returns the leased instance. It fails with ErrLeaseReleased after
// Close, or with ErrLeaseInvalid if the pool was shut down while the lease
// was still outstanding.
func (l *Lease[K, R]) Resource() (R, error) {
	l.pool.mu.Lock()
	defer l.pool.mu.Unlock()

	var zero R
	if l.released {
		return zero, ErrLeaseReleased
	}
	if l.entry.state == stateEvicted {
		return zero, ErrLeaseInvalid
	}
	return l.entry.value, nil
}

// Key returns the key this lease was acquired under.
func (l *Lease[K, R]) Key() K {
	return l.entry.key
}

// Close releases the lease. The first call decrements the instance's
// reference count and, at zero, arms the eviction timer. Later calls return
// ErrLeaseReleased. Closing a lease whose instance was already force-evicted
// by pool shutdown is a no-op.
func (l *Lease[K, R]) Close() error {
	l.pool.mu.Lock()
	defer l.pool.mu.Unlock()
	return l.closeLocked()
}

// closeLocked releases the lease. Caller must hold pool.mu.
func (l *Lease[K, R]) closeLocked() error {
	if l.released {
		return ErrLeaseReleased
	}
	l.released = true
	atomic.AddUint64(&l.pool.releases, 1)
	ReleasesTotal.Inc()

	e := l.entry
	if e.state == stateEvicted {
		// Forced teardown already ran; nothing left to account.
		return nil
	}

	e.refs--
	if e.refs < 0 {
		panic("pool: lease refcount underflow")
	}
	if e.refs == 0 {
		l.pool.armEvictionLocked(e)
	}
	return nil
}
