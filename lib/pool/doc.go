// Package pool provides a keyed pool of shared, reference-counted resources
// with TTL-deferred teardown.
//
// Unlike a free-list pool that hands each caller its own connection, this
// pool memoizes instances by key: concurrent and repeated Gets for equal
// keys share ONE instance, the first caller constructs it while the rest
// wait, and the instance survives for a grace period (the TTL) after its
// last lease is released so closely spaced uses never pay the construction
// cost twice.
//
// The pool supports:
//   - At-most-one construction per key, with FIFO delivery to waiters
//   - Reference counting via leases, so shared instances are never torn
//     down while in use
//   - A cancellable TTL timer per idle instance; any Get within the window
//     reuses the instance and resets the grace period in full
//   - Forced teardown of everything on Close, regardless of reference counts
//   - Metrics for pool activity
//
// # Basic Usage
//
//	factory := func(ctx context.Context, addr string) (*backend, error) {
//	    return dialBackend(ctx, addr)
//	}
//
//	cfg := pool.DefaultConfig()
//	cfg.TTL = time.Minute
//
//	p, err := pool.New(factory, cfg)
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	lease, err := p.Get(ctx, "db-1.example.i2p")
//	if err != nil {
//	    return err
//	}
//	defer lease.Close()
//
//	b, err := lease.Resource()
//	if err != nil {
//	    return err
//	}
//	// Use b; other goroutines asking for "db-1.example.i2p" share it.
//
// # Scoped Usage
//
// With acquires, runs a function, and releases on all paths:
//
//	err := p.With(ctx, "db-1.example.i2p", func(b *backend) error {
//	    return b.Query(...)
//	})
//
// # Keys
//
// The pool is generic over any comparable key type. Callers that want to key
// instances by an argument list (the way a memoized constructor would) can
// derive string keys with the keyfn package:
//
//	key, err := keyfn.Reduce(host, port, useTLS)
//	if err != nil {
//	    return err
//	}
//	lease, err := p.Get(ctx, key)
//
// # Process Boundaries
//
// A Pool is bound to the process and scheduler that created it. It cannot be
// shared or transferred across processes; a new process starts with a new,
// empty pool and re-constructs instances on first use.
//
// # Metrics
//
// Pool activity is registered with the metrics package under leasepool_*
// names (entries and leases gauges, construction/hit/revival/wait/eviction
// counters, construction latency histogram). Call UpdateMetrics with a Stats
// snapshot to refresh the gauges before scraping.
package pool
