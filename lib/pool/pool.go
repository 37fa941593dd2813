package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrPoolClosed is returned when operating on a closed pool.
	ErrPoolClosed = errors.New("pool: pool is closed")
	// ErrNilFactory is returned by New when no factory is supplied.
	ErrNilFactory = errors.New("pool: nil factory")
	// ErrLeaseReleased is returned when a lease is used after it was closed.
	ErrLeaseReleased = errors.New("pool: lease already released")
	// ErrLeaseInvalid is returned when a lease is used after its instance
	// was force-evicted by pool shutdown.
	ErrLeaseInvalid = errors.New("pool: lease invalidated by pool shutdown")
)

// ConstructionError wraps a factory failure for one key. The requester and
// every waiter queued on that construction receive the same error; the entry
// is discarded, so a later Get constructs fresh.
type ConstructionError struct {
	Key any
	Err error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("pool: constructing instance for key %v: %v", e.Key, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// Resource is a poolable value. The pool calls Close exactly once per
// constructed instance, either after its TTL elapses unreferenced or during
// pool shutdown.
type Resource interface {
	// Close tears the instance down.
	Close() error
}

// Factory constructs the instance for a key. It runs in the requesting
// goroutine, outside the pool lock, and may block. ctx is the requester's
// context, additionally cancelled if the pool shuts down mid-construction.
type Factory[K comparable, R Resource] func(ctx context.Context, key K) (R, error)

// DefaultTTL is used when Config.TTL is zero.
const DefaultTTL = 30 * time.Second

// Config configures a Pool.
type Config struct {
	// TTL is how long an unreferenced instance is kept before teardown.
	// A Get within the window stops the countdown and reuses the
	// instance; the countdown restarts in full on the next release.
	// Default: 30 seconds
	TTL time.Duration
	// Scheduler defers eviction work.
	// Default: SystemScheduler
	Scheduler Scheduler
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TTL:       DefaultTTL,
		Scheduler: SystemScheduler,
	}
}

// Pool is a keyed registry of shared, reference-counted instances.
//
// Get calls with equal keys share one instance: the first caller runs the
// factory and concurrent callers suspend until that construction settles.
// An instance stays alive while at least one lease is open, survives for TTL
// after the last release, and is torn down exactly once - by TTL expiry or
// by Close.
type Pool[K comparable, R Resource] struct {
	factory Factory[K, R]
	ttl     time.Duration
	sched   Scheduler

	mu      sync.Mutex
	entries map[K]*entry[K, R]
	closed  bool

	// building tracks in-flight factory calls so Close can wait them out.
	building sync.WaitGroup

	// Metrics
	constructions  uint64
	constructFails uint64
	hits           uint64
	revivals       uint64
	waits          uint64
	releases       uint64
	evictions      uint64
	forced         uint64
	teardownFails  uint64
}

// New creates a pool around factory.
func New[K comparable, R Resource](factory Factory[K, R], cfg Config) (*Pool[K, R], error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	if cfg.TTL < 0 {
		return nil, fmt.Errorf("pool: negative TTL %v", cfg.TTL)
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = SystemScheduler
	}

	p := &Pool[K, R]{
		factory: factory,
		ttl:     cfg.TTL,
		sched:   cfg.Scheduler,
		entries: make(map[K]*entry[K, R]),
	}
	log.WithField("ttl", cfg.TTL).Debug("pool created")
	return p, nil
}

// Get returns a lease on the instance for key, constructing it if absent.
// A call for a key whose construction is in flight suspends until the
// construction settles and shares its outcome; calls for unrelated keys
// never block each other. The returned lease must be closed exactly once.
func (p *Pool[K, R]) Get(ctx context.Context, key K) (*Lease[K, R], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	e, ok := p.entries[key]
	if !ok {
		// First caller for this key constructs; construct unlocks.
		return p.construct(ctx, key)
	}

	switch e.state {
	case stateReady:
		e.refs++
		lease := &Lease[K, R]{pool: p, entry: e}
		atomic.AddUint64(&p.hits, 1)
		HitsTotal.Inc()
		p.mu.Unlock()
		log.WithField("key", key).Debug("reusing live instance")
		return lease, nil

	case statePendingEviction:
		// A Get beats a racing expiry: stop the timer and bump the
		// generation so a callback that already fired sees stale state
		// and does nothing.
		e.timer.Stop()
		e.timer = nil
		e.timerSeq++
		e.state = stateReady
		e.refs = 1
		lease := &Lease[K, R]{pool: p, entry: e}
		atomic.AddUint64(&p.revivals, 1)
		RevivalsTotal.Inc()
		p.mu.Unlock()
		log.WithField("key", key).Debug("stopped eviction timer, reusing instance")
		return lease, nil

	case stateConstructing:
		w := &waiter[K, R]{ch: make(chan waitResult[K, R], 1)}
		e.waiters = append(e.waiters, w)
		atomic.AddUint64(&p.waits, 1)
		WaitsTotal.Inc()
		p.mu.Unlock()
		log.WithField("key", key).Debug("joining in-flight construction")
		return p.await(ctx, e, w)

	default:
		// Evicted entries leave the map under the same lock that marks
		// them evicted, so no lookup can observe one.
		p.mu.Unlock()
		return nil, fmt.Errorf("pool: entry for key %v in unexpected state %v", key, e.state)
	}
}

// construct inserts a constructing placeholder for key, runs the factory
// outside the lock, and commits the outcome to the placeholder's waiters.
// Called with p.mu held; returns with it released.
func (p *Pool[K, R]) construct(ctx context.Context, key K) (*Lease[K, R], error) {
	buildCtx, cancel := context.WithCancel(ctx)
	e := &entry[K, R]{key: key, state: stateConstructing, cancel: cancel}
	p.entries[key] = e
	p.building.Add(1)
	atomic.AddUint64(&p.constructions, 1)
	ConstructionsTotal.Inc()
	p.mu.Unlock()

	log.WithField("key", key).Debug("constructing new instance")
	start := time.Now()
	value, err := p.factory(buildCtx, key)
	cancel()
	elapsed := time.Since(start)

	p.mu.Lock()
	defer p.building.Done()
	e.cancel = nil

	if p.closed {
		// The pool shut down while the factory ran. Requester and
		// waiters all resolve with ErrPoolClosed, and an instance that
		// arrived anyway is torn down on the spot.
		p.failWaitersLocked(e, ErrPoolClosed)
		e.state = stateEvicted
		delete(p.entries, key)
		p.mu.Unlock()
		if err == nil {
			atomic.AddUint64(&p.forced, 1)
			ForcedEvictionsTotal.Inc()
			p.teardown(key, value)
		}
		return nil, ErrPoolClosed
	}

	if err != nil {
		cerr := &ConstructionError{Key: key, Err: err}
		atomic.AddUint64(&p.constructFails, 1)
		ConstructionFailsTotal.Inc()
		p.failWaitersLocked(e, cerr)
		e.state = stateEvicted
		delete(p.entries, key)
		p.mu.Unlock()
		log.WithError(err).WithField("key", key).Error("construction failed")
		return nil, cerr
	}

	ConstructionLatency.Observe(elapsed.Seconds())
	e.value = value
	e.state = stateReady
	e.refs = 1
	lease := &Lease[K, R]{pool: p, entry: e}
	// Deliver leases to waiters in arrival order. Their references are
	// assigned here, under the lock, so no waiter can ever observe the
	// fresh entry unreferenced.
	for _, w := range e.waiters {
		if w.cancelled {
			continue
		}
		e.refs++
		w.ch <- waitResult[K, R]{lease: &Lease[K, R]{pool: p, entry: e}}
	}
	e.waiters = nil
	p.mu.Unlock()
	log.WithField("key", key).Debug("instance constructed")
	return lease, nil
}

// await suspends a Get until the in-flight construction for e settles or
// ctx ends, whichever comes first.
func (p *Pool[K, R]) await(ctx context.Context, e *entry[K, R], w *waiter[K, R]) (*Lease[K, R], error) {
	select {
	case res := <-w.ch:
		return res.lease, res.err
	case <-ctx.Done():
	}

	// Cancelled while queued. Leave the construction and the other
	// waiters untouched; if the commit raced the cancellation and already
	// delivered a lease, release it so the refcount stays accurate.
	p.mu.Lock()
	w.cancelled = true
	for i, queued := range e.waiters {
		if queued == w {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			break
		}
	}
	select {
	case res := <-w.ch:
		if res.lease != nil {
			res.lease.closeLocked()
		}
	default:
	}
	p.mu.Unlock()
	return nil, ctx.Err()
}

// failWaitersLocked delivers err to every still-queued waiter in arrival
// order. Caller must hold p.mu.
func (p *Pool[K, R]) failWaitersLocked(e *entry[K, R], err error) {
	for _, w := range e.waiters {
		if w.cancelled {
			continue
		}
		w.ch <- waitResult[K, R]{err: err}
	}
	e.waiters = nil
}

// armEvictionLocked starts the TTL countdown for an unreferenced entry.
// Caller must hold p.mu.
func (p *Pool[K, R]) armEvictionLocked(e *entry[K, R]) {
	if p.closed {
		// Close tears everything down; no timer needed.
		return
	}
	e.state = statePendingEviction
	e.timerSeq++
	seq := e.timerSeq
	e.timer = p.sched.AfterFunc(p.ttl, func() { p.expire(e, seq) })
	log.WithField("key", e.key).WithField("ttl", p.ttl).Debug("instance unreferenced, eviction timer armed")
}

// expire is the eviction timer callback for e, armed at generation seq.
func (p *Pool[K, R]) expire(e *entry[K, R], seq uint64) {
	p.mu.Lock()
	cur, ok := p.entries[e.key]
	if !ok || cur != e || e.state != statePendingEviction || e.timerSeq != seq || e.refs != 0 {
		// A Get won the race, or the entry is already gone.
		p.mu.Unlock()
		return
	}
	e.state = stateEvicted
	e.timer = nil
	delete(p.entries, e.key)
	p.mu.Unlock()

	log.WithField("key", e.key).Debug("TTL elapsed, evicting idle instance")
	atomic.AddUint64(&p.evictions, 1)
	EvictionsTotal.Inc()
	p.teardown(e.key, e.value)
}

// teardown closes an instance, logging and counting failures. Teardown
// failures are never surfaced to callers.
func (p *Pool[K, R]) teardown(key K, value R) {
	if err := value.Close(); err != nil {
		atomic.AddUint64(&p.teardownFails, 1)
		TeardownFailsTotal.Inc()
		log.WithError(err).WithField("key", key).Warn("instance teardown failed")
	}
}

// With acquires key, runs fn with the instance, and releases the lease on
// all paths. It is the scoped alternative to Get and Lease.Close.
func (p *Pool[K, R]) With(ctx context.Context, key K, fn func(R) error) error {
	lease, err := p.Get(ctx, key)
	if err != nil {
		return err
	}
	defer lease.Close()

	value, err := lease.Resource()
	if err != nil {
		return err
	}
	return fn(value)
}

// Len reports how many entries the pool is tracking, in any state.
func (p *Pool[K, R]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Close shuts the pool down. In-flight constructions are cancelled and
// waited for, then every remaining instance is torn down regardless of its
// reference count or pending timer. Outstanding leases become invalid.
// Teardown failures are logged and counted, not returned; a second Close
// returns ErrPoolClosed.
func (p *Pool[K, R]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.closed = true

	// Abort in-flight constructions; their requesters and waiters
	// resolve with ErrPoolClosed once the factory returns.
	for _, e := range p.entries {
		if e.state == stateConstructing && e.cancel != nil {
			e.cancel()
		}
	}
	p.mu.Unlock()

	p.building.Wait()

	p.mu.Lock()
	doomed := make([]*entry[K, R], 0, len(p.entries))
	for _, e := range p.entries {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		e.timerSeq++
		e.state = stateEvicted
		doomed = append(doomed, e)
	}
	p.entries = make(map[K]*entry[K, R])
	p.mu.Unlock()

	for _, e := range doomed {
		log.WithField("key", e.key).WithField("refs", e.refs).Debug("force-evicting instance on close")
		atomic.AddUint64(&p.forced, 1)
		ForcedEvictionsTotal.Inc()
		p.teardown(e.key, e.value)
	}

	log.WithField("evicted", len(doomed)).Debug("pool closed")
	return nil
}

// Stats is a snapshot of pool activity.
type Stats struct {
	// Entries is the number of tracked keys.
	Entries int
	// Constructing, Ready, and PendingEviction break Entries down by state.
	Constructing    int
	Ready           int
	PendingEviction int
	// Leases is the number of outstanding leases across all entries.
	Leases int
	// Constructions is the total number of factory invocations.
	Constructions uint64
	// ConstructionFails is the number of factory invocations that failed.
	ConstructionFails uint64
	// Hits counts Gets served by a live instance.
	Hits uint64
	// Revivals counts Gets that stopped a pending eviction.
	Revivals uint64
	// Waits counts Gets that joined an in-flight construction.
	Waits uint64
	// Releases counts lease releases.
	Releases uint64
	// Evictions counts instances torn down by TTL expiry.
	Evictions uint64
	// ForcedEvictions counts instances torn down by Close.
	ForcedEvictions uint64
	// TeardownFails counts teardowns that returned an error.
	TeardownFails uint64
}

// Stats returns current pool statistics.
func (p *Pool[K, R]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		Entries:           len(p.entries),
		Constructions:     atomic.LoadUint64(&p.constructions),
		ConstructionFails: atomic.LoadUint64(&p.constructFails),
		Hits:              atomic.LoadUint64(&p.hits),
		Revivals:          atomic.LoadUint64(&p.revivals),
		Waits:             atomic.LoadUint64(&p.waits),
		Releases:          atomic.LoadUint64(&p.releases),
		Evictions:         atomic.LoadUint64(&p.evictions),
		ForcedEvictions:   atomic.LoadUint64(&p.forced),
		TeardownFails:     atomic.LoadUint64(&p.teardownFails),
	}
	for _, e := range p.entries {
		switch e.state {
		case stateConstructing:
			s.Constructing++
		case stateReady:
			s.Ready++
		case statePendingEviction:
			s.PendingEviction++
		}
		s.Leases += e.refs
	}
	return s
}
