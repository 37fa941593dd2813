// Package resilience guards expensive construction against a persistently
// failing backend.
//
// A Guard implements the circuit breaker pattern around a pool factory:
// repeated construction failures trip it open, and while open every request
// fails fast instead of paying the construction cost to learn the same
// thing again. After RetryAfter it lets a few probes through; probe
// successes close it, a probe failure reopens it.
//
// State transitions:
//
//	Closed (normal) -> Open (failing) -> HalfOpen (probing) -> Closed
//	                     ^                    |
//	                     +--------------------+ (if a probe fails)
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-i2p/leasepool/lib/pool"
)

// ErrGuardOpen is returned when construction is suppressed by an open guard.
var ErrGuardOpen = errors.New("resilience: guard open, construction suppressed")

// GuardState represents the state of a construction guard.
type GuardState int

const (
	// GuardClosed is the normal operating state - constructions pass through.
	GuardClosed GuardState = iota
	// GuardOpen means the guard is tripped - constructions fail immediately.
	GuardOpen
	// GuardHalfOpen means the guard is probing whether the backend recovered.
	GuardHalfOpen
)

func (s GuardState) String() string {
	switch s {
	case GuardClosed:
		return "closed"
	case GuardOpen:
		return "open"
	case GuardHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// GuardConfig configures the guard behavior.
type GuardConfig struct {
	// FailureThreshold is the number of construction failures before opening.
	FailureThreshold int
	// SuccessThreshold is the number of probe successes in half-open state
	// before closing the guard.
	SuccessThreshold int
	// RetryAfter is the duration an open guard waits before probing.
	RetryAfter time.Duration
	// MaxProbes is the maximum number of constructions allowed while half-open.
	MaxProbes int
}

// DefaultGuardConfig returns defaults sized for tunnel construction, which
// fails slowly and recovers slowly.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		RetryAfter:       30 * time.Second,
		MaxProbes:        3,
	}
}

// Guard tracks construction outcomes and decides when to stop trying.
type Guard struct {
	mu     sync.RWMutex
	config GuardConfig
	name   string

	// Current state
	state GuardState

	// Counters
	failureCount int
	successCount int
	probeCount   int

	// Timestamps
	lastFailure time.Time
	lastChange  time.Time
	openedAt    time.Time

	// Callback for state changes
	onChange func(from, to GuardState)
}

// NewGuard creates a guard with the given configuration.
func NewGuard(name string, cfg GuardConfig) *Guard {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultGuardConfig().FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultGuardConfig().SuccessThreshold
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = DefaultGuardConfig().RetryAfter
	}
	if cfg.MaxProbes <= 0 {
		cfg.MaxProbes = DefaultGuardConfig().MaxProbes
	}

	return &Guard{
		config:     cfg,
		name:       name,
		state:      GuardClosed,
		lastChange: time.Now(),
	}
}

// SetStateChangeCallback sets the callback for state changes.
func (g *Guard) SetStateChangeCallback(fn func(from, to GuardState)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onChange = fn
}

// State returns the current guard state.
func (g *Guard) State() GuardState {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.stateWithTimeCheck()
}

// stateWithTimeCheck returns the current state, reporting half-open once an
// open guard's retry delay has elapsed. Must be called with at least a read
// lock; the actual transition happens in Allow.
func (g *Guard) stateWithTimeCheck() GuardState {
	if g.state == GuardOpen && time.Since(g.openedAt) >= g.config.RetryAfter {
		return GuardHalfOpen
	}
	return g.state
}

// Allow checks if a construction should be attempted.
// Returns true if it can proceed, false if it should be rejected.
func (g *Guard) Allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case GuardClosed:
		return true
	case GuardOpen:
		// Check if we should transition to half-open
		if time.Since(g.openedAt) >= g.config.RetryAfter {
			g.transitionTo(GuardHalfOpen)
			g.probeCount = 1
			return true
		}
		return false
	case GuardHalfOpen:
		// Allow limited probes in half-open state
		if g.probeCount < g.config.MaxProbes {
			g.probeCount++
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess records a successful construction.
func (g *Guard) RecordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case GuardClosed:
		// Reset failure count on success
		g.failureCount = 0
	case GuardHalfOpen:
		g.successCount++
		if g.successCount >= g.config.SuccessThreshold {
			g.transitionTo(GuardClosed)
		}
	case GuardOpen:
		// Shouldn't happen, but handle gracefully
		log.WithField("guard", g.name).Warn("success recorded while guard open")
	}
}

// RecordFailure records a failed construction.
func (g *Guard) RecordFailure() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.lastFailure = time.Now()

	switch g.state {
	case GuardClosed:
		g.failureCount++
		if g.failureCount >= g.config.FailureThreshold {
			g.transitionTo(GuardOpen)
		}
	case GuardHalfOpen:
		// A probe failed - go back to open
		g.transitionTo(GuardOpen)
	case GuardOpen:
		// Already open, no state change needed
	}
}

// transitionTo changes the guard state. Must be called with the lock held.
func (g *Guard) transitionTo(newState GuardState) {
	if g.state == newState {
		return
	}

	oldState := g.state
	g.state = newState
	g.lastChange = time.Now()

	// Reset counters based on new state
	switch newState {
	case GuardClosed:
		g.failureCount = 0
		g.successCount = 0
	case GuardOpen:
		g.openedAt = time.Now()
		g.successCount = 0
	case GuardHalfOpen:
		g.successCount = 0
		g.probeCount = 0
	}

	log.WithField("guard", g.name).
		WithField("from", oldState.String()).
		WithField("to", newState.String()).
		Info("construction guard state transition")

	if g.onChange != nil {
		// Call callback without lock to avoid deadlocks
		go g.onChange(oldState, newState)
	}
}

// Reset resets the guard to its initial closed state.
func (g *Guard) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state = GuardClosed
	g.failureCount = 0
	g.successCount = 0
	g.probeCount = 0
	g.lastChange = time.Now()
	g.openedAt = time.Time{}
}

// ForceOpen forces the guard open (for testing or manual intervention).
func (g *Guard) ForceOpen() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transitionTo(GuardOpen)
}

// ForceClose forces the guard closed (for testing or manual intervention).
func (g *Guard) ForceClose() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transitionTo(GuardClosed)
}

// Stats returns current guard statistics.
func (g *Guard) Stats() GuardStats {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return GuardStats{
		Name:         g.name,
		State:        g.stateWithTimeCheck(),
		FailureCount: g.failureCount,
		SuccessCount: g.successCount,
		ProbeCount:   g.probeCount,
		LastFailure:  g.lastFailure,
		LastChange:   g.lastChange,
		Config:       g.config,
	}
}

// GuardStats holds statistics for a construction guard.
type GuardStats struct {
	Name         string
	State        GuardState
	FailureCount int
	SuccessCount int
	ProbeCount   int
	LastFailure  time.Time
	LastChange   time.Time
	Config       GuardConfig
}

// IsOpen returns true if the guard is currently open (rejecting constructions).
func (g *Guard) IsOpen() bool {
	return g.State() == GuardOpen
}

// IsClosed returns true if the guard is currently closed (allowing constructions).
func (g *Guard) IsClosed() bool {
	return g.State() == GuardClosed
}

// IsHalfOpen returns true if the guard is currently half-open (probing).
func (g *Guard) IsHalfOpen() bool {
	return g.State() == GuardHalfOpen
}

// Name returns the name of this guard.
func (g *Guard) Name() string {
	return g.name
}

// WrapFactory returns a factory that consults g before invoking f and feeds
// each outcome back into it. While g is open the pool fails fast with
// ErrGuardOpen instead of paying the construction cost again; cancellation
// of the requesting context is never counted against the backend.
func WrapFactory[K comparable, R pool.Resource](g *Guard, f pool.Factory[K, R]) pool.Factory[K, R] {
	return func(ctx context.Context, key K) (R, error) {
		var zero R
		if !g.Allow() {
			ConstructionGuardRejections.Inc()
			return zero, ErrGuardOpen
		}

		r, err := f(ctx, key)
		if err != nil {
			if ctx.Err() != nil {
				// A cancelled construction says nothing about backend health.
				return zero, err
			}
			ConstructionGuardFailures.Inc()
			g.RecordFailure()
			return zero, err
		}

		ConstructionGuardSuccesses.Inc()
		g.RecordSuccess()
		return r, nil
	}
}
