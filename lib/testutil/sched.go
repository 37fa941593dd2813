// Package testutil provides helpers for exercising pools in tests: a
// deterministic scheduler, canned resources and factories, and a SAM
// availability gate for integration tests that need a running I2P router.
package testutil

import (
	"sync"
	"time"

	"github.com/go-i2p/leasepool/lib/pool"
)

// FakeScheduler is a manual clock implementing pool.Scheduler. Timers armed
// on it never fire on their own; tests decide when time passes.
type FakeScheduler struct {
	mu     sync.Mutex
	timers []*FakeTimer
}

// FakeTimer is a timer armed on a FakeScheduler.
type FakeTimer struct {
	sched   *FakeScheduler
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

// NewFakeScheduler creates an empty manual clock.
func NewFakeScheduler() *FakeScheduler {
	return &FakeScheduler{}
}

// AfterFunc arms a timer that fires only when the test calls Fire.
func (s *FakeScheduler) AfterFunc(d time.Duration, fn func()) pool.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	ft := &FakeTimer{sched: s, delay: d, fn: fn}
	s.timers = append(s.timers, ft)
	return ft
}

// Armed reports how many timers are pending.
func (s *FakeScheduler) Armed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// LastDelay returns the duration the most recently armed timer was set to.
func (s *FakeScheduler) LastDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return 0
	}
	return s.timers[len(s.timers)-1].delay
}

// Fire expires every pending timer as if its delay had elapsed, and returns
// how many fired. Callbacks run outside the scheduler lock.
func (s *FakeScheduler) Fire() int {
	s.mu.Lock()
	var due []func()
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t.fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range due {
		fn()
	}
	return len(due)
}

// Stop implements pool.Timer.
func (t *FakeTimer) Stop() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
