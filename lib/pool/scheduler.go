package pool

import "time"

// Scheduler defers eviction work. The pool assumes only that a scheduled
// function runs no earlier than the requested delay.
type Scheduler interface {
	// AfterFunc arranges for fn to run in its own goroutine once d has
	// elapsed and returns a handle that can stop the run.
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a cancellable handle to a scheduled function.
type Timer interface {
	// Stop prevents the scheduled function from running. It reports
	// whether the timer was stopped before it fired.
	Stop() bool
}

// SystemScheduler schedules on the runtime timer heap via time.AfterFunc.
var SystemScheduler Scheduler = systemScheduler{}

type systemScheduler struct{}

func (systemScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
