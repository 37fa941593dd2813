package testutil

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/go-i2p/leasepool/lib/pool"
)

func TestFakeSchedulerDrivesEviction(t *testing.T) {
	sched := NewFakeScheduler()
	cfg := pool.DefaultConfig()
	cfg.Scheduler = sched

	var counter int32
	p, err := pool.New(CountingFactory(&counter), cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	lease, err := p.Get(context.Background(), "a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if sched.Armed() != 0 {
		t.Errorf("Expected no timer while leased, got %d", sched.Armed())
	}

	if err := lease.Close(); err != nil {
		t.Fatalf("lease Close failed: %v", err)
	}
	if sched.Armed() != 1 {
		t.Fatalf("Expected armed timer after release, got %d", sched.Armed())
	}
	if got := sched.LastDelay(); got != cfg.TTL {
		t.Errorf("Expected delay %v, got %v", cfg.TTL, got)
	}

	if fired := sched.Fire(); fired != 1 {
		t.Errorf("Expected 1 timer to fire, got %d", fired)
	}
	if p.Len() != 0 {
		t.Errorf("Expected eviction after Fire, Len = %d", p.Len())
	}
}

func TestFakeTimerStop(t *testing.T) {
	sched := NewFakeScheduler()
	timer := sched.AfterFunc(time.Second, func() {})

	if sched.Armed() != 1 {
		t.Fatalf("Expected 1 armed timer, got %d", sched.Armed())
	}
	if !timer.Stop() {
		t.Error("Expected first Stop to report true")
	}
	if timer.Stop() {
		t.Error("Expected second Stop to report false")
	}
	if sched.Armed() != 0 {
		t.Errorf("Expected no armed timers, got %d", sched.Armed())
	}
	if sched.Fire() != 0 {
		t.Error("Expected stopped timer not to fire")
	}
}

func TestFakeResourceTracksClose(t *testing.T) {
	r := &FakeResource{ID: 1}
	if r.IsClosed() {
		t.Error("Expected new resource to be open")
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	r.Close()
	if r.CloseCount() != 2 {
		t.Errorf("Expected 2 closes, got %d", r.CloseCount())
	}

	cause := errors.New("teardown refused")
	r.FailClose(cause)
	if err := r.Close(); !errors.Is(err, cause) {
		t.Errorf("Expected armed close error, got %v", err)
	}
}

func TestCountingFactory(t *testing.T) {
	var counter int32
	f := CountingFactory(&counter)

	r, err := f(context.Background(), "dest-a")
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	if r.Key != "dest-a" {
		t.Errorf("Expected key %q, got %q", "dest-a", r.Key)
	}
	if counter != 1 {
		t.Errorf("Expected 1 invocation, got %d", counter)
	}
}

func TestFailingFactory(t *testing.T) {
	cause := errors.New("no router")
	f := FailingFactory(cause)

	if _, err := f(context.Background(), "x"); !errors.Is(err, cause) {
		t.Errorf("Expected cause, got %v", err)
	}
}

func TestSlowFactoryHonorsCancellation(t *testing.T) {
	var counter int32
	f := SlowFactory(time.Minute, &counter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if counter != 0 {
		t.Errorf("Expected no construction, got %d", counter)
	}

	quick := SlowFactory(time.Millisecond, &counter)
	if _, err := quick(context.Background(), "x"); err != nil {
		t.Errorf("Expected construction to finish, got %v", err)
	}
}

func TestCheckSAM(t *testing.T) {
	// A live listener passes the check.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	addr := ln.Addr().String()
	if err := CheckSAM(addr); err != nil {
		t.Errorf("Expected reachable bridge, got %v", err)
	}

	// After the listener goes away the same address fails.
	ln.Close()
	if err := CheckSAM(addr); err == nil {
		t.Error("Expected error for closed port")
	}
}
