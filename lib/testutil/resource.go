package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-i2p/leasepool/lib/pool"
)

// FakeResource is a pooled instance that records how it was torn down.
type FakeResource struct {
	ID  int
	Key string

	mu         sync.Mutex
	closeCount int
	closeErr   error
}

// Close implements pool.Resource.
func (r *FakeResource) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeCount++
	return r.closeErr
}

// CloseCount returns how many times Close has been called.
func (r *FakeResource) CloseCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeCount
}

// IsClosed reports whether Close has been called at least once.
func (r *FakeResource) IsClosed() bool {
	return r.CloseCount() > 0
}

// FailClose makes subsequent Close calls return err.
func (r *FakeResource) FailClose(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeErr = err
}

// CountingFactory returns a factory that constructs FakeResources and
// counts invocations through counter.
func CountingFactory(counter *int32) pool.Factory[string, *FakeResource] {
	return func(ctx context.Context, key string) (*FakeResource, error) {
		id := atomic.AddInt32(counter, 1)
		return &FakeResource{ID: int(id), Key: key}, nil
	}
}

// FailingFactory returns a factory whose every construction fails with cause.
func FailingFactory(cause error) pool.Factory[string, *FakeResource] {
	return func(ctx context.Context, key string) (*FakeResource, error) {
		return nil, cause
	}
}

// SlowFactory returns a factory that takes delay to construct, honoring
// context cancellation the way a real tunnel build would.
func SlowFactory(delay time.Duration, counter *int32) pool.Factory[string, *FakeResource] {
	return func(ctx context.Context, key string) (*FakeResource, error) {
		select {
		case <-time.After(delay):
			id := atomic.AddInt32(counter, 1)
			return &FakeResource{ID: int(id), Key: key}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
