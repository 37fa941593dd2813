package i2psession

import (
	"context"
	"fmt"

	"github.com/go-i2p/leasepool/lib/pool"
)

// Factory returns a pool factory that opens one session per key. The key
// is the SAM tunnel name, so distinct keys get distinct I2P destinations.
// A positive ConstructTimeout bounds each open on top of the requester's
// context.
func Factory(cfg *Config) pool.Factory[string, *Session] {
	return func(ctx context.Context, key string) (*Session, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if cfg.ConstructTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.ConstructTimeout)
			defer cancel()
		}
		return open(ctx, New(key, cfg.SAMAddress, cfg.Options))
	}
}

// open runs the SAM handshake in its own goroutine so the deadline is
// honored even though the handshake itself cannot be interrupted. A
// session that finishes opening after the deadline has already passed is
// closed as soon as it arrives.
func open(ctx context.Context, s *Session) (*Session, error) {
	done := make(chan error, 1)
	go func() { done <- s.Open(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
		return s, nil
	case <-ctx.Done():
		go func() {
			if <-done == nil {
				if err := s.Close(); err != nil {
					log.WithError(err).
						WithField("name", s.Name()).
						Warn("closing session that opened after its deadline")
				}
			}
		}()
		return nil, ctx.Err()
	}
}

// NewPool builds a session pool from cfg. Sessions are constructed on
// first Get per key, shared by every caller that asks for the same key,
// and torn down after sitting unreferenced for the configured TTL.
func NewPool(cfg *Config) (*pool.Pool[string, *Session], error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	pcfg := pool.DefaultConfig()
	if cfg.TTL > 0 {
		pcfg.TTL = cfg.TTL
	}
	return pool.New(Factory(cfg), pcfg)
}
