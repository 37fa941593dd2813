// Package i2psession maintains I2P destinations as pooled resources.
// Establishing a destination means negotiating with the SAM bridge and
// building tunnels through the I2P network, which takes seconds and holds
// router-side state, so sessions are shared through a pool and torn down
// only after sitting unreferenced for a TTL.
//
// Prerequisites:
//   - A running I2P router with SAM enabled (default port 7656)
//
// Example usage:
//
//	p, err := i2psession.NewPool(i2psession.DefaultConfig())
//	lease, err := p.Get(ctx, "chat")
//	defer lease.Close()
//	sess, err := lease.Resource()
//	conn, err := sess.Dial("tcp", "idk.i2p:80")
package i2psession

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/go-i2p/i2pkeys"
	"github.com/go-i2p/onramp"
)

var (
	// ErrNotOpen is returned when a session is used before Open or after Close.
	ErrNotOpen = errors.New("i2psession: session not open")

	// ErrAlreadyOpen is returned when Open is called on a live session.
	ErrAlreadyOpen = errors.New("i2psession: session already open")
)

// Session is one I2P destination: a garlic session with a streaming
// listener accepting inbound connections, plus outbound Dial from the same
// destination. It satisfies pool.Resource, so a pool can construct, share,
// and tear down sessions by key.
type Session struct {
	mu sync.Mutex

	// Configuration
	name    string   // Tunnel name for I2P
	samAddr string   // SAM bridge address
	options []string // SAM session options (tunnel parameters)

	// I2P session components
	garlic   *onramp.Garlic
	listener net.Listener
	addr     i2pkeys.I2PAddr

	// State
	closed bool
}

// New creates an unopened session. An empty samAddr selects the default
// SAM bridge address; nil options select onramp's defaults at Open time.
func New(name, samAddr string, options []string) *Session {
	if samAddr == "" {
		samAddr = DefaultSAMAddress
	}
	return &Session{
		name:    name,
		samAddr: samAddr,
		options: options,
	}
}

// Open establishes the SAM session, builds tunnels, and starts the
// streaming listener. The context is checked before work starts; the SAM
// handshake itself cannot be interrupted once underway.
func (s *Session) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return ErrAlreadyOpen
	}

	options := s.options
	if len(options) == 0 {
		options = onramp.OPT_DEFAULTS
	}

	log.WithField("name", s.name).
		WithField("sam", s.samAddr).
		Debug("establishing I2P session")

	garlic, err := onramp.NewGarlic(s.name, s.samAddr, options)
	if err != nil {
		return fmt.Errorf("creating garlic session: %w", err)
	}

	listener, err := garlic.Listen()
	if err != nil {
		garlic.Close()
		return fmt.Errorf("opening stream listener: %w", err)
	}

	addr, ok := listener.Addr().(i2pkeys.I2PAddr)
	if !ok {
		// Try string conversion as fallback
		addr, err = i2pkeys.NewI2PAddrFromString(listener.Addr().String())
		if err != nil {
			listener.Close()
			garlic.Close()
			return fmt.Errorf("parsing local destination: %w", err)
		}
	}

	s.garlic = garlic
	s.listener = listener
	s.addr = addr
	s.closed = false

	log.WithField("name", s.name).
		WithField("addr", addr.Base32()).
		Info("I2P session established")
	return nil
}

// Name returns the tunnel name this session was created with.
func (s *Session) Name() string {
	return s.name
}

// Addr returns this session's I2P destination. Zero until Open succeeds.
func (s *Session) Addr() i2pkeys.I2PAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Base32 returns the destination in base32 form, or "" until Open succeeds.
func (s *Session) Base32() string {
	addr := s.Addr()
	if addr == "" {
		return ""
	}
	return addr.Base32()
}

// Listener returns the streaming listener accepting connections addressed
// to this destination, or nil before Open.
func (s *Session) Listener() net.Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener
}

// Dial opens a streaming connection from this destination to an I2P
// address (base32, base64, or a name the router can resolve).
func (s *Session) Dial(network, addr string) (net.Conn, error) {
	s.mu.Lock()
	garlic := s.garlic
	s.mu.Unlock()

	if garlic == nil {
		return nil, ErrNotOpen
	}
	return garlic.Dial(network, addr)
}

// Close shuts down the listener and the SAM session, dropping the
// router-side tunnels. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			errs = append(errs, err)
		}
		s.listener = nil
	}

	if s.garlic != nil {
		if err := s.garlic.Close(); err != nil {
			errs = append(errs, err)
		}
		s.garlic = nil
	}

	log.WithField("name", s.name).Debug("I2P session closed")

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ParseDestination parses an I2P address string.
// Accepts base32 addresses (xxx.b32.i2p) or full base64 destinations.
func ParseDestination(s string) (i2pkeys.I2PAddr, error) {
	return i2pkeys.NewI2PAddrFromString(s)
}
