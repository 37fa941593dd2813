// Example: sharing one I2P session among concurrent users.
//
// Several goroutines ask the pool for the same tunnel name and all receive
// the same live session - only one set of tunnels is built. After the last
// user releases its lease the session survives for the configured TTL, so
// a quick re-run of the workload reuses it instead of rebuilding.
//
// Prerequisites:
//   - Running I2P router with SAM enabled on port 7656
//
// Build:
//
//	go build -o i2ppool-demo ./i2psession/example
//
// Usage:
//
//	./i2ppool-demo -name demo -users 4 -ttl 30s
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-i2p/logger"

	"github.com/go-i2p/leasepool/i2psession"
	"github.com/go-i2p/leasepool/lib/pool"
)

var log = logger.GetGoI2PLogger()

func main() {
	name := flag.String("name", "demo", "Tunnel name (pool key)")
	samAddr := flag.String("sam", "", "SAM bridge address (default 127.0.0.1:7656)")
	users := flag.Int("users", 4, "Number of concurrent users sharing the session")
	ttl := flag.Duration("ttl", 30*time.Second, "Idle grace period before session teardown")
	flag.Parse()

	cfg := i2psession.DefaultConfig()
	if *samAddr != "" {
		cfg.SAMAddress = *samAddr
	}
	cfg.TTL = *ttl

	p, err := i2psession.NewPool(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to create session pool")
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("Shutting down...")
		cancel()
	}()

	// Every user asks for the same key; the first Get builds the tunnels
	// and the rest join as waiters, sharing the one session.
	var wg sync.WaitGroup
	for i := 0; i < *users; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			user(ctx, p, *name, id)
		}(i)
	}
	wg.Wait()

	stats := p.Stats()
	fmt.Printf("\nSessions built: %d, shared hits: %d, waiters joined: %d\n",
		stats.Constructions, stats.Hits, stats.Waits)
}

// user acquires the shared session, reports its destination, and holds the
// lease briefly before releasing it.
func user(ctx context.Context, p *pool.Pool[string, *i2psession.Session], name string, id int) {
	err := p.With(ctx, name, func(sess *i2psession.Session) error {
		fmt.Printf("user %d: sharing session %s at %s\n", id, sess.Name(), sess.Base32())
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
		}
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("user", id).Error("session use failed")
	}
}
