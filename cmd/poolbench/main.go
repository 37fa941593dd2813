// poolbench drives a synthetic workload through a lease pool.
//
// It simulates many workers sharing a small set of expensive resources:
// each worker repeatedly picks a key, acquires a lease, holds it briefly,
// and releases it. Constructions are artificially slow and optionally
// flaky, so the pool's memoization, waiter queueing, and TTL behavior are
// all visible in the final report.
//
// Usage:
//
//	poolbench [flags]
//
// Flags:
//
//	-keys int
//	    Number of distinct keys in the workload (default 4)
//	-workers int
//	    Number of concurrent workers (default 16)
//	-ops int
//	    Operations per worker (default 100)
//	-ttl duration
//	    Idle grace period before teardown (default 250ms)
//	-construct-delay duration
//	    Simulated construction cost (default 50ms)
//	-close-delay duration
//	    Simulated teardown cost (default 0)
//	-hold duration
//	    How long each worker holds its lease (default 5ms)
//	-fail-rate float
//	    Fraction of constructions that fail (default 0)
//	-guard
//	    Wrap the factory in a construction guard
//	-metrics string
//	    Serve Prometheus metrics on this address (e.g. 127.0.0.1:9090)
//	-config string
//	    TOML file supplying workload defaults; explicit flags override it
//	-v
//	    Enable verbose logging
//	-version
//	    Print version and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-i2p/logger"
	"github.com/pelletier/go-toml/v2"

	"github.com/go-i2p/leasepool/lib/metrics"
	"github.com/go-i2p/leasepool/lib/pool"
	"github.com/go-i2p/leasepool/lib/resilience"
	"github.com/go-i2p/leasepool/version"
)

var log = logger.GetGoI2PLogger()

// benchResource is the synthetic expensive resource: construction sleeps,
// teardown counts.
type benchResource struct {
	id         int64
	key        string
	closeDelay time.Duration
	closed     atomic.Int64
}

func (r *benchResource) Close() error {
	if r.closeDelay > 0 {
		time.Sleep(r.closeDelay)
	}
	r.closed.Add(1)
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	keys := flag.Int("keys", 4, "Number of distinct keys in the workload")
	workers := flag.Int("workers", 16, "Number of concurrent workers")
	ops := flag.Int("ops", 100, "Operations per worker")
	ttl := flag.Duration("ttl", 250*time.Millisecond, "Idle grace period before teardown")
	constructDelay := flag.Duration("construct-delay", 50*time.Millisecond, "Simulated construction cost")
	closeDelay := flag.Duration("close-delay", 0, "Simulated teardown cost")
	hold := flag.Duration("hold", 5*time.Millisecond, "How long each worker holds its lease")
	failRate := flag.Float64("fail-rate", 0, "Fraction of constructions that fail")
	useGuard := flag.Bool("guard", false, "Wrap the factory in a construction guard")
	metricsAddr := flag.String("metrics", "", "Serve Prometheus metrics on this address")
	configPath := flag.String("config", "", "TOML file supplying workload defaults")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	showVersion := flag.Bool("version", false, "Print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "poolbench - synthetic workload driver for leasepool\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  poolbench [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("poolbench version %s\n", version.Full())
		return 0
	}
	if *verbose {
		log.SetOutput(os.Stderr)
		log.SetLevel(logger.DebugLevel)
	}
	if *configPath != "" {
		if err := applyConfigFile(*configPath, benchFlags{
			keys: keys, workers: workers, ops: ops,
			ttl: ttl, constructDelay: constructDelay, closeDelay: closeDelay,
			hold: hold, failRate: failRate,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	if *failRate < 0 || *failRate > 1 {
		fmt.Fprintln(os.Stderr, "Error: fail rate must be between 0 and 1")
		return 1
	}

	var constructed atomic.Int64
	resources := trackedResources{}

	factory := func(ctx context.Context, key string) (*benchResource, error) {
		select {
		case <-time.After(*constructDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if *failRate > 0 && rand.Float64() < *failRate {
			return nil, errors.New("simulated backend failure")
		}
		r := &benchResource{id: constructed.Add(1), key: key, closeDelay: *closeDelay}
		resources.track(r)
		return r, nil
	}

	wrapped := pool.Factory[string, *benchResource](factory)
	var guard *resilience.Guard
	if *useGuard {
		guard = resilience.NewGuard("poolbench", resilience.DefaultGuardConfig())
		guard.SetStateChangeCallback(resilience.MetricsCallback)
		wrapped = resilience.WrapFactory(guard, wrapped)
	}

	p, err := pool.New(wrapped, pool.Config{TTL: *ttl})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *metricsAddr != "" {
		metrics.RecordStartTime()
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		go func() {
			log.WithField("addr", *metricsAddr).Info("serving metrics")
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.WithError(err).Error("metrics server stopped")
			}
		}()
	}

	log.WithField("keys", *keys).
		WithField("workers", *workers).
		WithField("ops", *ops).
		Info("starting workload")

	start := time.Now()
	var opErrs atomic.Int64

	var wg sync.WaitGroup
	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < *ops; i++ {
				key := fmt.Sprintf("key-%d", rng.Intn(*keys))
				err := p.With(context.Background(), key, func(r *benchResource) error {
					time.Sleep(*hold)
					return nil
				})
				if err != nil {
					opErrs.Add(1)
				}
			}
		}(int64(w))
	}
	wg.Wait()
	elapsed := time.Since(start)

	if err := p.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error closing pool: %v\n", err)
		return 1
	}
	stats := p.Stats()
	pool.UpdateMetrics(stats)

	report(stats, elapsed, (*workers)*(*ops), int(opErrs.Load()), &resources, guard)
	return 0
}

// report prints the workload outcome, including the exactly-once teardown
// check across every resource the factory produced.
func report(stats pool.Stats, elapsed time.Duration, totalOps, failedOps int, resources *trackedResources, guard *resilience.Guard) {
	fmt.Printf("Completed %d operations in %s (%d failed)\n\n", totalOps, elapsed.Round(time.Millisecond), failedOps)

	fmt.Printf("Constructions:     %d (%d failed)\n", stats.Constructions, stats.ConstructionFails)
	fmt.Printf("Hits:              %d\n", stats.Hits)
	fmt.Printf("Revivals:          %d\n", stats.Revivals)
	fmt.Printf("Waits:             %d\n", stats.Waits)
	fmt.Printf("Releases:          %d\n", stats.Releases)
	fmt.Printf("TTL evictions:     %d\n", stats.Evictions)
	fmt.Printf("Forced evictions:  %d\n", stats.ForcedEvictions)
	fmt.Printf("Teardown failures: %d\n", stats.TeardownFails)

	if guard != nil {
		gs := guard.Stats()
		fmt.Printf("\nGuard state:       %s (failures=%d)\n", gs.State, gs.FailureCount)
	}

	leaked, doubled := resources.audit()
	fmt.Printf("\nResources built:   %d\n", resources.count())
	fmt.Printf("Never torn down:   %d\n", leaked)
	fmt.Printf("Torn down twice:   %d\n", doubled)
}

// benchConfig mirrors the workload flags for TOML-driven runs.
type benchConfig struct {
	Keys           int           `toml:"keys"`
	Workers        int           `toml:"workers"`
	Ops            int           `toml:"ops"`
	TTL            time.Duration `toml:"ttl"`
	ConstructDelay time.Duration `toml:"construct_delay"`
	CloseDelay     time.Duration `toml:"close_delay"`
	Hold           time.Duration `toml:"hold"`
	FailRate       float64       `toml:"fail_rate"`
}

// benchFlags collects the flag destinations a config file may fill in.
type benchFlags struct {
	keys, workers, ops                    *int
	ttl, constructDelay, closeDelay, hold *time.Duration
	failRate                              *float64
}

// applyConfigFile loads path and copies its values into any flag the user
// did not set explicitly on the command line.
func applyConfigFile(path string, dst benchFlags) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	var cfg benchConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if !set["keys"] && cfg.Keys > 0 {
		*dst.keys = cfg.Keys
	}
	if !set["workers"] && cfg.Workers > 0 {
		*dst.workers = cfg.Workers
	}
	if !set["ops"] && cfg.Ops > 0 {
		*dst.ops = cfg.Ops
	}
	if !set["ttl"] && cfg.TTL > 0 {
		*dst.ttl = cfg.TTL
	}
	if !set["construct-delay"] && cfg.ConstructDelay > 0 {
		*dst.constructDelay = cfg.ConstructDelay
	}
	if !set["close-delay"] && cfg.CloseDelay > 0 {
		*dst.closeDelay = cfg.CloseDelay
	}
	if !set["hold"] && cfg.Hold > 0 {
		*dst.hold = cfg.Hold
	}
	if !set["fail-rate"] && cfg.FailRate > 0 {
		*dst.failRate = cfg.FailRate
	}
	return nil
}

// trackedResources remembers every resource the factory produced so the
// report can verify exactly-once teardown.
type trackedResources struct {
	mu  sync.Mutex
	all []*benchResource
}

func (t *trackedResources) track(r *benchResource) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.all = append(t.all, r)
}

func (t *trackedResources) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.all)
}

func (t *trackedResources) audit() (leaked, doubled int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.all {
		switch n := r.closed.Load(); {
		case n == 0:
			leaked++
		case n > 1:
			doubled++
		}
	}
	return leaked, doubled
}
