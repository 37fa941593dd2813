// Package metrics provides in-process metrics collection for leasepool.
// Metrics register themselves on creation and are exposed in Prometheus
// text format for monitoring integration.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultLatencyBuckets covers operations from sub-millisecond map hits to
// multi-second tunnel construction.
var DefaultLatencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30,
}

// Counter is a monotonically increasing counter.
type Counter struct {
	value uint64
	name  string
	help  string
}

// NewCounter creates and registers a counter metric.
func NewCounter(name, help string) *Counter {
	c := &Counter{
		name: name,
		help: help,
	}
	defaultRegistry.register(c)
	return c
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	atomic.AddUint64(&c.value, 1)
}

// Add adds the given value to the counter.
func (c *Counter) Add(v uint64) {
	atomic.AddUint64(&c.value, v)
}

// Value returns the current counter value.
func (c *Counter) Value() uint64 {
	return atomic.LoadUint64(&c.value)
}

func (c *Counter) metricName() string { return c.name }

func (c *Counter) prometheus() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# HELP %s %s\n", c.name, c.help)
	fmt.Fprintf(&sb, "# TYPE %s counter\n", c.name)
	fmt.Fprintf(&sb, "%s %d\n", c.name, c.Value())
	return sb.String()
}

// Gauge is a metric that can go up and down.
type Gauge struct {
	value int64
	name  string
	help  string
}

// NewGauge creates and registers a gauge metric.
func NewGauge(name, help string) *Gauge {
	g := &Gauge{
		name: name,
		help: help,
	}
	defaultRegistry.register(g)
	return g
}

// Set sets the gauge to the given value.
func (g *Gauge) Set(v int64) {
	atomic.StoreInt64(&g.value, v)
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() {
	atomic.AddInt64(&g.value, 1)
}

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() {
	atomic.AddInt64(&g.value, -1)
}

// Add adds the given value to the gauge.
func (g *Gauge) Add(v int64) {
	atomic.AddInt64(&g.value, v)
}

// Value returns the current gauge value.
func (g *Gauge) Value() int64 {
	return atomic.LoadInt64(&g.value)
}

func (g *Gauge) metricName() string { return g.name }

func (g *Gauge) prometheus() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# HELP %s %s\n", g.name, g.help)
	fmt.Fprintf(&sb, "# TYPE %s gauge\n", g.name)
	fmt.Fprintf(&sb, "%s %d\n", g.name, g.Value())
	return sb.String()
}

// Histogram tracks the distribution of values across cumulative buckets.
type Histogram struct {
	mu      sync.Mutex
	name    string
	help    string
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

// NewHistogram creates and registers a histogram metric. Bucket bounds must
// be sorted ascending.
func NewHistogram(name, help string, buckets []float64) *Histogram {
	h := &Histogram{
		name:    name,
		help:    help,
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
	defaultRegistry.register(h)
	return h
}

// Observe records a value in the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sum += v
	h.count++

	for i, b := range h.buckets {
		if v <= b {
			h.counts[i]++
		}
	}
}

// Count returns how many values have been observed.
func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *Histogram) metricName() string { return h.name }

func (h *Histogram) prometheus() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "# HELP %s %s\n", h.name, h.help)
	fmt.Fprintf(&sb, "# TYPE %s histogram\n", h.name)

	for i, b := range h.buckets {
		fmt.Fprintf(&sb, "%s_bucket{le=\"%g\"} %d\n", h.name, b, h.counts[i])
	}
	fmt.Fprintf(&sb, "%s_bucket{le=\"+Inf\"} %d\n", h.name, h.count)
	fmt.Fprintf(&sb, "%s_sum %g\n", h.name, h.sum)
	fmt.Fprintf(&sb, "%s_count %d\n", h.name, h.count)

	return sb.String()
}

// Timer measures the duration of one operation and records it in a
// histogram in seconds.
type Timer struct {
	start     time.Time
	histogram *Histogram
}

// NewTimer starts timing an operation against h.
func NewTimer(h *Histogram) *Timer {
	return &Timer{
		start:     time.Now(),
		histogram: h,
	}
}

// ObserveDuration records the elapsed time and returns it.
func (t *Timer) ObserveDuration() time.Duration {
	d := time.Since(t.start)
	t.histogram.Observe(d.Seconds())
	return d
}

// metric is the interface all metric types satisfy.
type metric interface {
	metricName() string
	prometheus() string
}

// Registry holds registered metrics.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]metric
}

// defaultRegistry is the process-wide metric registry.
var defaultRegistry = &Registry{
	metrics: make(map[string]metric),
}

func (r *Registry) register(m metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics[m.metricName()] = m
}

// Expose returns all metrics in Prometheus exposition format, sorted by
// name for stable output.
func (r *Registry) Expose() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(r.metrics[name].prometheus())
		sb.WriteString("\n")
	}
	return sb.String()
}

// Expose returns the default registry's metrics in Prometheus exposition
// format.
func Expose() string {
	return defaultRegistry.Expose()
}

// Handler returns an http.Handler that serves the default registry.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.Write([]byte(defaultRegistry.Expose()))
	})
}

// StartTime is the Unix timestamp the process recorded at startup.
var StartTime = NewGauge("leasepool_start_time_seconds", "Unix timestamp when the process started")

// RecordStartTime records the current time as the process start time.
func RecordStartTime() {
	StartTime.Set(time.Now().Unix())
}
