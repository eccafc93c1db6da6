// Package metrics collects in-process counters, gauges and timers for the
// cache coordinator and the analysis engine, and renders them as JSON or
// Prometheus text.
package metrics

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Collector owns a named set of metrics.
type Collector struct {
	mu        sync.RWMutex
	counters  map[string]*Counter
	gauges    map[string]*Gauge
	timers    map[string]*Timer
	startTime time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		counters:  make(map[string]*Counter),
		gauges:    make(map[string]*Gauge),
		timers:    make(map[string]*Timer),
		startTime: time.Now(),
	}
}

// Counter is a monotonically increasing counter.
type Counter struct {
	value atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Add(n int64)  { c.value.Add(n) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Gauge holds a value that can go up or down.
type Gauge struct {
	bits atomic.Uint64
}

// Set sets the gauge value.
func (g *Gauge) Set(v float64) {
	g.bits.Store(math.Float64bits(v))
}

// Add adds v using a CAS loop.
func (g *Gauge) Add(v float64) {
	for {
		old := g.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + v)
		if g.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

func (g *Gauge) Inc() { g.Add(1) }
func (g *Gauge) Dec() { g.Add(-1) }

// Value returns the current gauge value.
func (g *Gauge) Value() float64 {
	return math.Float64frombits(g.bits.Load())
}

// Histogram keeps the most recent observations, up to max.
type Histogram struct {
	mu     sync.Mutex
	values []float64
	max    int
}

// NewHistogram creates a new histogram with max values capacity.
func NewHistogram(maxValues int) *Histogram {
	return &Histogram{values: make([]float64, 0, maxValues), max: maxValues}
}

// Observe records a value, discarding the oldest when full.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.values) >= h.max {
		h.values = h.values[1:]
	}
	h.values = append(h.values, v)
}

// Stats returns histogram statistics.
func (h *Histogram) Stats() HistogramStats {
	h.mu.Lock()
	sorted := append([]float64(nil), h.values...)
	h.mu.Unlock()

	if len(sorted) == 0 {
		return HistogramStats{}
	}
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	n := len(sorted)
	return HistogramStats{
		Count: n,
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[(n-1)*50/100],
		P90:   sorted[(n-1)*90/100],
		P99:   sorted[(n-1)*99/100],
	}
}

// HistogramStats contains histogram statistics.
type HistogramStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P99   float64 `json:"p99"`
}

// Timer records durations in seconds.
type Timer struct {
	histogram *Histogram
}

// Start starts a new measurement.
func (t *Timer) Start() *TimerContext {
	return &TimerContext{timer: t, start: time.Now()}
}

// Observe records an already measured duration.
func (t *Timer) Observe(d time.Duration) {
	t.histogram.Observe(d.Seconds())
}

// Stats returns the recorded durations in seconds.
func (t *Timer) Stats() HistogramStats {
	return t.histogram.Stats()
}

// TimerContext represents an active measurement.
type TimerContext struct {
	timer *Timer
	start time.Time
}

// Stop records and returns the elapsed time.
func (tc *TimerContext) Stop() time.Duration {
	d := time.Since(tc.start)
	tc.timer.Observe(d)
	return d
}

// Counter returns or creates a counter.
func (c *Collector) Counter(name string) *Counter {
	c.mu.Lock()
	defer c.mu.Unlock()

	if counter, ok := c.counters[name]; ok {
		return counter
	}
	counter := &Counter{}
	c.counters[name] = counter
	return counter
}

// Gauge returns or creates a gauge.
func (c *Collector) Gauge(name string) *Gauge {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gauge, ok := c.gauges[name]; ok {
		return gauge
	}
	gauge := &Gauge{}
	c.gauges[name] = gauge
	return gauge
}

// Timer returns or creates a timer.
func (c *Collector) Timer(name string) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if timer, ok := c.timers[name]; ok {
		return timer
	}
	timer := &Timer{histogram: NewHistogram(1000)}
	c.timers[name] = timer
	return timer
}

// Snapshot is a point-in-time copy of every metric.
type Snapshot struct {
	Uptime   string                    `json:"uptime"`
	Counters map[string]int64          `json:"counters"`
	Gauges   map[string]float64        `json:"gauges"`
	Timers   map[string]HistogramStats `json:"timers"`
}

// Snapshot copies the current values.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:   time.Since(c.startTime).Round(time.Millisecond).String(),
		Counters: make(map[string]int64, len(c.counters)),
		Gauges:   make(map[string]float64, len(c.gauges)),
		Timers:   make(map[string]HistogramStats, len(c.timers)),
	}
	for name, counter := range c.counters {
		s.Counters[name] = counter.Value()
	}
	for name, gauge := range c.gauges {
		s.Gauges[name] = gauge.Value()
	}
	for name, timer := range c.timers {
		s.Timers[name] = timer.Stats()
	}
	return s
}

// Export renders the snapshot as indented JSON.
func (c *Collector) Export() ([]byte, error) {
	return json.MarshalIndent(c.Snapshot(), "", "  ")
}

// ExportPrometheus renders metrics in the Prometheus text format, sorted by name.
func (c *Collector) ExportPrometheus() string {
	s := c.Snapshot()
	var sb strings.Builder

	for _, name := range sortedKeys(s.Counters) {
		fmt.Fprintf(&sb, "# TYPE %s counter\n%s %d\n", name, name, s.Counters[name])
	}
	for _, name := range sortedKeys(s.Gauges) {
		fmt.Fprintf(&sb, "# TYPE %s gauge\n%s %g\n", name, name, s.Gauges[name])
	}
	for _, name := range sortedKeys(s.Timers) {
		stats := s.Timers[name]
		fmt.Fprintf(&sb, "# TYPE %s_seconds summary\n", name)
		fmt.Fprintf(&sb, "%s_seconds_count %d\n", name, stats.Count)
		fmt.Fprintf(&sb, "%s_seconds{quantile=\"0.5\"} %f\n", name, stats.P50)
		fmt.Fprintf(&sb, "%s_seconds{quantile=\"0.9\"} %f\n", name, stats.P90)
		fmt.Fprintf(&sb, "%s_seconds{quantile=\"0.99\"} %f\n", name, stats.P99)
	}
	return sb.String()
}

// Reset drops all metrics.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counters = make(map[string]*Counter)
	c.gauges = make(map[string]*Gauge)
	c.timers = make(map[string]*Timer)
	c.startTime = time.Now()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
