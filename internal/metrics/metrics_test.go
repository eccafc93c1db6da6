package metrics

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	c := NewCollector()

	counter := c.Counter("test_counter")
	counter.Inc()
	counter.Inc()
	counter.Add(5)

	if counter.Value() != 7 {
		t.Errorf("expected 7, got %d", counter.Value())
	}
}

func TestCounter_Concurrent(t *testing.T) {
	counter := &Counter{}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				counter.Inc()
			}
		}()
	}
	wg.Wait()

	if counter.Value() != 1000 {
		t.Errorf("expected 1000, got %d", counter.Value())
	}
}

func TestGauge(t *testing.T) {
	gauge := NewCollector().Gauge("sessions")

	gauge.Set(2)
	gauge.Inc()
	gauge.Dec()
	gauge.Add(0.5)

	if gauge.Value() != 2.5 {
		t.Errorf("expected 2.5, got %f", gauge.Value())
	}
}

func TestHistogram_Rotation(t *testing.T) {
	hist := NewHistogram(10)
	for i := 1; i <= 15; i++ {
		hist.Observe(float64(i))
	}

	stats := hist.Stats()
	if stats.Count != 10 {
		t.Errorf("expected 10 count after rotation, got %d", stats.Count)
	}
	if stats.Min != 6 {
		t.Errorf("expected min 6 after rotation, got %f", stats.Min)
	}
	if stats.Max != 15 {
		t.Errorf("expected max 15, got %f", stats.Max)
	}
}

func TestHistogram_Empty(t *testing.T) {
	if stats := NewHistogram(5).Stats(); stats.Count != 0 {
		t.Errorf("expected 0 count, got %d", stats.Count)
	}
}

func TestTimer(t *testing.T) {
	timer := NewCollector().Timer("refresh")

	tc := timer.Start()
	time.Sleep(5 * time.Millisecond)
	if d := tc.Stop(); d < 5*time.Millisecond {
		t.Errorf("expected at least 5ms, got %v", d)
	}
	timer.Observe(time.Second)

	if stats := timer.Stats(); stats.Count != 2 || stats.Max != 1 {
		t.Errorf("stats = %+v, want 2 observations with max 1s", stats)
	}
}

func TestCollector_SameMetric(t *testing.T) {
	c := NewCollector()
	if c.Counter("a") != c.Counter("a") {
		t.Error("Counter should return the same instance for the same name")
	}
	if c.Timer("t") != c.Timer("t") {
		t.Error("Timer should return the same instance for the same name")
	}
}

func TestExport(t *testing.T) {
	c := NewCollector()
	c.Counter(MetricTicksTotal).Add(3)
	c.Gauge(MetricCachedRules).Set(12)

	data, err := c.Export()
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if s.Counters[MetricTicksTotal] != 3 {
		t.Errorf("ticks = %d, want 3", s.Counters[MetricTicksTotal])
	}
	if s.Gauges[MetricCachedRules] != 12 {
		t.Errorf("rules = %f, want 12", s.Gauges[MetricCachedRules])
	}
}

func TestExportPrometheus(t *testing.T) {
	c := NewCollector()
	c.Counter("b_total").Inc()
	c.Counter("a_total").Inc()
	c.Timer("refresh").Observe(time.Millisecond)

	out := c.ExportPrometheus()
	if strings.Index(out, "a_total") > strings.Index(out, "b_total") {
		t.Error("counters should be sorted by name")
	}
	if !strings.Contains(out, "refresh_seconds_count 1") {
		t.Errorf("missing timer summary in:\n%s", out)
	}
}

func TestReset(t *testing.T) {
	c := NewCollector()
	c.Counter("x").Inc()
	c.Reset()

	if len(c.Snapshot().Counters) != 0 {
		t.Error("Reset should drop counters")
	}
}
