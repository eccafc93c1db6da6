// Package coordinator keeps a RulesCache in sync with the project config file
// and the remote ruleset service.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/JNZader/rosie/internal/cache"
	"github.com/JNZader/rosie/internal/logger"
	"github.com/JNZader/rosie/internal/metrics"
	"github.com/JNZader/rosie/internal/projectconfig"
	"github.com/JNZader/rosie/internal/rules"
)

// RulesetSource is the remote side of a refresh.
type RulesetSource interface {
	FetchRulesetsByName(ctx context.Context, names []string) ([]rules.Ruleset, error)
	FetchRulesetsLastUpdatedTimestamp(ctx context.Context, names []string) (int64, bool, error)
}

// ConfigSource finds the project config file.
type ConfigSource interface {
	Locate() (projectconfig.File, bool, error)
}

// Outcome describes what a tick did.
type Outcome int

const (
	OutcomeNoop Outcome = iota
	OutcomeSkipped
	OutcomeDisposed
	OutcomeCleared
	OutcomeRefreshed
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoop:
		return "noop"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDisposed:
		return "disposed"
	case OutcomeCleared:
		return "cleared"
	case OutcomeRefreshed:
		return "refreshed"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type pendingConfig struct {
	names  []string
	ignore rules.IgnoreConfig
}

// Coordinator runs refresh ticks for one project.
type Coordinator struct {
	cache  *cache.RulesCache
	source RulesetSource
	config ConfigSource

	running atomic.Bool

	// mu guards disposed; mutations hold the read lock, Dispose the write lock.
	mu       sync.RWMutex
	disposed bool

	pendingMu sync.Mutex
	pending   *pendingConfig

	log     *logger.Logger
	metrics *metrics.Collector
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New creates a coordinator for rc.
func New(rc *cache.RulesCache, source RulesetSource, config ConfigSource, opts ...Option) *Coordinator {
	c := &Coordinator{
		cache:   rc,
		source:  source,
		config:  config,
		log:     logger.Default().WithPrefix("SYNC"),
		metrics: metrics.Global(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cache returns the cache this coordinator maintains.
func (c *Coordinator) Cache() *cache.RulesCache { return c.cache }

// Dispose stops all future cache mutations. Results of ticks still in flight
// are discarded.
func (c *Coordinator) Dispose() {
	c.mu.Lock()
	c.disposed = true
	c.mu.Unlock()
}

// Disposed reports whether Dispose was called.
func (c *Coordinator) Disposed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.disposed
}

// apply runs fn unless the coordinator is disposed.
func (c *Coordinator) apply(fn func()) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.disposed {
		return false
	}
	fn()
	return true
}

// Tick performs one synchronization pass. An overlapping call returns
// OutcomeSkipped without waiting. Errors are transient: the cache keeps its
// previous content and the next tick tries again.
func (c *Coordinator) Tick(ctx context.Context) (Outcome, error) {
	if !c.running.CompareAndSwap(false, true) {
		c.metrics.Counter(metrics.MetricTicksSkipped).Inc()
		return OutcomeSkipped, nil
	}
	defer c.running.Store(false)

	c.metrics.Counter(metrics.MetricTicksTotal).Inc()
	timer := c.metrics.Timer(metrics.MetricRefreshDuration).Start()
	defer timer.Stop()

	outcome, err := c.tick(ctx)
	if err != nil {
		c.metrics.Counter(metrics.MetricFetchErrors).Inc()
		c.log.Warn("tick failed, keeping cached rules: %v", err)
	}
	switch outcome {
	case OutcomeRefreshed:
		c.metrics.Counter(metrics.MetricRefreshesTotal).Inc()
	case OutcomeCleared:
		c.metrics.Counter(metrics.MetricClearsTotal).Inc()
	}
	c.metrics.Gauge(metrics.MetricCachedRules).Set(float64(c.cache.Stats().Rules))
	return outcome, err
}

func (c *Coordinator) tick(ctx context.Context) (Outcome, error) {
	if c.Disposed() {
		return OutcomeDisposed, nil
	}

	file, found, err := c.config.Locate()
	if err != nil {
		return OutcomeFailed, fmt.Errorf("locating project config: %w", err)
	}

	if !found {
		c.setPending(nil)
		if c.cache.IsEmpty() && c.cache.ConfigFileVersionMarker() == cache.NoConfigFile {
			return OutcomeNoop, nil
		}
		c.log.Info("project config removed, clearing rules")
		return c.clear(cache.NoConfigFile)
	}

	if c.cache.HasDifferentVersionMarkerThan(file.VersionMarker) {
		parsed := projectconfig.Parse(file.Text)
		if !c.apply(func() { c.cache.SetConfigFileVersionMarker(file.VersionMarker) }) {
			return OutcomeDisposed, nil
		}
		c.log.Debug("config %s changed, %d rulesets configured", file.Path, len(parsed.Rulesets))
		return c.applyConfig(ctx, parsed.Rulesets, parsed.Ignore, file.VersionMarker)
	}

	if p := c.takePending(); p != nil {
		c.log.Debug("retrying pending config with %d rulesets", len(p.names))
		return c.applyConfig(ctx, p.names, p.ignore, file.VersionMarker)
	}

	return c.refreshIfStale(ctx)
}

// applyConfig re-derives the cache from the names and ignore config of a
// freshly read config file.
func (c *Coordinator) applyConfig(ctx context.Context, names []string, ignore rules.IgnoreConfig, marker int64) (Outcome, error) {
	c.setPending(nil)
	if len(names) == 0 {
		return c.clear(marker)
	}

	rulesets, err := c.source.FetchRulesetsByName(ctx, names)
	if err != nil {
		c.setPending(&pendingConfig{names: names, ignore: ignore})
		return OutcomeFailed, fmt.Errorf("fetching rulesets %v: %w", names, err)
	}
	if len(rulesets) == 0 {
		c.log.Warn("none of the configured rulesets exist: %v", names)
		return c.clear(marker)
	}

	previous := c.cache.LastUpdatedTimestamp()
	if !c.apply(func() { c.cache.Update(rulesets, ignore, names) }) {
		return OutcomeDisposed, nil
	}
	c.log.Info("loaded %d rulesets", len(rulesets))

	ts, ok, err := c.source.FetchRulesetsLastUpdatedTimestamp(ctx, names)
	if err != nil {
		c.log.Warn("fetching last updated timestamp: %v", err)
		return OutcomeRefreshed, nil
	}
	if ok && ts != previous {
		c.apply(func() { c.cache.SetLastUpdatedTimestamp(ts) })
	}
	return OutcomeRefreshed, nil
}

// refreshIfStale refetches the cached rulesets when the server reports a
// newer timestamp.
func (c *Coordinator) refreshIfStale(ctx context.Context) (Outcome, error) {
	names := c.cache.RulesetNames()
	if len(names) == 0 {
		return OutcomeNoop, nil
	}

	ts, ok, err := c.source.FetchRulesetsLastUpdatedTimestamp(ctx, names)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("fetching last updated timestamp: %w", err)
	}
	if !ok || ts == c.cache.LastUpdatedTimestamp() {
		return OutcomeNoop, nil
	}

	rulesets, err := c.source.FetchRulesetsByName(ctx, names)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("refetching rulesets %v: %w", names, err)
	}
	if !c.apply(func() {
		c.cache.UpdateFrom(rulesets)
		c.cache.SetLastUpdatedTimestamp(ts)
	}) {
		return OutcomeDisposed, nil
	}
	c.log.Info("rulesets updated on server, reloaded %d rulesets", len(rulesets))
	return OutcomeRefreshed, nil
}

// clear empties the cache and stores marker so the same config state does
// not trigger again.
func (c *Coordinator) clear(marker int64) (Outcome, error) {
	if !c.apply(func() {
		c.cache.Clear()
		if marker != cache.NoConfigFile {
			c.cache.SetConfigFileVersionMarker(marker)
		}
	}) {
		return OutcomeDisposed, nil
	}
	return OutcomeCleared, nil
}

func (c *Coordinator) setPending(p *pendingConfig) {
	c.pendingMu.Lock()
	c.pending = p
	c.pendingMu.Unlock()
}

func (c *Coordinator) takePending() *pendingConfig {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	p := c.pending
	c.pending = nil
	return p
}
