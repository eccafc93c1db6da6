// Package cache holds the per-project rules cache: the rules of the
// configured rulesets grouped by language, the ignore configuration, and
// the markers used to decide when to refresh them.
//
// Every state transition publishes a complete immutable snapshot through a
// single atomic pointer, so readers never observe a half-applied refresh.
package cache

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/JNZader/rosie/internal/logger"
	"github.com/JNZader/rosie/internal/rules"
)

const (
	// NeverUpdated is the timestamp of a cache that never received rulesets.
	NeverUpdated int64 = -1

	// NoConfigFile is the version marker of a cache with no config file.
	NoConfigFile int64 = 0

	defaultFilteredEntries = 512
)

var (
	// ErrLanguageNotCached is returned by RuleByLanguageAndID when the
	// language has no bucket. Callers deriving ids from this cache never hit it.
	ErrLanguageNotCached = errors.New("language not cached")

	// ErrRuleNotFound is returned when the bucket exists but the id doesn't.
	ErrRuleNotFound = errors.New("rule not found")
)

// RulesetStatus reports what the last refresh knows about a ruleset name.
type RulesetStatus int

const (
	RulesetUnknown RulesetStatus = iota
	RulesetEmpty
	RulesetPresent
)

func (s RulesetStatus) String() string {
	switch s {
	case RulesetEmpty:
		return "empty"
	case RulesetPresent:
		return "present"
	default:
		return "unknown"
	}
}

type snapshot struct {
	generation    uint64
	byLanguage    map[rules.Language][]rules.RuleRecord
	byID          map[rules.Language]map[string]rules.RuleRecord
	rulesets      map[string]int
	names         []string
	ignore        rules.IgnoreConfig
	lastUpdated   int64
	configVersion int64
}

func emptySnapshot(generation uint64) *snapshot {
	return &snapshot{
		generation:    generation,
		byLanguage:    map[rules.Language][]rules.RuleRecord{},
		byID:          map[rules.Language]map[string]rules.RuleRecord{},
		rulesets:      map[string]int{},
		ignore:        rules.IgnoreConfig{},
		lastUpdated:   NeverUpdated,
		configVersion: NoConfigFile,
	}
}

// clone copies the header; maps are shared because snapshots are never mutated.
func (s *snapshot) clone() *snapshot {
	c := *s
	return &c
}

type filterKey struct {
	generation uint64
	language   rules.Language
	relPath    string
}

// RulesCache is safe for concurrent use. Writers are serialized; readers
// never block on them.
type RulesCache struct {
	root string

	mu      sync.Mutex
	current atomic.Pointer[snapshot]

	filtered *lru.Cache[filterKey, []rules.RuleRecord]
	hits     atomic.Int64
	misses   atomic.Int64

	listenersMu sync.RWMutex
	listeners   []func(Stats)

	log *logger.Logger
}

// Option configures a RulesCache.
type Option func(*RulesCache)

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *RulesCache) { c.log = l }
}

// WithFilteredEntries bounds the memo of per-path filtered rule lists.
func WithFilteredEntries(n int) Option {
	return func(c *RulesCache) {
		if n <= 0 {
			return
		}
		if memo, err := lru.New[filterKey, []rules.RuleRecord](n); err == nil {
			c.filtered = memo
		}
	}
}

// New creates an empty cache for the project rooted at root.
func New(root string, opts ...Option) *RulesCache {
	memo, _ := lru.New[filterKey, []rules.RuleRecord](defaultFilteredEntries)
	c := &RulesCache{
		root:     root,
		filtered: memo,
		log:      logger.Default().WithPrefix("CACHE"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.current.Store(emptySnapshot(0))
	return c
}

// Root returns the project root used to relativize paths.
func (c *RulesCache) Root() string { return c.root }

// OnUpdate registers fn to be called after every refresh or clear. It is the
// hook used to re-inspect an open config file.
func (c *RulesCache) OnUpdate(fn func(Stats)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *RulesCache) notify() {
	c.listenersMu.RLock()
	listeners := append([]func(Stats){}, c.listeners...)
	c.listenersMu.RUnlock()

	stats := c.Stats()
	for _, fn := range listeners {
		fn(stats)
	}
}

// mutate applies fn to a copy of the current snapshot and publishes it.
func (c *RulesCache) mutate(fn func(s *snapshot)) {
	c.mu.Lock()
	next := c.current.Load().clone()
	fn(next)
	c.current.Store(next)
	c.mu.Unlock()
}

// UpdateFrom replaces every language bucket and the ruleset index with the
// content of rulesets, in one swap.
func (c *RulesCache) UpdateFrom(rulesets []rules.Ruleset) {
	c.mutate(func(s *snapshot) {
		applyRulesets(s, rulesets)
	})
	c.log.Debug("cache updated from %d rulesets", len(rulesets))
	c.notify()
}

// Update replaces the rules, the ignore config and the configured ruleset
// names together.
func (c *RulesCache) Update(rulesets []rules.Ruleset, ignore rules.IgnoreConfig, names []string) {
	c.mutate(func(s *snapshot) {
		applyRulesets(s, rulesets)
		s.ignore = ignore.Clone()
		s.names = append([]string{}, names...)
	})
	c.log.Debug("cache updated from %d rulesets with %d ignore entries", len(rulesets), ignore.Len())
	c.notify()
}

func applyRulesets(s *snapshot, rulesets []rules.Ruleset) {
	s.generation++
	s.byLanguage = rules.GroupByLanguage(rulesets)
	s.byID = make(map[rules.Language]map[string]rules.RuleRecord, len(s.byLanguage))
	for lang, records := range s.byLanguage {
		ids := make(map[string]rules.RuleRecord, len(records))
		for _, r := range records {
			ids[r.RuleID] = r
		}
		s.byID[lang] = ids
	}
	s.rulesets = make(map[string]int, len(rulesets))
	for _, rs := range rulesets {
		s.rulesets[rs.Name] += len(rs.Rules)
	}
}

// SetIgnoreConfig replaces the ignore config.
func (c *RulesCache) SetIgnoreConfig(ignore rules.IgnoreConfig) {
	c.mutate(func(s *snapshot) {
		s.generation++
		s.ignore = ignore.Clone()
	})
}

// IgnoreConfig returns a copy of the current ignore config.
func (c *RulesCache) IgnoreConfig() rules.IgnoreConfig {
	return c.current.Load().ignore.Clone()
}

// Clear empties the cache and resets both markers. It is idempotent.
func (c *RulesCache) Clear() {
	c.mu.Lock()
	gen := c.current.Load().generation + 1
	c.current.Store(emptySnapshot(gen))
	c.mu.Unlock()

	c.filtered.Purge()
	c.log.Debug("cache cleared")
	c.notify()
}

// GetRules returns the rules for lang that apply to the file at absPath.
// TypeScript files use the JavaScript rules.
func (c *RulesCache) GetRules(lang rules.Language, absPath string) []rules.RuleRecord {
	s := c.current.Load()
	lang = bucketFor(lang)

	records := s.byLanguage[lang]
	if len(records) == 0 {
		return []rules.RuleRecord{}
	}

	key := filterKey{generation: s.generation, language: lang, relPath: c.relativePath(absPath)}
	if cached, ok := c.filtered.Get(key); ok {
		c.hits.Add(1)
		return append([]rules.RuleRecord{}, cached...)
	}
	c.misses.Add(1)

	filtered := rules.Filter(records, s.ignore, key.relPath)
	c.filtered.Add(key, filtered)
	return append([]rules.RuleRecord{}, filtered...)
}

// RuleByLanguageAndID looks up a rule with the same TypeScript remap as GetRules.
func (c *RulesCache) RuleByLanguageAndID(lang rules.Language, ruleID string) (rules.RuleRecord, error) {
	ids, ok := c.current.Load().byID[bucketFor(lang)]
	if !ok {
		return rules.RuleRecord{}, ErrLanguageNotCached
	}
	r, ok := ids[ruleID]
	if !ok {
		return rules.RuleRecord{}, ErrRuleNotFound
	}
	return r, nil
}

// RulesetStatus reports whether the last refresh returned the ruleset and
// whether it had rules.
func (c *RulesCache) RulesetStatus(name string) RulesetStatus {
	count, ok := c.current.Load().rulesets[name]
	switch {
	case !ok:
		return RulesetUnknown
	case count == 0:
		return RulesetEmpty
	default:
		return RulesetPresent
	}
}

// RulesetNames returns the configured ruleset names of the last update.
func (c *RulesCache) RulesetNames() []string {
	return append([]string{}, c.current.Load().names...)
}

// IsEmpty reports whether no rules and no rulesets are cached.
func (c *RulesCache) IsEmpty() bool {
	s := c.current.Load()
	return len(s.byLanguage) == 0 && len(s.rulesets) == 0 && len(s.names) == 0
}

// LastUpdatedTimestamp returns the server timestamp of the cached rulesets.
func (c *RulesCache) LastUpdatedTimestamp() int64 {
	return c.current.Load().lastUpdated
}

// SetLastUpdatedTimestamp records the server timestamp.
func (c *RulesCache) SetLastUpdatedTimestamp(ts int64) {
	c.mutate(func(s *snapshot) { s.lastUpdated = ts })
}

// ConfigFileVersionMarker returns the stored config file marker.
func (c *RulesCache) ConfigFileVersionMarker() int64 {
	return c.current.Load().configVersion
}

// SetConfigFileVersionMarker stores the config file marker.
func (c *RulesCache) SetConfigFileVersionMarker(marker int64) {
	c.mutate(func(s *snapshot) { s.configVersion = marker })
}

// HasDifferentVersionMarkerThan reports whether marker differs from the stored one.
func (c *RulesCache) HasDifferentVersionMarkerThan(marker int64) bool {
	return c.current.Load().configVersion != marker
}

func bucketFor(lang rules.Language) rules.Language {
	if lang == rules.LanguageTypeScript {
		return rules.LanguageJavaScript
	}
	return lang
}

// relativePath returns the slash-separated path of absPath relative to the
// project root, with a leading "/".
func (c *RulesCache) relativePath(absPath string) string {
	rel := absPath
	if c.root != "" {
		if r, err := filepath.Rel(c.root, absPath); err == nil && r != ".." && !strings.HasPrefix(r, ".."+string(filepath.Separator)) {
			rel = r
		}
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	return rel
}
