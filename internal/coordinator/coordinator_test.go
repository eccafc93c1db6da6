package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JNZader/rosie/internal/cache"
	"github.com/JNZader/rosie/internal/logger"
	"github.com/JNZader/rosie/internal/metrics"
	"github.com/JNZader/rosie/internal/projectconfig"
	"github.com/JNZader/rosie/internal/rules"
)

type fakeSource struct {
	mu           sync.Mutex
	rulesets     map[string]rules.Ruleset
	timestamp    int64
	hasTimestamp bool
	fetchErr     error
	tsErr        error
	fetchCalls   int
	tsCalls      int

	entered chan struct{}
	block   chan struct{}
}

func newFakeSource(rulesets ...rules.Ruleset) *fakeSource {
	f := &fakeSource{rulesets: map[string]rules.Ruleset{}}
	for _, rs := range rulesets {
		f.rulesets[rs.Name] = rs
	}
	return f
}

func (f *fakeSource) FetchRulesetsByName(_ context.Context, names []string) ([]rules.Ruleset, error) {
	f.mu.Lock()
	f.fetchCalls++
	entered, block, err := f.entered, f.block, f.fetchErr
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []rules.Ruleset
	for _, name := range names {
		if rs, ok := f.rulesets[name]; ok {
			out = append(out, rs)
		}
	}
	return out, nil
}

func (f *fakeSource) FetchRulesetsLastUpdatedTimestamp(_ context.Context, _ []string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tsCalls++
	if f.tsErr != nil {
		return 0, false, f.tsErr
	}
	return f.timestamp, f.hasTimestamp, nil
}

func (f *fakeSource) set(fn func(f *fakeSource)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeSource) calls() (fetch, ts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls, f.tsCalls
}

type fakeConfig struct {
	mu    sync.Mutex
	found bool
	file  projectconfig.File
	err   error
}

func (f *fakeConfig) Locate() (projectconfig.File, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file, f.found, f.err
}

func (f *fakeConfig) write(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.found = true
	f.file = projectconfig.File{Path: "/proj/rosie.yml", Text: text, VersionMarker: f.file.VersionMarker + 1}
}

func (f *fakeConfig) remove() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.found = false
}

func pythonRuleset(n int) rules.Ruleset {
	rs := rules.Ruleset{Name: "python-ruleset"}
	for i := 1; i <= n; i++ {
		name := "rule_" + string(rune('0'+i))
		rs.Rules = append(rs.Rules, rules.RuleRecord{
			RulesetName: "python-ruleset",
			RuleName:    name,
			RuleID:      name,
			Language:    rules.LanguagePython,
		})
	}
	return rs
}

func ruleNames(records []rules.RuleRecord) []string {
	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.RuleName)
	}
	return names
}

const pythonConfig = `rulesets:
  - python-ruleset
`

func newTestCoordinator(src *fakeSource, cfg *fakeConfig) *Coordinator {
	rc := cache.New("/proj", cache.WithLogger(logger.Discard()))
	return New(rc, src, cfg, WithLogger(logger.Discard()), WithMetrics(metrics.NewCollector()))
}

func TestTick_ConfigEditAppliesIgnore(t *testing.T) {
	src := newFakeSource(pythonRuleset(3))
	src.timestamp, src.hasTimestamp = 100, true
	cfg := &fakeConfig{}
	cfg.write(pythonConfig)
	c := newTestCoordinator(src, cfg)
	ctx := context.Background()

	outcome, err := c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefreshed, outcome)
	assert.Equal(t, []string{"rule_1", "rule_2", "rule_3"}, ruleNames(c.Cache().GetRules(rules.LanguagePython, "/proj/src/app.py")))
	assert.Equal(t, int64(100), c.Cache().LastUpdatedTimestamp())
	assert.Equal(t, []string{"python-ruleset"}, c.Cache().RulesetNames())

	cfg.write(pythonConfig + `ignore:
  - python-ruleset:
    - rule_2
`)

	outcome, err = c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefreshed, outcome)
	assert.Equal(t, []string{"rule_1", "rule_3"}, ruleNames(c.Cache().GetRules(rules.LanguagePython, "/proj/src/app.py")))
}

func TestTick_PrefixIgnore(t *testing.T) {
	src := newFakeSource(pythonRuleset(3))
	cfg := &fakeConfig{}
	cfg.write(pythonConfig + `ignore:
  - python-ruleset:
    - rule_1:
      - prefix: /generated
`)
	c := newTestCoordinator(src, cfg)

	_, err := c.Tick(context.Background())
	require.NoError(t, err)

	assert.Len(t, c.Cache().GetRules(rules.LanguagePython, "/proj/generated/models.py"), 2)
	assert.Len(t, c.Cache().GetRules(rules.LanguagePython, "/proj/src/app.py"), 3)
}

func TestTick_NoConfig(t *testing.T) {
	src := newFakeSource(pythonRuleset(3))
	cfg := &fakeConfig{}
	c := newTestCoordinator(src, cfg)
	ctx := context.Background()

	outcome, err := c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)

	cfg.write(pythonConfig)
	_, err = c.Tick(ctx)
	require.NoError(t, err)
	require.False(t, c.Cache().IsEmpty())

	cfg.remove()
	outcome, err = c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCleared, outcome)
	assert.True(t, c.Cache().IsEmpty())
	assert.Equal(t, cache.NoConfigFile, c.Cache().ConfigFileVersionMarker())
	assert.Equal(t, cache.NeverUpdated, c.Cache().LastUpdatedTimestamp())

	outcome, err = c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)
}

func TestTick_EmptyRulesetList(t *testing.T) {
	src := newFakeSource(pythonRuleset(3))
	cfg := &fakeConfig{}
	cfg.write(pythonConfig)
	c := newTestCoordinator(src, cfg)
	ctx := context.Background()

	_, err := c.Tick(ctx)
	require.NoError(t, err)

	cfg.write("rulesets: []\n")
	outcome, err := c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCleared, outcome)
	assert.True(t, c.Cache().IsEmpty())

	fetches, _ := src.calls()
	outcome, err = c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)
	after, _ := src.calls()
	assert.Equal(t, fetches, after, "an unchanged config must not refetch")
}

func TestTick_MalformedConfigClears(t *testing.T) {
	src := newFakeSource(pythonRuleset(3))
	cfg := &fakeConfig{}
	cfg.write(pythonConfig)
	c := newTestCoordinator(src, cfg)
	ctx := context.Background()

	_, err := c.Tick(ctx)
	require.NoError(t, err)

	cfg.write("rulesets: [python-ruleset\n")
	outcome, err := c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCleared, outcome)
	assert.True(t, c.Cache().IsEmpty())
}

func TestTick_UnknownRulesetsClear(t *testing.T) {
	src := newFakeSource()
	cfg := &fakeConfig{}
	cfg.write("rulesets:\n  - unknown-ruleset\n")
	c := newTestCoordinator(src, cfg)

	outcome, err := c.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCleared, outcome)
	assert.True(t, c.Cache().IsEmpty())
}

func TestTick_FetchFailureKeepsCache(t *testing.T) {
	src := newFakeSource(pythonRuleset(3))
	cfg := &fakeConfig{}
	cfg.write(pythonConfig)
	c := newTestCoordinator(src, cfg)
	ctx := context.Background()

	_, err := c.Tick(ctx)
	require.NoError(t, err)

	src.set(func(f *fakeSource) { f.fetchErr = errors.New("connection refused") })
	cfg.write(pythonConfig + "ignore:\n  - python-ruleset:\n    - rule_2\n")

	outcome, err := c.Tick(ctx)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Len(t, c.Cache().GetRules(rules.LanguagePython, "/proj/a.py"), 3)
	assert.False(t, c.Cache().HasDifferentVersionMarkerThan(2), "marker is saved before fetching")

	src.set(func(f *fakeSource) { f.fetchErr = nil })
	outcome, err = c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefreshed, outcome)
	assert.Equal(t, []string{"rule_1", "rule_3"}, ruleNames(c.Cache().GetRules(rules.LanguagePython, "/proj/a.py")))
}

func TestTick_PendingRetryOnFirstLoad(t *testing.T) {
	src := newFakeSource(pythonRuleset(3))
	src.fetchErr = errors.New("timeout")
	cfg := &fakeConfig{}
	cfg.write(pythonConfig)
	c := newTestCoordinator(src, cfg)
	ctx := context.Background()

	outcome, err := c.Tick(ctx)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.True(t, c.Cache().IsEmpty())

	src.set(func(f *fakeSource) { f.fetchErr = nil })
	outcome, err = c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefreshed, outcome)
	assert.Len(t, c.Cache().GetRules(rules.LanguagePython, "/proj/a.py"), 3)
}

func TestTick_ServerTimestampChange(t *testing.T) {
	src := newFakeSource(pythonRuleset(3))
	src.timestamp, src.hasTimestamp = 100, true
	cfg := &fakeConfig{}
	cfg.write(pythonConfig)
	c := newTestCoordinator(src, cfg)
	ctx := context.Background()

	_, err := c.Tick(ctx)
	require.NoError(t, err)

	outcome, err := c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, outcome)
	fetches, _ := src.calls()
	assert.Equal(t, 1, fetches)

	src.set(func(f *fakeSource) {
		f.timestamp = 200
		f.rulesets["python-ruleset"] = pythonRuleset(4)
	})
	outcome, err = c.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRefreshed, outcome)
	assert.Len(t, c.Cache().GetRules(rules.LanguagePython, "/proj/a.py"), 4)
	assert.Equal(t, int64(200), c.Cache().LastUpdatedTimestamp())

	src.set(func(f *fakeSource) { f.tsErr = errors.New("unavailable") })
	outcome, err = c.Tick(ctx)
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Len(t, c.Cache().GetRules(rules.LanguagePython, "/proj/a.py"), 4)
}

func TestTick_Disposed(t *testing.T) {
	src := newFakeSource(pythonRuleset(3))
	cfg := &fakeConfig{}
	cfg.write(pythonConfig)
	c := newTestCoordinator(src, cfg)

	c.Dispose()
	outcome, err := c.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeDisposed, outcome)
	assert.True(t, c.Cache().IsEmpty())
	fetches, _ := src.calls()
	assert.Zero(t, fetches)
}

func TestTick_DisposeDuringFetch(t *testing.T) {
	src := newFakeSource(pythonRuleset(3))
	src.entered = make(chan struct{}, 1)
	src.block = make(chan struct{})
	cfg := &fakeConfig{}
	cfg.write(pythonConfig)
	c := newTestCoordinator(src, cfg)

	done := make(chan Outcome, 1)
	go func() {
		outcome, _ := c.Tick(context.Background())
		done <- outcome
	}()

	<-src.entered
	c.Dispose()
	close(src.block)

	assert.Equal(t, OutcomeDisposed, <-done)
	assert.True(t, c.Cache().IsEmpty())
}

func TestTick_OverlappingTickSkipped(t *testing.T) {
	src := newFakeSource(pythonRuleset(3))
	src.entered = make(chan struct{}, 1)
	src.block = make(chan struct{})
	cfg := &fakeConfig{}
	cfg.write(pythonConfig)
	c := newTestCoordinator(src, cfg)

	done := make(chan Outcome, 1)
	go func() {
		outcome, _ := c.Tick(context.Background())
		done <- outcome
	}()

	<-src.entered
	outcome, err := c.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)

	close(src.block)
	assert.Equal(t, OutcomeRefreshed, <-done)
}

func TestTick_LocateError(t *testing.T) {
	src := newFakeSource(pythonRuleset(3))
	cfg := &fakeConfig{err: errors.New("permission denied")}
	c := newTestCoordinator(src, cfg)

	outcome, err := c.Tick(context.Background())
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "refreshed", OutcomeRefreshed.String())
	assert.Equal(t, "skipped", OutcomeSkipped.String())
	assert.Equal(t, "outcome(42)", Outcome(42).String())
}

func TestScheduler_Lifecycle(t *testing.T) {
	src := newFakeSource(pythonRuleset(3))
	cfg := &fakeConfig{}
	cfg.write(pythonConfig)
	c := newTestCoordinator(src, cfg)

	s := NewScheduler(logger.Discard())
	id := s.Start(context.Background(), "", c, 10*time.Millisecond)
	require.NotEmpty(t, id)
	assert.Equal(t, []string{id}, s.Sessions())

	got, ok := s.Coordinator(id)
	require.True(t, ok)
	assert.Same(t, c, got)

	assert.Eventually(t, func() bool {
		return len(c.Cache().GetRules(rules.LanguagePython, "/proj/a.py")) == 3
	}, time.Second, 5*time.Millisecond)

	assert.True(t, s.Stop(id))
	assert.True(t, c.Disposed())
	assert.Empty(t, s.Sessions())
	assert.False(t, s.Stop(id))
}

func TestScheduler_StopAll(t *testing.T) {
	s := NewScheduler(logger.Discard())
	ctx := context.Background()

	var coordinators []*Coordinator
	for _, id := range []string{"b", "a"} {
		c := newTestCoordinator(newFakeSource(), &fakeConfig{})
		coordinators = append(coordinators, c)
		assert.Equal(t, id, s.Start(ctx, id, c, time.Hour))
	}
	assert.Equal(t, []string{"a", "b"}, s.Sessions())

	s.StopAll()
	assert.Empty(t, s.Sessions())
	for _, c := range coordinators {
		assert.True(t, c.Disposed())
	}
}
