package mcp

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JNZader/rosie/internal/analysis"
	"github.com/JNZader/rosie/internal/cache"
	"github.com/JNZader/rosie/internal/history"
	"github.com/JNZader/rosie/internal/logger"
	"github.com/JNZader/rosie/internal/metrics"
	"github.com/JNZader/rosie/internal/normalize"
	"github.com/JNZader/rosie/internal/projectconfig"
	"github.com/JNZader/rosie/internal/rosie"
	"github.com/JNZader/rosie/internal/rules"
)

type stubAnalyzer struct{}

func (stubAnalyzer) Analyze(_ context.Context, req rosie.Request) ([]normalize.Finding, error) {
	return []normalize.Finding{{
		RuleID:   req.Rules[0].RuleID,
		Message:  "avoid print",
		Severity: normalize.SeverityWarning,
		Start:    normalize.Position{Line: 1, Col: 1},
		End:      normalize.Position{Line: 1, Col: 6},
	}}, nil
}

type stubHistory struct{ got history.SearchQuery }

func (h *stubHistory) Search(_ context.Context, q history.SearchQuery) (*history.SearchResult, error) {
	h.got = q
	return &history.SearchResult{}, nil
}

func newDeps(t *testing.T) (Deps, *stubHistory) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.py"), []byte("print(1)\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "rosie.yml"),
		[]byte("rulesets:\n  - python-ruleset\n  - unknown-ruleset\n"), 0o600))

	rc := cache.New(root, cache.WithLogger(logger.Discard()))
	rc.UpdateFrom([]rules.Ruleset{{
		Name: "python-ruleset",
		Rules: []rules.RuleRecord{{
			RulesetName: "python-ruleset", RuleName: "no-print", RuleID: "py-1", Language: rules.LanguagePython,
		}},
	}})

	engine := analysis.NewEngine(rc, stubAnalyzer{}, analysis.Options{},
		analysis.WithLogger(logger.Discard()), analysis.WithMetrics(metrics.NewCollector()))
	h := &stubHistory{}
	return Deps{Cache: rc, Engine: engine, Config: projectconfig.NewLocator(root), History: h}, h
}

func TestRegisterTools(t *testing.T) {
	d, _ := newDeps(t)
	s := NewServer("rosie", "test")
	require.NoError(t, RegisterTools(s, d))

	var names []string
	for _, tool := range s.listTools() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{
		"rosie_analyze", "rosie_cache_stats", "rosie_check_config", "rosie_history_search", "rosie_rules",
	}, names)

	d.History = nil
	s = NewServer("rosie", "test")
	require.NoError(t, RegisterTools(s, d))
	assert.Len(t, s.listTools(), 4)
}

func TestHandleRules(t *testing.T) {
	d, _ := newDeps(t)

	out, err := d.handleRules(context.Background(), map[string]interface{}{"file": "app.py"})
	require.NoError(t, err)

	res := out.(map[string]interface{})
	assert.Equal(t, rules.LanguagePython, res["language"])
	assert.Equal(t, []ruleSummary{{ID: "py-1", Ruleset: "python-ruleset", Name: "no-print"}}, res["rules"])

	_, err = d.handleRules(context.Background(), map[string]interface{}{})
	assert.Error(t, err)
}

func TestHandleAnalyze(t *testing.T) {
	d, _ := newDeps(t)

	out, err := d.handleAnalyze(context.Background(), map[string]interface{}{"file": "app.py"})
	require.NoError(t, err)

	fr := out.(analysis.FileResult)
	require.Len(t, fr.Annotations, 1)
	assert.Equal(t, "avoid print", fr.Annotations[0].Message)
	assert.Equal(t, "no-print", fr.Annotations[0].RuleName)
	assert.Equal(t, 0, fr.Annotations[0].StartOffset)
	assert.Equal(t, 5, fr.Annotations[0].EndOffset)

	_, err = d.handleAnalyze(context.Background(), map[string]interface{}{"file": "missing.py"})
	assert.Error(t, err)
}

func TestHandleCheckConfig(t *testing.T) {
	d, _ := newDeps(t)

	out, err := d.handleCheckConfig(context.Background(), nil)
	require.NoError(t, err)

	diags := out.(map[string]interface{})["diagnostics"].([]projectconfig.Diagnostic)
	require.Len(t, diags, 1)
	assert.Equal(t, "unknown-ruleset", diags[0].Ruleset)
}

func TestHandleHistorySearch(t *testing.T) {
	d, h := newDeps(t)

	_, err := d.handleHistorySearch(context.Background(), map[string]interface{}{
		"query": "print", "limit": float64(5), "minSeverity": "error",
	})
	require.NoError(t, err)
	assert.Equal(t, history.SearchQuery{Text: "print", MinSeverity: "error", Limit: 5}, h.got)
}

func TestToolArgumentsValidated(t *testing.T) {
	d, _ := newDeps(t)
	s := NewServer("rosie", "test")
	require.NoError(t, RegisterTools(s, d))

	resps := roundTrip(t, s,
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"rosie_rules","arguments":{}}}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"rosie_history_search","arguments":{"minSeverity":"loud"}}}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"rosie_rules","arguments":{"file":"app.py"}}}`,
	)
	require.Len(t, resps, 3)
	require.NotNil(t, resps[0].Error)
	require.NotNil(t, resps[1].Error)
	assert.Nil(t, resps[2].Error)
}
