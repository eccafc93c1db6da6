package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		cfgFile, projectRoot, verbose, quiet = "", "", false, false
		configShowJSON, rulesJSON, versionShort, versionJSON = false, false, false, false
	})

	err := rootCmd.Execute()
	return buf.String(), err
}

const projectConfig = `rulesets:
  - python-ruleset
  - missing-ruleset
ignore:
  - python-ruleset:
      - rule_2
`

// fakeRosie serves one python ruleset with two rules and reports a single
// error-level violation for rule_1.
func fakeRosie(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/rulesets/query":
			var req struct {
				Names []string `json:"names"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			var rulesets []string
			for _, name := range req.Names {
				if name == "python-ruleset" {
					rulesets = append(rulesets, `{"name":"python-ruleset","rules":[
						{"id":"python-ruleset/rule_1","name":"rule_1","language":"PYTHON","content_base64":"AA=="},
						{"id":"python-ruleset/rule_2","name":"rule_2","language":"PYTHON","content_base64":"AA=="}]}`)
				}
			}
			fmt.Fprintf(w, `{"rulesets":[%s]}`, strings.Join(rulesets, ","))
		case "/rulesets/last-updated":
			fmt.Fprint(w, `{"timestamp":100}`)
		case "/analyze":
			fmt.Fprint(w, `{"rule_responses":[{"identifier":"python-ruleset/rule_1","violations":[
				{"start":{"line":1,"col":1},"end":{"line":1,"col":6},"message":"avoid print","severity":"ERROR","category":"BEST_PRACTICE"}]}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// setupProject writes a project with rosie.yml and app.py plus a tool
// config pointing at srv, and returns the project dir and config path.
func setupProject(t *testing.T, srv *httptest.Server) (string, string) {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rosie.yml"), []byte(projectConfig), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.py"), []byte("print('hi')\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules", "x"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "node_modules", "x", "index.js"), []byte("x\n"), 0o644))

	cfg := fmt.Sprintf(`server:
  base_url: %s
  api_key: secret-token
  max_retries: 0
history:
  enabled: true
  path: %s
log:
  level: error
`, srv.URL, filepath.Join(dir, ".rosie", "history.db"))
	cfgPath := filepath.Join(t.TempDir(), "rosie.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return dir, cfgPath
}

func TestRulesCommand(t *testing.T) {
	dir, cfgPath := setupProject(t, fakeRosie(t))

	out, err := execute(t, "rules", "--config", cfgPath, "-p", dir, filepath.Join(dir, "app.py"))
	require.NoError(t, err)

	assert.Contains(t, out, "(python): 1 rules")
	assert.Contains(t, out, "python-ruleset/rule_1")
	assert.NotContains(t, out, "rule_2")
}

func TestAnalyzeCommand(t *testing.T) {
	dir, cfgPath := setupProject(t, fakeRosie(t))

	out, err := execute(t, "analyze", "--config", cfgPath, "-p", dir, "--format", "json", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "avoid print")
	assert.Contains(t, out, `"/app.py"`)
	assert.NotContains(t, out, "node_modules")

	_, err = execute(t, "analyze", "--config", cfgPath, "-p", dir, "--format", "json", "--fail-on", "warning", dir)
	assert.ErrorIs(t, err, ErrSeverityThreshold)

	out, err = execute(t, "history", "stats", "--config", cfgPath, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"total_annotations": 2`)
	assert.Contains(t, out, `"runs": 2`)
}

func TestConfigShowMasksAPIKey(t *testing.T) {
	_, cfgPath := setupProject(t, fakeRosie(t))

	out, err := execute(t, "config", "show", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "***REDACTED***")
	assert.NotContains(t, out, "secret-token")
	assert.Contains(t, out, "base_url:")
}

func TestConfigCheckReportsUnknownRuleset(t *testing.T) {
	dir, cfgPath := setupProject(t, fakeRosie(t))

	out, err := execute(t, "config", "check", "--config", cfgPath, "-p", dir)
	require.Error(t, err)
	assert.Contains(t, out, `ruleset "missing-ruleset" does not exist`)
}

func TestCollectFiles(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"a.py", "src/b.go", "src/notes.txt", "node_modules/pkg/c.js", "app.min.js"} {
		path := filepath.Join(dir, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}

	files, err := collectFiles(dir, []string{dir, filepath.Join(dir, "a.py")}, []string{"node_modules/*", "*.min.js"})
	require.NoError(t, err)

	var rel []string
	for _, f := range files {
		r, _ := filepath.Rel(dir, f)
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.ElementsMatch(t, []string{"a.py", "src/b.go"}, rel)
}

func TestServeCommand(t *testing.T) {
	dir, cfgPath := setupProject(t, fakeRosie(t))

	rootCmd.SetIn(strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}` + "\n"))
	t.Cleanup(func() { rootCmd.SetIn(nil) })

	out, err := execute(t, "serve", "--config", cfgPath, "-p", dir)
	require.NoError(t, err)
	assert.Contains(t, out, `"rosie_analyze"`)
	assert.Contains(t, out, `"rosie_history_search"`)
}

func TestDotEnvInProjectRoot(t *testing.T) {
	dir, cfgPath := setupProject(t, fakeRosie(t))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ROSIE_OUTPUT_FORMAT=sarif\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("ROSIE_OUTPUT_FORMAT") })

	out, err := execute(t, "config", "show", "--json", "--config", cfgPath, "-p", dir)
	require.NoError(t, err)
	assert.Contains(t, out, `"format": "sarif"`)
}
