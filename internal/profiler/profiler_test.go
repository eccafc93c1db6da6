package profiler

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JNZader/rosie/internal/logger"
	"github.com/JNZader/rosie/internal/metrics"
)

func TestNew_CPUAndMemProfile(t *testing.T) {
	dir := t.TempDir()
	cpuFile := filepath.Join(dir, "cpu.prof")
	memFile := filepath.Join(dir, "mem.prof")

	p, err := New(Config{CPUProfile: cpuFile, MemProfile: memFile, Logger: logger.Discard()})
	require.NoError(t, err)

	sum := 0
	for i := 0; i < 100000; i++ {
		sum += i
	}
	_ = sum

	require.NoError(t, p.Stop())

	for _, f := range []string{cpuFile, memFile} {
		_, err := os.Stat(f)
		assert.NoError(t, err, "profile %s was not created", f)
	}
}

func TestNew_InvalidCPUPath(t *testing.T) {
	_, err := New(Config{CPUProfile: "/nonexistent/path/cpu.prof", Logger: logger.Discard()})
	assert.Error(t, err)
}

func TestNew_DiagnosticsServer(t *testing.T) {
	m := metrics.NewCollector()
	m.Counter(metrics.MetricTicksTotal).Add(3)

	p, err := New(Config{HTTPAddr: "127.0.0.1:0", Metrics: m, Logger: logger.Discard()})
	require.NoError(t, err)
	defer p.Stop()

	require.NotEmpty(t, p.Addr())

	resp, err := http.Get("http://" + p.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), metrics.MetricTicksTotal+" 3")
}

func TestNewMux(t *testing.T) {
	srv := httptest.NewServer(NewMux(metrics.NewCollector()))
	defer srv.Close()

	tests := []struct {
		path        string
		contentType string
	}{
		{"/healthz", "text/plain"},
		{"/metrics", "text/plain"},
		{"/metrics.json", "application/json"},
		{"/debug/pprof/", "text/html"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), tt.contentType),
				"Content-Type = %q", resp.Header.Get("Content-Type"))
		})
	}
}

func TestStats(t *testing.T) {
	stats := Stats()

	assert.NotZero(t, stats.Alloc)
	assert.NotZero(t, stats.Sys)
	assert.Positive(t, stats.Goroutines)
	assert.Contains(t, stats.String(), "Goroutines:")
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    uint64
		expected string
	}{
		{500, "500 B"},
		{1024, "1.0 KiB"},
		{1024 * 1024, "1.0 MiB"},
		{1024 * 1024 * 1024, "1.0 GiB"},
	}

	for _, tc := range tests {
		if got := formatBytes(tc.bytes); got != tc.expected {
			t.Errorf("formatBytes(%d) = %s, expected %s", tc.bytes, got, tc.expected)
		}
	}
}
