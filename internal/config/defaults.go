package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/JNZader/rosie/internal/projectconfig"
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:      "http://localhost:8080",
			Timeout:      30 * time.Second,
			RateLimitRPS: 10,
			MaxRetries:   2,
		},
		Project: ProjectConfig{
			Root:        ".",
			ConfigFiles: append([]string{}, projectconfig.DefaultFileNames...),
		},
		Sync: SyncConfig{Interval: 10 * time.Second},
		Analysis: AnalysisConfig{
			MaxConcurrency: 5,
			MinSeverity:    "informational",
			MaxFileSizeKB:  512,
			IgnorePatterns: DefaultIgnorePatterns(),
		},
		Cache: CacheConfig{FilteredEntries: 1024},
		History: HistoryConfig{
			Enabled: false,
			Path:    filepath.Join(defaultCacheDir(), "history.db"),
		},
		Output: OutputConfig{Format: "markdown"},
		Log:    LogConfig{Level: "info"},
	}
}

// defaultCacheDir returns the default cache directory path.
func defaultCacheDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".cache", "rosie")
}

// DefaultIgnorePatterns returns the path patterns skipped when a directory
// is analyzed.
func DefaultIgnorePatterns() []string {
	return []string{
		// Dependencies
		"node_modules/*",
		"vendor/*",
		".venv/*",
		"venv/*",
		"__pycache__/*",

		// Build output
		"dist/*",
		"build/*",
		"target/*",
		"out/*",
		".next/*",

		// Generated code
		"*.min.js",
		"*.pb.go",
		"*_pb2.py",

		// VCS and editors
		".git/*",
		".idea/*",
		".vscode/*",
	}
}
