// Package config handles all configuration management for rosie.
//
// Configuration is loaded from multiple sources in order of precedence:
// 1. Command-line flags (highest priority)
// 2. Environment variables (ROSIE_*)
// 3. Configuration file (.rosie.yaml)
// 4. Default values (lowest priority)
package config

import (
	"net/url"
	"strings"
	"time"

	"github.com/JNZader/rosie/internal/logger"
)

// Config is the main configuration structure for rosie.
type Config struct {
	// Server configures the remote analysis service
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Project configures where the project and its rosie.yml live
	Project ProjectConfig `mapstructure:"project" yaml:"project" json:"project"`

	// Sync configures the cache refresh loop
	Sync SyncConfig `mapstructure:"sync" yaml:"sync" json:"sync"`

	// Analysis configures file analysis
	Analysis AnalysisConfig `mapstructure:"analysis" yaml:"analysis" json:"analysis"`

	// Cache configures the rules cache
	Cache CacheConfig `mapstructure:"cache" yaml:"cache" json:"cache"`

	// History configures the annotation history database
	History HistoryConfig `mapstructure:"history" yaml:"history" json:"history"`

	// Output configures output formatting
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Log configures logging
	Log LogConfig `mapstructure:"log" yaml:"log" json:"log"`
}

// ServerConfig configures the Rosie service client.
type ServerConfig struct {
	// BaseURL is the service base URL
	BaseURL string `mapstructure:"base_url" yaml:"base_url" json:"base_url"`

	// APIKey is sent in the X-Api-Token header.
	// This should be set via environment variable, not config file
	APIKey string `mapstructure:"api_key" yaml:"api_key" json:"api_key"`

	// Timeout is the per-request timeout
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`

	// RateLimitRPS is requests per second limit (0 = unlimited)
	RateLimitRPS int `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps" json:"rate_limit_rps"`

	// MaxRetries is the number of retries on throttling and server errors
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries" json:"max_retries"`
}

// ProjectConfig locates the project.
type ProjectConfig struct {
	// Root is the project root; ignore prefixes are relative to it
	Root string `mapstructure:"root" yaml:"root" json:"root"`

	// ConfigFiles are the project config file names, tried in order
	ConfigFiles []string `mapstructure:"config_files" yaml:"config_files" json:"config_files"`
}

// SyncConfig configures cache refreshing.
type SyncConfig struct {
	// Interval between refresh ticks
	Interval time.Duration `mapstructure:"interval" yaml:"interval" json:"interval"`
}

// AnalysisConfig configures file analysis.
type AnalysisConfig struct {
	// MaxConcurrency is the maximum number of files analyzed in parallel
	MaxConcurrency int `mapstructure:"max_concurrency" yaml:"max_concurrency" json:"max_concurrency"`

	// MinSeverity drops annotations below this level
	MinSeverity string `mapstructure:"min_severity" yaml:"min_severity" json:"min_severity"`

	// MaxFileSizeKB skips larger files
	MaxFileSizeKB int `mapstructure:"max_file_size_kb" yaml:"max_file_size_kb" json:"max_file_size_kb"`

	// IgnorePatterns are skipped when walking directories
	IgnorePatterns []string `mapstructure:"ignore_patterns" yaml:"ignore_patterns" json:"ignore_patterns"`
}

// CacheConfig configures the rules cache.
type CacheConfig struct {
	// FilteredEntries bounds the per-path filtered rules memo
	FilteredEntries int `mapstructure:"filtered_entries" yaml:"filtered_entries" json:"filtered_entries"`
}

// HistoryConfig configures annotation history.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Path    string `mapstructure:"path" yaml:"path" json:"path"`
}

// OutputConfig configures output formatting.
type OutputConfig struct {
	// Format is the report format: "markdown", "json", "sarif"
	Format string `mapstructure:"format" yaml:"format" json:"format"`

	// File writes the report to a file instead of stdout
	File string `mapstructure:"file" yaml:"file" json:"file"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level" json:"level"`
}

var validSeverities = map[string]bool{
	"informational": true, "info": true, "notice": true,
	"warning": true, "error": true, "critical": true,
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return &ValidationError{Field: "server.base_url", Message: "base URL is required"}
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: "server.base_url", Message: "must be an http or https URL"}
	}
	if c.Server.Timeout <= 0 {
		return &ValidationError{Field: "server.timeout", Message: "timeout must be positive"}
	}
	if c.Server.RateLimitRPS < 0 {
		return &ValidationError{Field: "server.rate_limit_rps", Message: "must not be negative"}
	}
	if c.Server.MaxRetries < 0 {
		return &ValidationError{Field: "server.max_retries", Message: "must not be negative"}
	}

	if len(c.Project.ConfigFiles) == 0 {
		return &ValidationError{Field: "project.config_files", Message: "at least one config file name is required"}
	}

	if c.Sync.Interval < time.Second {
		return &ValidationError{Field: "sync.interval", Message: "interval must be at least 1s"}
	}

	if c.Analysis.MaxConcurrency <= 0 {
		return &ValidationError{Field: "analysis.max_concurrency", Message: "must be positive"}
	}
	if !validSeverities[strings.ToLower(c.Analysis.MinSeverity)] {
		return &ValidationError{Field: "analysis.min_severity", Message: "must be one of: informational, warning, error, critical"}
	}
	if c.Analysis.MaxFileSizeKB <= 0 {
		return &ValidationError{Field: "analysis.max_file_size_kb", Message: "must be positive"}
	}

	if c.History.Enabled && c.History.Path == "" {
		return &ValidationError{Field: "history.path", Message: "history path is required when history is enabled"}
	}

	validFormats := map[string]bool{"markdown": true, "json": true, "sarif": true}
	if !validFormats[c.Output.Format] {
		return &ValidationError{Field: "output.format", Message: "invalid format, must be one of: markdown, json, sarif"}
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return &ValidationError{Field: "log.level", Message: err.Error()}
	}

	return nil
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "config validation error: " + e.Field + ": " + e.Message
}
