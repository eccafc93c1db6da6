package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	configName     = ".rosie"
	configFileName = configName + ".yaml"
	envPrefix      = "ROSIE"
	systemDir      = "/etc/rosie"
)

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	v := viper.New()

	v.SetConfigName(configName)
	v.SetConfigType("yaml")

	// Search paths in order of priority
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(systemDir)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Loader{v: v}
}

// SetConfigFile sets a specific config file to use.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
	l.v.SetConfigFile(path)
}

// Load loads the configuration from all sources.
// Priority (highest to lowest):
// 1. Explicit config file (if set via SetConfigFile)
// 2. Environment variables (ROSIE_*)
// 3. Config file from search paths (.rosie.yaml)
// 4. Default values
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()
	l.setDefaults(cfg)

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func (l *Loader) setDefaults(cfg *Config) {
	l.v.SetDefault("server.base_url", cfg.Server.BaseURL)
	l.v.SetDefault("server.api_key", cfg.Server.APIKey)
	l.v.SetDefault("server.timeout", cfg.Server.Timeout)
	l.v.SetDefault("server.rate_limit_rps", cfg.Server.RateLimitRPS)
	l.v.SetDefault("server.max_retries", cfg.Server.MaxRetries)

	l.v.SetDefault("project.root", cfg.Project.Root)
	l.v.SetDefault("project.config_files", cfg.Project.ConfigFiles)

	l.v.SetDefault("sync.interval", cfg.Sync.Interval)

	l.v.SetDefault("analysis.max_concurrency", cfg.Analysis.MaxConcurrency)
	l.v.SetDefault("analysis.min_severity", cfg.Analysis.MinSeverity)
	l.v.SetDefault("analysis.max_file_size_kb", cfg.Analysis.MaxFileSizeKB)
	l.v.SetDefault("analysis.ignore_patterns", cfg.Analysis.IgnorePatterns)

	l.v.SetDefault("cache.filtered_entries", cfg.Cache.FilteredEntries)

	l.v.SetDefault("history.enabled", cfg.History.Enabled)
	l.v.SetDefault("history.path", cfg.History.Path)

	l.v.SetDefault("output.format", cfg.Output.Format)
	l.v.SetDefault("output.file", cfg.Output.File)

	l.v.SetDefault("log.level", cfg.Log.Level)
}

// ConfigFileUsed returns the path of the config file used, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance, e.g. to bind flags.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// LoadFromFile loads configuration from a specific file.
func LoadFromFile(path string) (*Config, error) {
	loader := NewLoader()
	loader.SetConfigFile(path)
	return loader.Load()
}

// LoadDefault loads configuration with default search paths.
func LoadDefault() (*Config, error) {
	return NewLoader().Load()
}

// FindConfigFile searches for a config file and returns its path.
// Returns empty string if no config file is found.
func FindConfigFile() string {
	if _, err := os.Stat(configFileName); err == nil {
		if abs, err := filepath.Abs(configFileName); err == nil {
			return abs
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, configFileName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	etcPath := filepath.Join(systemDir, configFileName)
	if _, err := os.Stat(etcPath); err == nil {
		return etcPath
	}

	return ""
}

// MatchesIgnorePattern reports whether the slash-separated relative path
// matches one of patterns. A "dir/*" pattern matches everything below any
// directory named dir; other patterns match the base name or the full path.
func MatchesIgnorePattern(relPath string, patterns []string) bool {
	relPath = strings.TrimPrefix(filepath.ToSlash(relPath), "/")
	base := path.Base(relPath)
	segments := strings.Split(relPath, "/")

	for _, p := range patterns {
		if dir, ok := strings.CutSuffix(p, "/*"); ok && !strings.ContainsAny(dir, "*?[") {
			for _, seg := range segments[:len(segments)-1] {
				if seg == dir {
					return true
				}
			}
			continue
		}
		if ok, _ := path.Match(p, base); ok {
			return true
		}
		if ok, _ := path.Match(p, relPath); ok {
			return true
		}
	}
	return false
}
