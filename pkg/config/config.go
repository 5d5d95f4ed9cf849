// Package config loads the yomiport batch configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// DefaultCacheDir is where downloaded archives are kept.
const DefaultCacheDir = ".yomiport-cache"

// Config holds the settings for an ingestion run.
type Config struct {
	// Archives are local paths or http(s) URLs.
	Archives []string `yaml:"archives"`

	// Workers is the number of members decoded concurrently per archive.
	Workers int `yaml:"workers"`
	// Parallel is the number of archives ingested at once.
	Parallel int `yaml:"parallel"`

	// Database is an optional SQLite path. Empty disables persistence.
	Database string `yaml:"database"`
	CacheDir string `yaml:"cache_dir"`
	LogLevel string `yaml:"log_level"` // debug, info, warn, error
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Workers:  1,
		Parallel: 1,
		CacheDir: DefaultCacheDir,
		LogLevel: "info",
	}
}

// Load reads a YAML file over the defaults. An empty path or a missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, cfg.Validate()
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("YOMIPORT_DB"); path != "" {
		c.Database = path
	}
	if dir := os.Getenv("YOMIPORT_CACHE_DIR"); dir != "" {
		c.CacheDir = dir
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1, got %d", c.Parallel)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel. An empty level means info.
func (c *Config) Level() (zapcore.Level, error) {
	if c.LogLevel == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return lvl, nil
}
