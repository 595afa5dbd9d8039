// Package config loads the command-line tool's configuration from the
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable name.
const Prefix = "ARCVFS"

// Config holds all tool configuration. Each field is read from
// ARCVFS_<tag>.
type Config struct {
	// TempDir holds spooled content and extracted temporary files.
	// Empty means the system temporary directory.
	TempDir string `envconfig:"TEMP_DIR"`

	// CacheDir holds extracted nested archives. Empty means a directory
	// under the user cache directory.
	CacheDir string `envconfig:"CACHE_DIR"`

	// CacheMaxBytes bounds the extraction cache; zero disables the bound.
	CacheMaxBytes int64 `envconfig:"CACHE_MAX_BYTES" default:"0"`

	LogLevel       string `envconfig:"LOG_LEVEL" default:"warn"`
	LogDevelopment bool   `envconfig:"LOG_DEVELOPMENT" default:"false"`

	// TextEncoding is the encoding of text stored in archives, used in
	// text mode.
	TextEncoding string `envconfig:"TEXT_ENCODING" default:"UTF-8"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.CacheMaxBytes < 0 {
		return nil, fmt.Errorf("failed to load config: %s_CACHE_MAX_BYTES must be >= 0", Prefix)
	}
	cfg.fill()
	return &cfg, nil
}

// LoadOrDefault loads configuration from the environment or returns the
// default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns the default configuration.
func Default() *Config {
	cfg := &Config{
		LogLevel:     "warn",
		TextEncoding: "UTF-8",
	}
	cfg.fill()
	return cfg
}

// fill resolves empty directories.
func (c *Config) fill() {
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	if c.CacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = os.TempDir()
		}
		c.CacheDir = filepath.Join(base, "arcvfs")
	}
}
