package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "UTF-8", cfg.TextEncoding)
	assert.False(t, cfg.LogDevelopment)
	assert.Zero(t, cfg.CacheMaxBytes)
	assert.Equal(t, os.TempDir(), cfg.TempDir)
	assert.NotEmpty(t, cfg.CacheDir)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ARCVFS_TEMP_DIR", "/var/tmp/arc")
	t.Setenv("ARCVFS_CACHE_DIR", "/var/cache/arc")
	t.Setenv("ARCVFS_CACHE_MAX_BYTES", "1048576")
	t.Setenv("ARCVFS_LOG_LEVEL", "debug")
	t.Setenv("ARCVFS_LOG_DEVELOPMENT", "true")
	t.Setenv("ARCVFS_TEXT_ENCODING", "ISO-8859-1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, &Config{
		TempDir:        "/var/tmp/arc",
		CacheDir:       "/var/cache/arc",
		CacheMaxBytes:  1 << 20,
		LogLevel:       "debug",
		LogDevelopment: true,
		TextEncoding:   "ISO-8859-1",
	}, cfg)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("ARCVFS_CACHE_MAX_BYTES", "lots")
	_, err := Load()
	assert.Error(t, err)
	assert.Equal(t, Default(), LoadOrDefault())

	t.Setenv("ARCVFS_CACHE_MAX_BYTES", "-1")
	_, err = Load()
	assert.Error(t, err)
}
