package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/codesearch/internal/invalidation"
	"github.com/dshills/codesearch/internal/scoring"
)

// isolate points every config source at a scratch directory
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvDBPath, "")
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvCacheDir, "")
	require.NoError(t, os.Unsetenv(EnvCacheDir))
	return dir
}

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "immediate", cfg.Invalidate.Strategy)
	assert.True(t, cfg.Indexer.IncludeTests)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".codesearch", "codesearch.db"), cfg.DBPath)
	assert.Equal(t, filepath.Join(home, ".codesearch", "cache"), cfg.CacheDir)
	assert.Equal(t, DefaultLockTimeout, cfg.LockTimeout)
}

func TestLoad_File(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "codesearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_path: /data/index.db
cache_dir: ""
lock_timeout: 5s
cache:
  l1_max_entries: 50
  l1_ttl: 2m
invalidation:
  strategy: delayed
  batch_window: 500ms
scoring:
  temporal: aggressive
  weights:
    path_relevance: 0.5
indexer:
  include_tests: false
  exclude_patterns: ["gen/**"]
log:
  level: debug
  format: json
`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/index.db", cfg.DBPath)
	assert.Empty(t, cfg.CacheDir)
	assert.Equal(t, 5*time.Second, cfg.LockTimeout)
	assert.Equal(t, 50, cfg.Cache.L1MaxEntries)
	assert.Equal(t, 2*time.Minute, cfg.Cache.L1TTL)
	// Unset keys keep their defaults
	assert.Equal(t, Default().Cache.L2TTL, cfg.Cache.L2TTL)
	assert.False(t, cfg.Indexer.IncludeTests)
	assert.Equal(t, []string{"gen/**"}, cfg.Indexer.ExcludePatterns)
	assert.Equal(t, 0.5, cfg.Scoring.Weights[scoring.PathRelevanceName])
	assert.Equal(t, "debug", cfg.Log.Level)

	inv := cfg.InvalidationOptions()
	assert.Equal(t, invalidation.Delayed, inv.Strategy)
	assert.Equal(t, 500*time.Millisecond, inv.BatchWindow)

	temporal, err := cfg.TemporalOptions()
	require.NoError(t, err)
	assert.Equal(t, scoring.TemporalAggressive, temporal)

	opts := cfg.CacheOptions()
	assert.Empty(t, opts.Dir)
	assert.Equal(t, 50, opts.L1MaxEntries)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "codesearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_path: /from/file.db\n"), 0600))

	t.Setenv(EnvDBPath, "/from/env.db")
	t.Setenv(EnvCacheDir, "~/cache")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env.db", cfg.DBPath)
	assert.Equal(t, filepath.Join(dir, "cache"), cfg.CacheDir)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_ConfigFromEnv(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  format: json\n"), 0600))
	t.Setenv(EnvConfig, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_Errors(t *testing.T) {
	dir := isolate(t)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("cache: [unclosed"), 0600))
	_, err := Load(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("invalidation:\n  strategy: eventually\n"), 0600))
	_, err = Load(invalid)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"zero lock timeout", func(c *Config) { c.LockTimeout = 0 }},
		{"no L1 entries", func(c *Config) { c.Cache.L1MaxEntries = 0 }},
		{"negative ttl", func(c *Config) { c.Cache.L2TTL = -time.Second }},
		{"unknown strategy", func(c *Config) { c.Invalidate.Strategy = "sometimes" }},
		{"unknown preset", func(c *Config) { c.Scoring.Temporal = "glacial" }},
		{"negative weight", func(c *Config) { c.Scoring.Weights = map[string]float64{"path_relevance": -1} }},
		{"bad exclude glob", func(c *Config) { c.Indexer.ExcludePatterns = []string{"[abc"} }},
		{"unknown log level", func(c *Config) { c.Log.Level = "loud" }},
		{"unknown log format", func(c *Config) { c.Log.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestExpandHome(t *testing.T) {
	home := isolate(t)

	got, err := ExpandHome("~/x/y.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x", "y.db"), got)

	got, err = ExpandHome("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", got)

	got, err = ExpandHome("~user/path")
	require.NoError(t, err)
	assert.Equal(t, "~user/path", got)
}
