package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/codesearch/internal/analysis"
	"github.com/dshills/codesearch/internal/cache"
	"github.com/dshills/codesearch/internal/indexer"
	"github.com/dshills/codesearch/internal/invalidation"
	"github.com/dshills/codesearch/internal/scoring"
)

// Environment variables that override file settings
const (
	EnvDBPath   = "CODESEARCH_DB_PATH"
	EnvCacheDir = "CODESEARCH_CACHE_DIR"
	EnvLogLevel = "CODESEARCH_LOG_LEVEL"
	EnvConfig   = "CODESEARCH_CONFIG"
)

const (
	// DefaultDir holds the database, the disk cache and the config file
	DefaultDir = "~/.codesearch"
	// DefaultLockTimeout bounds waits for the index lock
	DefaultLockTimeout = 30 * time.Second
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete application configuration
type Config struct {
	DBPath      string             `yaml:"db_path"`
	CacheDir    string             `yaml:"cache_dir"` // Empty disables the disk cache
	LockTimeout time.Duration      `yaml:"lock_timeout"`
	Cache       CacheConfig        `yaml:"cache"`
	Invalidate  InvalidationConfig `yaml:"invalidation"`
	Analyzer    AnalyzerConfig     `yaml:"analyzer"`
	Scoring     ScoringConfig      `yaml:"scoring"`
	Indexer     indexer.Config     `yaml:"indexer"`
	Log         LogConfig          `yaml:"log"`
}

// CacheConfig sizes both cache levels
type CacheConfig struct {
	L1MaxEntries     int           `yaml:"l1_max_entries"`
	L1MaxBytes       int64         `yaml:"l1_max_bytes"`
	L1TTL            time.Duration `yaml:"l1_ttl"`
	L2MaxBytes       int64         `yaml:"l2_max_bytes"`
	L2TTL            time.Duration `yaml:"l2_ttl"`
	WriteConcurrency int64         `yaml:"write_concurrency"`
	L1SweepInterval  time.Duration `yaml:"l1_sweep_interval"`
	L2SweepInterval  time.Duration `yaml:"l2_sweep_interval"`
}

// InvalidationConfig selects the invalidation strategy
type InvalidationConfig struct {
	Strategy    string        `yaml:"strategy"` // immediate, delayed or lazy
	BatchWindow time.Duration `yaml:"batch_window"`
}

// AnalyzerConfig tunes the content analysis chain
type AnalyzerConfig struct {
	MinLength        int  `yaml:"min_length"`
	DisableSplitting bool `yaml:"disable_splitting"`
	IndexPunctuation bool `yaml:"index_punctuation"`
}

// ScoringConfig sets factor weights and the recency curve
type ScoringConfig struct {
	Temporal string             `yaml:"temporal"` // default, aggressive or gentle
	Weights  map[string]float64 `yaml:"weights"`
}

// LogConfig configures the process logger
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn or error
	Format string `yaml:"format"` // text or json
}

// Default returns the built-in configuration
func Default() *Config {
	co := cache.DefaultOptions()
	ao := analysis.DefaultOptions()
	return &Config{
		DBPath:      filepath.Join(DefaultDir, "codesearch.db"),
		CacheDir:    filepath.Join(DefaultDir, "cache"),
		LockTimeout: DefaultLockTimeout,
		Cache: CacheConfig{
			L1MaxEntries:     co.L1MaxEntries,
			L1MaxBytes:       co.L1MaxBytes,
			L1TTL:            co.L1TTL,
			L2MaxBytes:       co.L2MaxBytes,
			L2TTL:            co.L2TTL,
			WriteConcurrency: co.WriteConcurrency,
			L1SweepInterval:  co.L1SweepInterval,
			L2SweepInterval:  co.L2SweepInterval,
		},
		Invalidate: InvalidationConfig{
			Strategy:    string(invalidation.Immediate),
			BatchWindow: invalidation.DefaultBatchWindow,
		},
		Analyzer: AnalyzerConfig{
			MinLength:        ao.MinLength,
			DisableSplitting: ao.DisableSplitting,
			IndexPunctuation: ao.IndexPunctuation,
		},
		Scoring: ScoringConfig{
			Temporal: "default",
			Weights:  map[string]float64{},
		},
		Indexer: *indexer.DefaultConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path and the
// environment, in that order. A missing file is not an error. An empty path
// uses $CODESEARCH_CONFIG, then ~/.codesearch/config.yaml.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		path = filepath.Join(DefaultDir, "config.yaml")
	}
	path, err := ExpandHome(path)
	if err != nil {
		return nil, err
	}

	if err := loadFromFile(cfg, path); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	loadFromEnv(cfg)

	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// loadFromEnv applies environment overrides
func loadFromEnv(cfg *Config) {
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}
	// An explicitly empty value disables the disk cache
	if v, ok := os.LookupEnv(EnvCacheDir); ok {
		cfg.CacheDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
}

func (c *Config) resolvePaths() error {
	var err error
	if c.DBPath != ":memory:" {
		if c.DBPath, err = ExpandHome(c.DBPath); err != nil {
			return err
		}
	}
	if c.CacheDir != "" {
		if c.CacheDir, err = ExpandHome(c.CacheDir); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks every section
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.DBPath == "" {
		add("db_path is required")
	}
	if c.LockTimeout <= 0 {
		add("lock_timeout must be positive, got %v", c.LockTimeout)
	}

	if c.Cache.L1MaxEntries <= 0 {
		add("cache.l1_max_entries must be positive, got %d", c.Cache.L1MaxEntries)
	}
	if c.Cache.L1MaxBytes < 0 || c.Cache.L2MaxBytes < 0 {
		add("cache byte limits must not be negative")
	}
	if c.Cache.L1TTL < 0 || c.Cache.L2TTL < 0 {
		add("cache TTLs must not be negative")
	}

	if _, err := invalidation.ParseStrategy(c.Invalidate.Strategy); err != nil {
		add("invalidation.strategy: %v", err)
	}
	if c.Invalidate.BatchWindow < 0 {
		add("invalidation.batch_window must not be negative")
	}

	if c.Analyzer.MinLength < 0 {
		add("analyzer.min_length must not be negative")
	}

	if _, err := scoring.TemporalPreset(c.Scoring.Temporal); err != nil {
		add("scoring.temporal: %v", err)
	}
	for name, w := range c.Scoring.Weights {
		if w < 0 {
			add("scoring weight %q must not be negative", name)
		}
	}

	if err := c.Indexer.Validate(); err != nil {
		add("indexer: %v", err)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		add("unknown log level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		add("unknown log format %q", c.Log.Format)
	}

	return errors.Join(errs...)
}

// CacheOptions converts the cache section for cache.New
func (c *Config) CacheOptions() cache.Options {
	return cache.Options{
		L1MaxEntries:     c.Cache.L1MaxEntries,
		L1MaxBytes:       c.Cache.L1MaxBytes,
		L1TTL:            c.Cache.L1TTL,
		Dir:              c.CacheDir,
		L2MaxBytes:       c.Cache.L2MaxBytes,
		L2TTL:            c.Cache.L2TTL,
		WriteConcurrency: c.Cache.WriteConcurrency,
		L1SweepInterval:  c.Cache.L1SweepInterval,
		L2SweepInterval:  c.Cache.L2SweepInterval,
	}
}

// InvalidationOptions converts the invalidation section. Validate must
// have accepted the strategy.
func (c *Config) InvalidationOptions() invalidation.Options {
	strategy, _ := invalidation.ParseStrategy(c.Invalidate.Strategy)
	return invalidation.Options{Strategy: strategy, BatchWindow: c.Invalidate.BatchWindow}
}

// AnalyzerOptions converts the analyzer section
func (c *Config) AnalyzerOptions() analysis.Options {
	return analysis.Options{
		MinLength:        c.Analyzer.MinLength,
		DisableSplitting: c.Analyzer.DisableSplitting,
		IndexPunctuation: c.Analyzer.IndexPunctuation,
	}
}

// TemporalOptions returns the configured recency preset
func (c *Config) TemporalOptions() (scoring.TemporalOptions, error) {
	return scoring.TemporalPreset(c.Scoring.Temporal)
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
