// Package app wires the codesearch components with fx. Every long-lived
// resource registers its own lifecycle hooks so fx starts and stops them in
// dependency order.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/dshills/codesearch/internal/analysis"
	"github.com/dshills/codesearch/internal/cache"
	"github.com/dshills/codesearch/internal/config"
	"github.com/dshills/codesearch/internal/indexer"
	"github.com/dshills/codesearch/internal/invalidation"
	"github.com/dshills/codesearch/internal/lock"
	"github.com/dshills/codesearch/internal/mcp"
	"github.com/dshills/codesearch/internal/scoring"
	"github.com/dshills/codesearch/internal/searcher"
	"github.com/dshills/codesearch/internal/storage"
)

// Module provides every application component. A *config.Config and a
// *slog.Logger must be supplied.
var Module = fx.Options(
	StorageModule,
	CacheModule,
	SearchModule,
	MCPModule,
)

// StorageModule provides the SQLite engine
var StorageModule = fx.Module("storage",
	fx.Provide(NewStorage),
)

// CacheModule provides the result cache and its invalidation service
var CacheModule = fx.Module("cache",
	fx.Provide(
		NewCache,
		NewInvalidation,
	),
)

// SearchModule provides the analysis, scoring, indexing and search pipeline
var SearchModule = fx.Module("search",
	fx.Provide(
		NewAnalyzer,
		NewScorer,
		NewIndexLock,
		NewIndexer,
		NewSearcher,
	),
)

// MCPModule provides the MCP server
var MCPModule = fx.Module("mcp",
	fx.Provide(NewMCPServer),
)

// Components holds the main components for command access
type Components struct {
	fx.In

	Config   *config.Config
	Logger   *slog.Logger
	Storage  storage.Engine
	Indexer  *indexer.Indexer
	Searcher *searcher.Searcher
	Server   *mcp.Server
}

// New creates an fx app for cfg. Extra options are appended, typically an
// fx.Populate or Watch.
func New(cfg *config.Config, logger *slog.Logger, opts ...fx.Option) *fx.App {
	base := []fx.Option{
		fx.Supply(cfg, logger),
		fx.WithLogger(func() fxevent.Logger {
			if logger.Enabled(context.Background(), slog.LevelDebug) {
				return &fxevent.SlogLogger{Logger: logger}
			}
			return fxevent.NopLogger
		}),
		Module,
	}
	return fx.New(append(base, opts...)...)
}

// NewStorage opens the SQLite engine and closes it on stop
func NewStorage(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (storage.Engine, error) {
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteEngine(context.Background(), cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	logger.Debug("storage opened", "path", cfg.DBPath, "driver", storage.DriverName, "build", storage.BuildMode)

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

// NewCache creates the two-level cache, starts its sweeper and stops it on shutdown
func NewCache(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (*cache.MultiLevel, error) {
	c, err := cache.New(cfg.CacheOptions(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// The start context expires once startup completes
			c.Sweeper().Start(context.WithoutCancel(ctx))
			return nil
		},
		OnStop: func(context.Context) error {
			return c.Close()
		},
	})
	return c, nil
}

// NewInvalidation creates the invalidation service and attaches it to the
// cache as a key source for pattern removal
func NewInvalidation(lc fx.Lifecycle, c *cache.MultiLevel, cfg *config.Config, logger *slog.Logger) *invalidation.Service {
	inv := invalidation.New(c, cfg.InvalidationOptions(), logger)
	c.SetKeySource(inv)

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return inv.Close()
		},
	})
	return inv
}

// NewAnalyzer creates the code analyzer
func NewAnalyzer(cfg *config.Config) *analysis.Analyzer {
	return analysis.New(cfg.AnalyzerOptions())
}

// NewScorer creates the composite scorer with the default factors
func NewScorer(cfg *config.Config, logger *slog.Logger) (*scoring.Composite, error) {
	temporal, err := cfg.TemporalOptions()
	if err != nil {
		return nil, err
	}
	return scoring.NewComposite(scoring.NewDefaultRegistry(cfg.Scoring.Weights, temporal), logger), nil
}

// NewIndexLock creates the lock shared by indexing and cache warm-up
func NewIndexLock(lc fx.Lifecycle) *lock.Lock {
	guard := lock.New("index")
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return guard.Close()
		},
	})
	return guard
}

// NewIndexer creates the indexer with cache invalidation attached
func NewIndexer(store storage.Engine, analyzer *analysis.Analyzer, guard *lock.Lock,
	inv *invalidation.Service, cfg *config.Config, logger *slog.Logger) *indexer.Indexer {
	return indexer.New(store, analyzer, guard,
		indexer.WithInvalidator(inv),
		indexer.WithLogger(logger),
		indexer.WithLockTimeout(cfg.LockTimeout))
}

// NewSearcher creates the cached searcher
func NewSearcher(store storage.Engine, analyzer *analysis.Analyzer, scorer *scoring.Composite,
	c *cache.MultiLevel, inv *invalidation.Service, guard *lock.Lock,
	cfg *config.Config, logger *slog.Logger) *searcher.Searcher {
	return searcher.New(store, analyzer, scorer,
		searcher.WithCache(c, inv),
		searcher.WithLock(guard, cfg.LockTimeout),
		searcher.WithLogger(logger))
}

// NewMCPServer creates the MCP server
func NewMCPServer(store storage.Engine, idx *indexer.Indexer, srch *searcher.Searcher,
	cfg *config.Config, logger *slog.Logger) *mcp.Server {
	return mcp.NewServer(store, idx, srch, &cfg.Indexer, logger)
}
