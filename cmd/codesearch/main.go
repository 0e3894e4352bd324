package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/dshills/codesearch/internal/app"
	"github.com/dshills/codesearch/internal/config"
	"github.com/dshills/codesearch/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// globalFlags are shared by every command
type globalFlags struct {
	configPath string
	dbPath     string
	cacheDir   string
	logLevel   string
	logFormat  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "codesearch",
		Short:         "Code-aware full-text search with heuristic ranking and result caching",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default $CODESEARCH_CONFIG or ~/.codesearch/config.yaml)")
	pf.StringVar(&flags.dbPath, "db", "", "SQLite database path (overrides config)")
	pf.StringVar(&flags.cacheDir, "cache-dir", "", "disk cache directory (overrides config)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(
		newServeCmd(flags),
		newIndexCmd(flags),
		newSearchCmd(flags),
		newStatusCmd(flags),
		newCacheCmd(flags),
		newVersionCmd(),
	)
	return root
}

// loadConfig applies command-line overrides on top of config.Load
func (f *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.dbPath != "" {
		if cfg.DBPath, err = config.ExpandHome(f.dbPath); err != nil {
			return nil, err
		}
	}
	if f.cacheDir != "" {
		if cfg.CacheDir, err = config.ExpandHome(f.cacheDir); err != nil {
			return nil, err
		}
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	return cfg, cfg.Validate()
}

// run starts the application, calls fn with its components and stops it
func (f *globalFlags) run(ctx context.Context, fn func(context.Context, app.Components) error, opts ...fx.Option) error {
	cfg, err := f.loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.Setup(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	var c app.Components
	application := app.New(cfg, logger, append(opts, fx.Populate(&c))...)
	if err := application.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := application.Start(startCtx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := application.Stop(stopCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	return fn(ctx, c)
}
