package app

import (
	"context"
	"log/slog"
	"sync"

	"go.uber.org/fx"

	"github.com/dshills/codesearch/internal/config"
	"github.com/dshills/codesearch/internal/indexer"
	"github.com/dshills/codesearch/internal/watcher"
)

// Watch indexes every root once the app has started and keeps each one
// current with a file watcher until the app stops
func Watch(roots ...string) fx.Option {
	return fx.Invoke(func(lc fx.Lifecycle, idx *indexer.Indexer, cfg *config.Config, logger *slog.Logger) {
		for _, root := range roots {
			registerWatcher(lc, root, idx, cfg, logger)
		}
	})
}

func registerWatcher(lc fx.Lifecycle, root string, idx *indexer.Indexer, cfg *config.Config, logger *slog.Logger) {
	var (
		w      *watcher.Watcher
		cancel context.CancelFunc
		wg     sync.WaitGroup
	)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			var err error
			w, err = watcher.New(root, idx, &cfg.Indexer, watcher.WithLogger(logger))
			if err != nil {
				return err
			}

			var runCtx context.Context
			runCtx, cancel = context.WithCancel(context.WithoutCancel(ctx))
			wg.Add(1)
			go func() {
				defer wg.Done()
				stats, err := idx.IndexWorkspace(runCtx, root, &cfg.Indexer)
				if err != nil {
					logger.Error("initial index failed", "root", root, "error", err)
				} else {
					logger.Info("workspace indexed",
						"root", root,
						"indexed", stats.FilesIndexed,
						"skipped", stats.FilesSkipped,
						"removed", stats.FilesRemoved,
						"duration", stats.Duration)
				}
				if err := w.Run(runCtx); err != nil {
					logger.Error("watcher stopped", "root", root, "error", err)
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			wg.Wait()
			if w != nil {
				return w.Close()
			}
			return nil
		},
	})
}
