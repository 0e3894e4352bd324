package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/dshills/codesearch/internal/app"
	"github.com/dshills/codesearch/internal/storage"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var (
		transport string
		addr      string
		watch     []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Run the MCP server on stdio (default) or streamable HTTP.

Each --watch directory is indexed at startup and re-indexed as files change.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []fx.Option
			if len(watch) > 0 {
				roots := make([]string, 0, len(watch))
				for _, w := range watch {
					abs, err := filepath.Abs(w)
					if err != nil {
						return err
					}
					roots = append(roots, abs)
				}
				opts = append(opts, app.Watch(roots...))
			}

			return flags.run(cmd.Context(), func(ctx context.Context, c app.Components) error {
				c.Logger.Info("codesearch starting",
					"version", version,
					"build_mode", storage.BuildMode,
					"driver", storage.DriverName,
					"db", c.Config.DBPath)

				switch transport {
				case "stdio":
					return c.Server.Serve(ctx)
				case "http":
					return c.Server.ServeHTTP(ctx, addr)
				default:
					return fmt.Errorf("unsupported transport: %s (supported: stdio, http)", transport)
				}
			}, opts...)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "transport: stdio or http")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address for the http transport")
	cmd.Flags().StringSliceVar(&watch, "watch", nil, "directories to index and watch for changes")
	return cmd
}
