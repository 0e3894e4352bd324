package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dshills/codesearch/internal/app"
	"github.com/dshills/codesearch/internal/invalidation"
	"github.com/dshills/codesearch/internal/searcher"
)

func newCacheCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the result cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print cache statistics as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.run(cmd.Context(), func(ctx context.Context, c app.Components) error {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(c.Searcher.Stats())
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear [path]",
		Short: "Clear the whole cache, or only the entries of one workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.run(cmd.Context(), func(ctx context.Context, c app.Components) error {
				if len(args) == 0 {
					c.Searcher.ClearCache()
					fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
					return nil
				}
				root, err := absPath(args[0])
				if err != nil {
					return err
				}
				return c.Searcher.Invalidate(ctx, invalidation.Event{Kind: invalidation.WorkspaceChanged, Path: root})
			})
		},
	})

	var limit int
	warm := &cobra.Command{
		Use:   "warm <path> <query>...",
		Short: "Pre-compute and cache results for the given queries",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.run(cmd.Context(), func(ctx context.Context, c app.Components) error {
				n, err := c.Searcher.WarmUp(ctx, args[0], args[1:], limit)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "warmed %d of %d queries\n", n, len(args)-1)
				return nil
			})
		},
	}
	warm.Flags().IntVarP(&limit, "limit", "n", searcher.DefaultLimit, "result limit for each query")
	cmd.AddCommand(warm)

	return cmd
}
