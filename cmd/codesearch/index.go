package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/codesearch/internal/app"
)

func newIndexCmd(flags *globalFlags) *cobra.Command {
	var (
		force     bool
		noTests   bool
		vendor    bool
		excludes  []string
		removeAll bool
	)

	cmd := &cobra.Command{
		Use:   "index <path>",
		Short: "Index a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.run(cmd.Context(), func(ctx context.Context, c app.Components) error {
				out := cmd.OutOrStdout()

				if removeAll {
					n, err := c.Indexer.RemoveWorkspace(ctx, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "removed %d documents\n", n)
					return nil
				}

				config := c.Config.Indexer
				config.Force = force
				if noTests {
					config.IncludeTests = false
				}
				if vendor {
					config.IncludeVendor = true
				}
				config.ExcludePatterns = append(config.ExcludePatterns, excludes...)
				if err := config.Validate(); err != nil {
					return err
				}

				stats, err := c.Indexer.IndexWorkspace(ctx, args[0], &config)
				if err != nil {
					return err
				}

				fmt.Fprintf(out, "indexed %d, skipped %d, removed %d, failed %d in %s\n",
					stats.FilesIndexed, stats.FilesSkipped, stats.FilesRemoved, stats.FilesFailed,
					stats.Duration.Round(time.Millisecond))
				for _, msg := range stats.ErrorMessages {
					fmt.Fprintln(cmd.ErrOrStderr(), "  ", msg)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "re-index files even when unchanged")
	cmd.Flags().BoolVar(&noTests, "no-tests", false, "skip test files")
	cmd.Flags().BoolVar(&vendor, "vendor", false, "include vendor/ and node_modules/")
	cmd.Flags().StringSliceVar(&excludes, "exclude", nil, "glob patterns of workspace-relative paths to skip")
	cmd.Flags().BoolVar(&removeAll, "remove", false, "remove the workspace from the index instead")
	return cmd
}

func newStatusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <path>",
		Short: "Show index statistics for a workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flags.run(cmd.Context(), func(ctx context.Context, c app.Components) error {
				root, err := absPath(args[0])
				if err != nil {
					return err
				}
				st, err := c.Storage.Stats(ctx, root)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if st.Documents == 0 {
					fmt.Fprintf(out, "%s is not indexed\n", root)
					return nil
				}
				fmt.Fprintf(out, "workspace:    %s\n", st.Workspace)
				fmt.Fprintf(out, "documents:    %d\n", st.Documents)
				fmt.Fprintf(out, "source bytes: %d\n", st.TotalBytes)
				fmt.Fprintf(out, "index size:   %.2f MB\n", st.IndexSizeMB)
				fmt.Fprintf(out, "last indexed: %s\n", st.LastIndexedAt.Format("2006-01-02 15:04:05"))
				fmt.Fprintf(out, "fts built:    %v\n", st.Health.FTSIndexBuilt)
				return nil
			})
		},
	}
}
