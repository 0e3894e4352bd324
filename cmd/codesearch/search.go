package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/codesearch/internal/analysis"
	"github.com/dshills/codesearch/internal/app"
	"github.com/dshills/codesearch/internal/searcher"
)

func newSearchCmd(flags *globalFlags) *cobra.Command {
	var (
		limit     int
		field     string
		matchAny  bool
		explain   bool
		noCache   bool
		noScoring bool
		factors   []string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "search <path> <query>...",
		Short: "Search an indexed workspace",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := searcher.SearchRequest{
				Workspace: args[0],
				Query:     strings.Join(args[1:], " "),
				Limit:     limit,
				Field:     analysis.FieldKind(field),
				MatchAny:  matchAny,
				UseCache:  !noCache,
				Explain:   explain,
			}
			if noScoring || len(factors) > 0 {
				req.Scoring = &searcher.ScoringOptions{Disabled: noScoring, Factors: factors}
			}

			return flags.run(cmd.Context(), func(ctx context.Context, c app.Components) error {
				resp, err := c.Searcher.Search(ctx, req)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(resp)
				}

				for _, r := range resp.Results {
					fmt.Fprintf(out, "%2d. %s  (score %.3f, base %.3f)\n", r.Rank, r.Path, r.RelevanceScore, r.BaseScore)
					if r.Snippet != "" {
						fmt.Fprintf(out, "    %s\n", r.Snippet)
					}
					if r.Explanation != nil {
						for _, f := range r.Explanation.Factors {
							kind := "avg"
							if f.Override {
								kind = "override"
							}
							fmt.Fprintf(out, "      %-26s %-8s score=%.3f weight=%.2f\n", f.Name, kind, f.Score, f.Weight)
						}
					}
				}
				fmt.Fprintf(out, "%d results (%d candidates) in %s, cache hit: %v\n",
					resp.TotalResults, resp.BaseHits, resp.Duration, resp.CacheHit)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", searcher.DefaultLimit, "maximum number of results")
	cmd.Flags().StringVar(&field, "field", string(analysis.FieldContent), "field to match: content, symbols or patterns")
	cmd.Flags().BoolVar(&matchAny, "any", false, "match any query term instead of all")
	cmd.Flags().BoolVar(&explain, "explain", false, "show the per-factor score breakdown")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the result cache")
	cmd.Flags().BoolVar(&noScoring, "no-scoring", false, "rank by text match only")
	cmd.Flags().StringSliceVar(&factors, "factors", nil, "only apply these scoring factors")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the response as JSON")
	return cmd
}

func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}
