package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/livecontext-mcp/internal/searcher"
)

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		limit    int
		minSim   float64
		subtype  string
		domain   string
		pathGlob string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Update the index, then run one semantic search",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			if err := syncOnce(cmd.Context(), a); err != nil {
				return err
			}

			req := searcher.SearchRequest{
				Query:    strings.Join(args, " "),
				Limit:    limit,
				Subtype:  subtype,
				Domain:   domain,
				PathGlob: pathGlob,
			}
			if cmd.Flags().Changed("min-similarity") {
				req.MinSimilarity = &minSim
			}

			resp, err := a.searcher.Search(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(resp.Results) == 0 {
				fmt.Fprintln(out, "no results")
				return nil
			}
			for _, r := range resp.Results {
				c := r.Chunk
				fmt.Fprintf(out, "%2d. %.3f  %s:%d-%d  %s (%s)",
					r.Rank, r.Similarity, c.FilePath, c.StartLine, c.EndLine, c.Name, c.Subtype)
				if len(c.DomainTags) > 0 {
					fmt.Fprintf(out, "  [%s]", strings.Join(c.DomainTags, ", "))
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of results")
	cmd.Flags().Float64Var(&minSim, "min-similarity", 0, "minimum cosine similarity")
	cmd.Flags().StringVar(&subtype, "type", "", "only chunks of this subtype")
	cmd.Flags().StringVar(&domain, "domain", "", "only chunks with this domain tag")
	cmd.Flags().StringVar(&pathGlob, "path", "", "only files matching this glob")
	return cmd
}
