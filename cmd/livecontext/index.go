package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Bring the persisted index up to date and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer a.close()

			start := time.Now()
			if err := syncOnce(cmd.Context(), a); err != nil {
				return err
			}

			st := a.coord.Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d files, %d chunks (%d pending) in %v\n",
				st.Files, st.Chunks, st.Pending, time.Since(start).Round(time.Millisecond))
			fmt.Fprintf(cmd.OutOrStdout(), "passes: %d, reindexed: %d, embedder calls: %d, cached: %v\n",
				st.Passes, st.Reindexed, st.EmbedCalls, a.coord.Cached())
			return nil
		},
	}
}

// syncOnce runs the coordinator until the project is fully indexed, then
// stops it, flushing the snapshot to storage
func syncOnce(ctx context.Context, a *app) error {
	loopCtx, stopLoop := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(loopCtx)

	g.Go(func() error {
		return a.coord.Run(gctx)
	})
	g.Go(func() error {
		defer stopLoop()
		if err := a.coord.Sync(gctx); err != nil {
			return err
		}
		return a.coord.WaitIdle(gctx)
	})
	return g.Wait()
}
