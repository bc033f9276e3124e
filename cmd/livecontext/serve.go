package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/livecontext-mcp/internal/mcp"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Watch the project and serve the index over MCP on stdio (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(parent context.Context, opts *rootOptions) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	server, err := mcp.NewServer(a.searcher, a.coord, a.logger)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	// the watcher and sync must not outlive the coordinator loop
	loopCtx, stopLoop := context.WithCancel(context.WithoutCancel(ctx))
	defer stopLoop()

	g.Go(func() error {
		return a.coord.Run(loopCtx)
	})
	g.Go(func() error {
		defer stopLoop()
		return a.watcher.Run(ctx, a.coord)
	})
	g.Go(func() error {
		if err := a.coord.Sync(ctx); err != nil && ctx.Err() == nil {
			a.logger.Warn("initial sync failed", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		// stdin closing ends the session
		err := server.Serve(ctx)
		stop()
		if ctx.Err() != nil {
			return nil
		}
		return err
	})

	err = g.Wait()
	a.logger.Info("server stopped", "stats", a.coord.Stats())
	return err
}
