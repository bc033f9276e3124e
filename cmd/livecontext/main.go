package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/livecontext-mcp/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

type rootOptions struct {
	configPath string
	root       string
	dbPath     string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "livecontext",
		Short:         "Live semantic code index for JavaScript and TypeScript, served over MCP",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.SetVersionTemplate(fmt.Sprintf("livecontext %s\nBuild Time: %s\nBuild Mode: %s\nSQLite Driver: %s\n",
		version, buildTime, storage.BuildMode, storage.DriverName))

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", ".livecontext.yaml", "configuration file")
	flags.StringVar(&opts.root, "root", "", "project root to index (overrides config)")
	flags.StringVar(&opts.dbPath, "db", "", "index database path (overrides config)")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	cmd.AddCommand(
		newServeCmd(opts),
		newIndexCmd(opts),
		newSearchCmd(opts),
	)
	return cmd
}
