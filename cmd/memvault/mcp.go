package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alucardeht/memvault/internal/daemon"
	"github.com/alucardeht/memvault/internal/logger"
	"github.com/alucardeht/memvault/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the daemon's tools to an MCP client over stdio",
	Long: `Runs an MCP server on stdin/stdout that forwards tools/list and tools/call
to the running daemon. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.Init(logger.DefaultConfig())

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		client, err := daemon.Dial(ctx, socketPath)
		if err != nil {
			return err
		}
		defer client.Close()

		return mcp.NewServer(client, "memvault", Version).Serve(ctx, mcp.Stdio())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
