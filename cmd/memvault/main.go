package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sourcegraph/jsonrpc2"
	"github.com/spf13/cobra"

	"github.com/alucardeht/memvault/internal/config"
	"github.com/alucardeht/memvault/internal/daemon"
)

// Version is set at build time via -ldflags "-X main.Version=X.Y.Z"
var Version = "0.0.0-dev"

var (
	socketPath string
	userID     string
	agentID    string
	timeout    time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "memvault",
	Short: "Client for the memvault record daemon",
	Long: `memvault talks to a running memvault-daemon over its unix socket.

Examples:
  memvault upload ./paper.pdf --note "baseline results"
  memvault match "thermal conductivity of graphene" --limit 5
  memvault download 3f2a... --dest ./out
  memvault delete 3f2a... --remove-files`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", defaultSocketPath(), "Daemon socket path")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "User id (daemon default when empty)")
	rootCmd.PersistentFlags().StringVar(&agentID, "agent", "", "Agent id (daemon default when empty)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Request timeout")

	rootCmd.AddCommand(
		listCmd,
		getCmd,
		matchCmd,
		searchCmd,
		infoCmd,
		downloadCmd,
		deleteCmd,
		uploadCmd,
		writingEventCmd,
		contextCmd,
		orphansCmd,
		healthCmd,
		toolsCmd,
	)
}

func defaultSocketPath() string {
	if p := os.Getenv("MEMVAULT_SOCKET"); p != "" {
		return p
	}
	return filepath.Join(config.Default().BaseDir, "daemon.sock")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var rpcErr *jsonrpc2.Error
		if errors.As(err, &rpcErr) {
			fmt.Fprintf(os.Stderr, "Error (%d): %s\n", rpcErr.Code, rpcErr.Message)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// withClient dials the daemon for a single command.
func withClient(fn func(ctx context.Context, c *daemon.Client) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := daemon.Dial(ctx, socketPath)
	if err != nil {
		return fmt.Errorf("%w (is memvault-daemon running?)", err)
	}
	defer client.Close()

	return fn(ctx, client)
}

// callAndPrint runs a tool with the owner flags merged into args and prints
// the result as indented JSON.
func callAndPrint(tool string, args map[string]interface{}) error {
	if userID != "" {
		args["user_id"] = userID
	}
	if agentID != "" {
		args["agent_id"] = agentID
	}

	return withClient(func(ctx context.Context, c *daemon.Client) error {
		var result json.RawMessage
		if err := c.CallTool(ctx, tool, args, &result); err != nil {
			return err
		}
		return printJSON(result)
	})
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
