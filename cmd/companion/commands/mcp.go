// ABOUTME: MCP command starts Model Context Protocol server
// ABOUTME: Lets LLM agents drive the companion engine via stdio
package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harper/companion-engine/internal/mcp"
)

// NewMCPCmd creates the MCP command
func NewMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start MCP server for LLM agents

Runs the companion as an MCP (Model Context Protocol) server, so LLM
agents and voice front ends can send turns, manage sessions, and read
snapshots, flags and analytics over stdio.

Logs go to stderr; stdout carries the protocol.`,
		RunE: runMCP,
		Example: `  # Start MCP server (typically launched by an MCP client)
  companion mcp

  # Configure in an MCP client config file:
  # {
  #   "mcpServers": {
  #     "companion": {
  #       "command": "companion",
  #       "args": ["mcp"]
  #     }
  #   }
  # }`,
	}

	return cmd
}

// runMCP starts the MCP server
func runMCP(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return mcp.ServeStdio(ctx, a.engine, versionInfo.Version, a.logger)
}
