// ABOUTME: Stdio MCP server lifecycle shared by the CLI and the standalone server binary
// ABOUTME: Registers the tools, serves until a signal or transport error, then drains in-flight calls
package mcp

import (
	"context"
	"fmt"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const serverName = "Companion Engine"

// NewServer creates an MCP server with every companion tool registered.
func NewServer(engine Companion, version string) (*mcpserver.MCPServer, *Handlers) {
	server := mcpserver.NewMCPServer(serverName, version)
	handlers := RegisterTools(server, engine)
	return server, handlers
}

// ServeStdio serves the tools on stdin/stdout until ctx is cancelled or the
// transport fails.
func ServeStdio(ctx context.Context, engine Companion, version string, logger *zap.Logger) error {
	server, handlers := NewServer(engine, version)

	logger.Info("MCP server starting on stdio", zap.String("version", version))

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- mcpserver.ServeStdio(server)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, waiting for in-flight calls")
		handlers.Shutdown()
		logger.Info("shutdown complete")
		return nil
	case err := <-serverErr:
		handlers.Shutdown()
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}
}
