// ABOUTME: Main entry point for the companion MCP server with stdio transport
// ABOUTME: Initializes config, storage, providers and the engine, then serves MCP tools
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/harper/companion-engine/internal/companion"
	"github.com/harper/companion-engine/internal/config"
	"github.com/harper/companion-engine/internal/llm"
	"github.com/harper/companion-engine/internal/logging"
	"github.com/harper/companion-engine/internal/mcp"
	"github.com/harper/companion-engine/internal/storage/sqlite"
)

// Version information (set by goreleaser)
var version = "dev"

func main() {
	// Load .env file if it exists (for API keys)
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found (this is okay for production): %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	providers, err := llm.NewProviders(cfg)
	if err != nil {
		logger.Warn("running without language or speech providers", zap.Error(err))
		providers = nil
	}

	store, err := sqlite.NewStorageWithPath(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	engine, err := companion.New(cfg, store, providers, companion.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return mcp.ServeStdio(ctx, engine, version, logger)
}
