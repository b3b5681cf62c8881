// ABOUTME: Builds the engine and its dependencies for a single CLI invocation
// ABOUTME: Loads .env and config, then opens storage, providers and the logger
package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/harper/companion-engine/internal/companion"
	"github.com/harper/companion-engine/internal/config"
	"github.com/harper/companion-engine/internal/llm"
	"github.com/harper/companion-engine/internal/logging"
	"github.com/harper/companion-engine/internal/storage/sqlite"
)

// app holds everything a command needs. Close releases storage and flushes
// the logger.
type app struct {
	cfg    *config.Config
	store  *sqlite.Storage
	engine *companion.Engine
	logger *zap.Logger
}

func loadConfig() (*config.Config, error) {
	// Load .env for API keys
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	switch {
	case verbose:
		cfg.LogLevel = "debug"
	case quiet:
		cfg.LogLevel = "error"
	}
	return cfg, nil
}

func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	providers, err := llm.NewProviders(cfg)
	if err != nil {
		if !quiet {
			fmt.Fprintf(os.Stderr, "Warning: %v; running without language or speech providers\n", err)
		}
		providers = nil
	}

	store, err := sqlite.NewStorageWithPath(cfg.DBPath)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("initializing storage: %w", err)
	}

	engine, err := companion.New(cfg, store, providers, companion.WithLogger(logger))
	if err != nil {
		_ = store.Close()
		_ = logger.Sync()
		return nil, fmt.Errorf("initializing engine: %w", err)
	}

	logger.Debug("engine ready",
		zap.String("db_path", cfg.DBPath),
		zap.String("provider", cfg.LLMProvider))

	return &app{cfg: cfg, store: store, engine: engine, logger: logger}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing storage", zap.Error(err))
	}
	_ = a.logger.Sync()
}
