package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"resumelift/internal/cli"
	"resumelift/internal/config"
	"resumelift/internal/errors"
	"resumelift/internal/observability"
)

func main() {
	// Create a context that is canceled on interrupt signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logging
	logger, err := errors.New(cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	// Initialize observability
	obsConfig := observability.GetObservabilityConfig(cfg, cli.Version)
	obsManager, err := observability.NewObservabilityManager(obsConfig, cfg)
	if err != nil {
		logger.LogError(err, "Failed to initialize observability")
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obsManager.Shutdown(shutdownCtx); err != nil {
			logger.LogError(err, "Failed to shut down observability")
		}
	}()

	logger.Debug("Starting resumelift",
		"version", cli.Version,
		"log_level", cfg.App.LogLevel,
		"backend", cfg.Backend.BaseURL)

	// Execute command with cancellable context
	if err := cli.Execute(ctx, cfg, logger, obsManager.GetMetrics()); err != nil {
		logger.LogError(err, "Command failed")
		os.Exit(1)
	}
}
