package cli

import (
	"context"
	"fmt"

	"resumelift/internal/api"
	"resumelift/internal/config"
	"resumelift/internal/errors"
	"resumelift/internal/observability"
	"resumelift/internal/session"

	"github.com/spf13/cobra"
)

// Define custom private types for context keys.
type configKeyType struct{}
type loggerKeyType struct{}
type metricsKeyType struct{}

// Use variables of these types as the keys.
var configKey = configKeyType{}
var loggerKey = loggerKeyType{}
var metricsKey = metricsKeyType{}

var rootCmd = &cobra.Command{
	Use:   "resumelift",
	Short: "A CLI client for the resume optimization backend",
	Long: `Resumelift talks to the resume optimization backend: create an
account, store your AI provider key, run optimizations against job
descriptions, and browse past runs. Read endpoints are cached locally
so repeated invocations stay fast.`,
}

func Execute(ctx context.Context, cfg *config.Config, logger *errors.Logger, metrics *observability.Metrics) error {
	// Attach the config and logger to the context, making them available to all subcommands
	ctx = context.WithValue(ctx, configKey, cfg)
	ctx = context.WithValue(ctx, loggerKey, logger)
	ctx = context.WithValue(ctx, metricsKey, metrics)
	rootCmd.SetContext(ctx)
	return rootCmd.Execute()
}

// getConfigFromContext is a helper function to get config from context
func getConfigFromContext(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey).(*config.Config); ok {
		return cfg
	}
	panic("config not found in context") // Should not happen if properly initialized
}

// getLoggerFromContext is a helper function to get logger from context
func getLoggerFromContext(ctx context.Context) *errors.Logger {
	if logger, ok := ctx.Value(loggerKey).(*errors.Logger); ok {
		return logger
	}
	panic("logger not found in context") // Should not happen if properly initialized
}

func getMetricsFromContext(ctx context.Context) *observability.Metrics {
	metrics, _ := ctx.Value(metricsKey).(*observability.Metrics)
	return metrics // nil is fine, metrics methods are nil-safe
}

// newClient builds a backend client wired to the persistent session.
func newClient(cmd *cobra.Command) (*api.Client, error) {
	ctx := cmd.Context()
	cfg := getConfigFromContext(ctx)
	logger := getLoggerFromContext(ctx)

	path := cfg.Session.TokenFile
	if path == "" {
		var err error
		path, err = session.DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	sess, err := session.NewStore(path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	// Seed a pre-provisioned token from Vault when no session exists.
	if !sess.IsAuthenticated() && cfg.Credentials.AccessToken != "" {
		if err := sess.SetToken(cfg.Credentials.AccessToken); err != nil {
			return nil, err
		}
		logger.Debug("Session seeded from Vault access token")
	}

	if cfg.Session.Watch {
		if err := sess.Watch(); err != nil {
			logger.Warn("Session token watcher unavailable", "error", err)
		}
	}

	return api.New(cfg, sess, logger,
		api.WithMetrics(getMetricsFromContext(ctx))), nil
}

func init() {
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(apikeyCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(versionCmd)
}
