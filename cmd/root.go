// Package cmd defines and implements the CLI commands for the pricewatch executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/app"
	"github.com/JakeFAU/pricewatch/internal/config"
	"github.com/JakeFAU/pricewatch/internal/logging"
)

// configPathEnv names the config file when --config is not given.
const configPathEnv = "PRICEWATCH_CONFIG_PATH"

type appKeyType struct{}

// newApp is the application factory. It's a variable so tests can inject
// fakes for the network-facing collaborators.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command. With no subcommand it
// runs a single scrape pass.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "pricewatch",
		Short: "Tracks storefront prices and notifies subscribers of changes.",
		Long: `pricewatch scrapes the current price of every tracked product, records it,
classifies the change against the product's history, and posts a notification
to every webhook subscribed to that product.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,

		// Storage that cannot be opened aborts the command before it runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			path := cfgFile
			if path == "" {
				path = os.Getenv(configPathEnv)
			}
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			if path == "" {
				logger.Warn("config path not set, using default config", zap.String("env", configPathEnv))
			}

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKeyType{}, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKeyType{}).(*app.App); ok && appInstance != nil {
				appInstance.Close()
			}
		},

		RunE: runScrapeCommand,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $"+configPathEnv+")")

	cmd.AddCommand(
		newScrapeCmd(),
		newImportCmd(),
		newSubscribeCmd(),
		newHistoryCmd(),
		newServeCmd(),
	)
	return cmd
}

// Execute is the main entry point.
func Execute() {
	bootstrap, err := logging.New(false)
	if err == nil {
		zap.ReplaceGlobals(bootstrap)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		zap.L().Fatal("command execution failed", zap.Error(err))
	}
	_ = zap.L().Sync()
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKeyType{}).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
