package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Scrape every tracked product once",
		Long: `Fetches the current price of every tracked product in registration order,
records and classifies it, and notifies subscribers. A failure on one product
is logged and the pass continues with the next.`,
		Args: cobra.NoArgs,
		RunE: runScrapeCommand,
	}
}

func runScrapeCommand(cmd *cobra.Command, _ []string) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	summary, err := a.Orchestrator.Run(cmd.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) {
			a.Logger.Info("scrape interrupted", zap.Int("processed", summary.Products))
			return nil
		}
		return fmt.Errorf("scrape: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "scraped %d products: %d succeeded, %d failed, %d notifications delivered\n",
		summary.Products, summary.Succeeded, summary.Failed, summary.Delivered)
	return nil
}
