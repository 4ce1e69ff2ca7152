package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/api"
)

func newServeCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the status API and optionally scrape on a schedule",
		Long: `Serves health, Prometheus metrics and read-only product/price endpoints.
With --interval, one scrape pass runs immediately and then once per interval
until the process is stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := context.WithCancel(cmd.Context())
			defer stop()
			logger := a.Logger

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", a.Config.Server.Port),
				Handler:           api.NewServer(a.Store, a.Orchestrator, logger).Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}
			serveErr := make(chan error, 1)
			go func() {
				logger.Info("http server started", zap.Int("port", a.Config.Server.Port))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server error", zap.Error(err))
					serveErr <- err
					stop()
				}
			}()

			scheduled := make(chan struct{})
			go func() {
				defer close(scheduled)
				if interval <= 0 {
					return
				}
				schedule(ctx, interval, func(ctx context.Context) {
					if _, err := a.Orchestrator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						logger.Error("scheduled scrape failed", zap.Error(err))
					}
				})
			}()

			<-ctx.Done()
			logger.Info("shutdown initiated")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown error", zap.Error(err))
			}
			<-scheduled
			logger.Info("shutdown complete")
			select {
			case err := <-serveErr:
				return fmt.Errorf("http server: %w", err)
			default:
				return nil
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "scrape every interval (0 disables scheduled scrapes)")
	return cmd
}

// schedule calls run immediately and then on every tick until ctx ends.
// Passes never overlap.
func schedule(ctx context.Context, interval time.Duration, run func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		run(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
