package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"skolar/internal/api"
	"skolar/internal/app"
	"skolar/internal/config"
	"skolar/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// NewServeCommand runs the local HTTP API until interrupted.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the local booking API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app.App) error {
				if port > 0 {
					a.Config.API.HTTP.Port = port
				}
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				return serve(ctx, a)
			})
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP port (overrides api.http.port)")
	return cmd
}

func serve(ctx context.Context, a *app.App) error {
	logger := a.Logger.With().Str("component", "serve").Logger()
	cfg := a.Config

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API server. Check your config.")
	}

	startMetrics(ctx, cfg, &logger)
	if n, err := a.DB.CountPendingBookings(ctx); err == nil {
		metrics.SetPending(n)
	}

	httpServer := api.NewHTTPServer(cfg.API, a.Bookings, a.Logger)
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
