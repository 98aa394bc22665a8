package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/clientops/internal/api"
	"github.com/edvin/clientops/internal/config"
	"github.com/edvin/clientops/internal/metrics"
	"github.com/edvin/clientops/internal/registry"
)

// Serve runs the worker, the registry API and the optional metrics listener
// until ctx is cancelled.
func Serve(ctx context.Context, cfg *config.Config, tc temporalclient.Client, reg *registry.Registry, logger zerolog.Logger) error {
	w, err := New(cfg, tc, reg, logger)
	if err != nil {
		return err
	}

	if pool := reg.Pool(); pool != nil {
		metrics.RegisterPgxPoolMetrics(pool)
	}

	servers := []*http.Server{{
		Addr:              cfg.HTTPListenAddr,
		Handler:           api.NewServer(logger, reg, tc),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if cfg.MetricsAddr != "" {
		servers = append(servers, metrics.NewServer(cfg.MetricsAddr))
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info().Str("addr", srv.Addr).Msg("starting http server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http server %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	if err := RegisterSchedules(ctx, tc, cfg, logger); err != nil {
		return err
	}

	logger.Info().Str("taskQueue", cfg.TaskQueue).Msg("starting temporal worker")
	if err := w.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	defer w.Stop()

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	logger.Info().Msg("shutting down worker")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		srv.Shutdown(shutdownCtx)
	}
	return err
}
