package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/clientops/internal/config"
	"github.com/edvin/clientops/internal/logging"
	"github.com/edvin/clientops/internal/registry"
	"github.com/edvin/clientops/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("worker"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg, "worker")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg, err := registry.Open(ctx, cfg.RegistryDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open registry")
	}
	defer reg.Close()

	opts, err := cfg.TemporalOptions()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure temporal TLS")
	}
	if opts.ConnectionOptions.TLS != nil {
		logger.Info().Msg("temporal mTLS enabled")
	}
	opts.Logger = logging.NewTemporalLogger(logger)
	tc, err := temporalclient.Dial(opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	if err := worker.Serve(ctx, cfg, tc, reg, logger); err != nil {
		logger.Fatal().Err(err).Msg("worker failed")
	}
}
