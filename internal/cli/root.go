// Package cli is the clientctl command tree.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/edvin/clientops/internal/config"
	"github.com/edvin/clientops/internal/logging"
	"github.com/edvin/clientops/internal/model"
)

var (
	cfg       *config.Config
	logger    zerolog.Logger
	assumeYes bool
)

var rootCmd = &cobra.Command{
	Use:   "clientctl",
	Short: "Deploy, rebuild and retire hosted clients",
	Long: `clientctl runs the lifecycle of hosted clients: provisioning,
configuration, identity wiring and the client registry.

Lifecycle flows run durably on the worker. Interrupting clientctl only
stops waiting; "clientctl resume <client>" re-attaches.`,
	PersistentPreRunE: loadConfig,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load()
	if err != nil {
		return err
	}
	cfg = c
	logger = logging.NewConsoleLogger(cfg, "clientctl")
	return nil
}

// Execute runs clientctl until it finishes or the process is interrupted.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Answer yes to every confirmation")
}

// clientArgs checks arity with n and then rejects a malformed client name
// in the first position before anything derives paths or selectors from it.
func clientArgs(n cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := n(cmd, args); err != nil {
			return err
		}
		if len(args) > 0 {
			return model.ValidateClientName(args[0])
		}
		return nil
	}
}
