package cli

import (
	"github.com/spf13/cobra"

	"github.com/edvin/clientops/internal/logging"
	"github.com/edvin/clientops/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the lifecycle worker in this process",
	Long:  "Runs activities, workflows, schedules and the HTTP API until interrupted.",
	Args:  cobra.NoArgs,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate("worker"); err != nil {
		return err
	}
	log := logging.NewLogger(cfg, "worker")

	ctx := cmd.Context()
	reg, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Close()

	tc, err := dialTemporal()
	if err != nil {
		return err
	}
	defer tc.Close()

	return worker.Serve(ctx, cfg, tc, reg, log)
}
