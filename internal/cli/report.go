package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/registry"
	"github.com/edvin/clientops/internal/report"
)

var (
	outdatedApp    string
	staleThreshold int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Fleet reports from the registry",
}

var reportOutdatedCmd = &cobra.Command{
	Use:   "outdated",
	Short: "Clients running older versions than the newest in the fleet",
	Args:  cobra.NoArgs,
	RunE:  runReportOutdated,
}

var reportStaleCmd = &cobra.Command{
	Use:   "stale",
	Short: "Clients without a recent full update",
	Args:  cobra.NoArgs,
	RunE:  runReportStale,
}

func init() {
	reportOutdatedCmd.Flags().StringVar(&outdatedApp, "app", "", "Only check this app")
	reportStaleCmd.Flags().IntVar(&staleThreshold, "threshold", 90, "Days since the last full update")
	reportCmd.AddCommand(reportOutdatedCmd, reportStaleCmd)
	rootCmd.AddCommand(reportCmd)
}

func runReportOutdated(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reg, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Close()

	clients, err := reg.List(ctx, registry.Filter{})
	if err != nil {
		return fmt.Errorf("list clients: %w", err)
	}
	return report.WriteOutdated(cmd.OutOrStdout(), report.Outdated(clients, outdatedApp))
}

func runReportStale(cmd *cobra.Command, args []string) error {
	if staleThreshold < 0 {
		return fmt.Errorf("--threshold must not be negative")
	}

	ctx := cmd.Context()
	reg, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Close()

	clients, err := reg.List(ctx, registry.Filter{Status: model.StatusDeployed})
	if err != nil {
		return fmt.Errorf("list clients: %w", err)
	}
	return report.WriteStale(cmd.OutOrStdout(), report.Stale(clients, staleThreshold, time.Now()))
}
