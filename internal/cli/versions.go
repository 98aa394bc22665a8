package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/edvin/clientops/internal/lifecycle"
	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/workflow"
)

var (
	versionsAll      bool
	versionsParallel int
)

var versionsCmd = &cobra.Command{
	Use:   "versions",
	Short: "Running software versions",
}

var versionsCollectCmd = &cobra.Command{
	Use:   "collect [client]",
	Short: "Read running container versions into the registry",
	Long:  "Unreachable clients are reported as warnings and keep their recorded versions.",
	Args:  clientArgs(cobra.MaximumNArgs(1)),
	RunE:  runVersionsCollect,
}

func init() {
	versionsCollectCmd.Flags().BoolVar(&versionsAll, "all", false, "Collect from every deployed client")
	versionsCollectCmd.Flags().IntVar(&versionsParallel, "parallel", 4, "Clients collected at once with --all")
	versionsCmd.AddCommand(versionsCollectCmd)
	rootCmd.AddCommand(versionsCmd)
}

// collectTarget maps the command line onto a workflow id and params.
func collectTarget(args []string, all bool, parallel int) (string, workflow.CollectVersionsParams, error) {
	switch {
	case all && len(args) > 0:
		return "", workflow.CollectVersionsParams{}, errors.New("give a client or --all, not both")
	case all:
		return workflow.FleetVersionsID, workflow.CollectVersionsParams{Parallelism: parallel}, nil
	case len(args) == 1:
		return model.WorkflowID(args[0]), workflow.CollectVersionsParams{Client: args[0]}, nil
	}
	return "", workflow.CollectVersionsParams{}, errors.New("give a client or --all")
}

func runVersionsCollect(cmd *cobra.Command, args []string) error {
	id, params, err := collectTarget(args, versionsAll, versionsParallel)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.launcher.Run(ctx, id, lifecycle.VersionsWorkflow, params)
	printFlow(cmd.OutOrStdout(), res)
	return err
}
