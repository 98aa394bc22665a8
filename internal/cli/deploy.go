package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edvin/clientops/internal/lifecycle"
	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/provision"
	"github.com/edvin/clientops/internal/workflow"
)

var deployRole string

var deployCmd = &cobra.Command{
	Use:   "deploy <client>",
	Short: "Provision, configure and register a client",
	Long: `Deploy converges a client from its declaration to a running, registered
deployment. A missing SSH key, secrets bundle or provisioning declaration
is created first; secrets and declarations ask for confirmation.`,
	Args: clientArgs(cobra.ExactArgs(1)),
	RunE: runDeploy,
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild <client>",
	Short: "Destroy a client's server and deploy it again",
	Args:  clientArgs(cobra.ExactArgs(1)),
	RunE:  runRebuild,
}

var destroyCmd = &cobra.Command{
	Use:   "destroy <client>",
	Short: "Tear a client down and mark it destroyed",
	Long: `Destroy removes the client's server and volume, its SSH keys, secrets
file and declaration. The registry record is kept with status destroyed.`,
	Args: clientArgs(cobra.ExactArgs(1)),
	RunE: runDestroy,
}

var resumeCmd = &cobra.Command{
	Use:   "resume <client>",
	Short: "Re-attach to a client's running flow",
	Args:  clientArgs(cobra.ExactArgs(1)),
	RunE:  runResume,
}

func init() {
	deployCmd.Flags().StringVar(&deployRole, "role", "", "Client role: canary or production")
	rootCmd.AddCommand(deployCmd, rebuildCmd, destroyCmd, resumeCmd)
}

func deployParams(client string, role model.Role) workflow.DeployParams {
	return workflow.DeployParams{
		Client:     client,
		Role:       role,
		IDP:        cfg.IDP,
		BaseDomain: cfg.BaseDomain,
	}
}

func runDeploy(cmd *cobra.Command, args []string) error {
	client := args[0]
	var role model.Role
	if deployRole != "" {
		r, err := model.ParseRole(deployRole)
		if err != nil {
			return err
		}
		role = r
	}

	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	steps, err := s.local().Prepare(ctx, client)
	printSteps(out, steps)
	if err != nil {
		return err
	}

	res, err := s.launcher.Run(ctx, model.WorkflowID(client), lifecycle.DeployWorkflow, deployParams(client, role))
	printFlow(out, res)
	return err
}

func runRebuild(cmd *cobra.Command, args []string) error {
	client := args[0]
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	local := s.local()
	driver, err := provision.NewDriver(cfg.TofuDir(), cfg.TofuBin, cfg.HCloudToken, logger)
	if err != nil {
		return err
	}
	instances, err := driver.Instances(ctx, client)
	if err != nil {
		logger.Warn().Err(err).Str("client", client).Msg("could not read instances, asking for confirmation anyway")
	}
	if err != nil || len(instances) > 0 {
		if err := lifecycle.ConfirmDestroy(local.Prompt, client, "Rebuild"); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	steps, err := local.Prepare(ctx, client)
	printSteps(out, steps)
	if err != nil {
		return err
	}

	res, err := s.launcher.Run(ctx, model.WorkflowID(client), lifecycle.RebuildWorkflow, deployParams(client, ""))
	printFlow(out, res)
	return err
}

func runDestroy(cmd *cobra.Command, args []string) error {
	client := args[0]
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := lifecycle.ConfirmDestroy(s.local().Prompt, client, "Destroy"); err != nil {
		return err
	}

	res, err := s.launcher.Run(ctx, model.WorkflowID(client), lifecycle.DestroyWorkflow, workflow.DestroyParams{Client: client})
	printFlow(cmd.OutOrStdout(), res)
	return err
}

func runResume(cmd *cobra.Command, args []string) error {
	client := args[0]
	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.launcher.Resume(ctx, model.WorkflowID(client))
	printFlow(cmd.OutOrStdout(), res)
	if err != nil {
		return fmt.Errorf("resume %s: %w", client, err)
	}
	return nil
}
