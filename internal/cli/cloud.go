package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/edvin/clientops/internal/activity"
	"github.com/edvin/clientops/internal/cloud"
	"github.com/edvin/clientops/internal/lifecycle"
	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/style"
)

var reconcileApply bool

var resizeVolumeCmd = &cobra.Command{
	Use:   "resize-volume <client> <GB>",
	Short: "Grow a client's data volume",
	Long:  "The volume can only grow. The declaration is updated to the new size and the filesystem is grown in place.",
	Args:  clientArgs(cobra.ExactArgs(2)),
	RunE:  runResizeVolume,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <client>",
	Short: "Compare the registry's server facts with the live server",
	Args:  clientArgs(cobra.ExactArgs(1)),
	RunE:  runReconcile,
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileApply, "apply", false, "Write the live facts into the registry")
	rootCmd.AddCommand(resizeVolumeCmd, reconcileCmd)
}

func parseSize(s string) (int, error) {
	gb, err := strconv.Atoi(s)
	if err != nil || gb <= 0 {
		return 0, fmt.Errorf("size must be a positive number of GB, got %q", s)
	}
	return gb, nil
}

func runResizeVolume(cmd *cobra.Command, args []string) error {
	client := args[0]
	gb, err := parseSize(args[1])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := s.launcher.Run(ctx, model.WorkflowID(client), lifecycle.ResizeWorkflow,
		activity.ResizeVolumeParams{Client: client, SizeGB: gb})
	printFlow(cmd.OutOrStdout(), res)
	return err
}

func runReconcile(cmd *cobra.Command, args []string) error {
	client := args[0]
	if err := cfg.Validate("cloud"); err != nil {
		return err
	}

	ctx := cmd.Context()
	reg, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Close()

	rec, err := reg.Get(ctx, client)
	if err != nil {
		return fmt.Errorf("client %s: %w", client, err)
	}
	live, found, err := cloud.New(cfg.HCloudToken, logger).ServerFacts(ctx, client)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !found {
		fmt.Fprintln(out, style.Warning.Render("no server labelled client="+client))
		return nil
	}
	diffs := cloud.Drift(rec.Server, live)
	if len(diffs) == 0 {
		fmt.Fprintln(out, style.Healthy.Render(client+" matches the live server"))
		return nil
	}
	for _, d := range diffs {
		fmt.Fprintf(out, "  %s %s\n", style.DotWarning, d)
	}
	if !reconcileApply {
		fmt.Fprintln(out, style.DimText.Render("re-run with --apply to record the live facts"))
		return nil
	}

	if _, err := reg.Upsert(ctx, client, func(c *model.Client) error {
		c.Server = live
		return nil
	}); err != nil {
		return err
	}
	fmt.Fprintln(out, style.Healthy.Render("registry updated"))
	return nil
}
