package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/registry"
	"github.com/edvin/clientops/internal/style"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Maintain the client registry",
}

var registryExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the registry as YAML, to stdout by default",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRegistryExport,
}

var registryImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load clients from a registry YAML file",
	Long:  "Records are written as-is; statuses outside the known set are rejected.",
	Args:  cobra.ExactArgs(1),
	RunE:  runRegistryImport,
}

var registryBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload a registry snapshot to object storage",
	Args:  cobra.NoArgs,
	RunE:  runRegistryBackup,
}

var registrySetStatusCmd = &cobra.Command{
	Use:   "set-status <client> <status>",
	Short: "Move a client to another status",
	Args:  clientArgs(cobra.ExactArgs(2)),
	RunE:  runRegistrySetStatus,
}

func init() {
	registryCmd.AddCommand(registryExportCmd, registryImportCmd, registryBackupCmd, registrySetStatusCmd)
	rootCmd.AddCommand(registryCmd)
}

func runRegistryExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reg, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Close()

	var w io.Writer = cmd.OutOrStdout()
	if len(args) == 1 {
		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("create %s: %w", args[0], err)
		}
		defer f.Close()
		w = f
	}
	return registry.Export(ctx, reg, w)
}

func runRegistryImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer f.Close()

	ctx := cmd.Context()
	reg, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Close()

	names, err := registry.Import(ctx, reg, f)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), style.Healthy.Render(fmt.Sprintf("imported %d client(s)", len(names))))
	return nil
}

func runRegistryBackup(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate("backup"); err != nil {
		return err
	}

	ctx := cmd.Context()
	reg, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Close()

	s3 := registry.NewS3Client(cfg.BackupS3Endpoint, cfg.BackupS3Region, cfg.BackupS3AccessKey, cfg.BackupS3SecretKey)
	key, err := registry.NewBackup(s3, cfg.BackupS3Bucket, logger).Run(ctx, reg)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), style.Healthy.Render("uploaded s3://"+cfg.BackupS3Bucket+"/"+key))
	return nil
}

func runRegistrySetStatus(cmd *cobra.Command, args []string) error {
	status, err := model.ParseStatus(args[1])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	reg, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Close()

	if _, err := reg.Get(ctx, args[0]); err != nil {
		return fmt.Errorf("client %s: %w", args[0], err)
	}
	c, err := reg.Upsert(ctx, args[0], func(c *model.Client) error {
		c.Status = status
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), style.StatusDot(c.Status)+" "+style.Bold.Render(c.Name)+" is now "+string(c.Status))
	return nil
}
