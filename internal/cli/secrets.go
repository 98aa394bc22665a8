package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edvin/clientops/internal/style"
)

var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Read and edit a client's encrypted secrets",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("secrets")
	},
}

var secretsGetCmd = &cobra.Command{
	Use:   "get <client> [key]",
	Short: "Print decrypted secrets, or a single value",
	Args:  clientArgs(cobra.RangeArgs(1, 2)),
	RunE:  runSecretsGet,
}

var secretsSetCmd = &cobra.Command{
	Use:   "set <client> key=value...",
	Short: "Set one or more secret values",
	Args:  clientArgs(cobra.MinimumNArgs(2)),
	RunE:  runSecretsSet,
}

var secretsInitCmd = &cobra.Command{
	Use:   "init <client>",
	Short: "Create a client's secrets from the template",
	Args:  clientArgs(cobra.ExactArgs(1)),
	RunE:  runSecretsInit,
}

func init() {
	secretsCmd.AddCommand(secretsGetCmd, secretsSetCmd, secretsInitCmd)
	rootCmd.AddCommand(secretsCmd)
}

func runSecretsGet(cmd *cobra.Command, args []string) error {
	bundle, err := secretsAccessor().Read(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(args) == 2 {
		v, ok := bundle[args[1]]
		if !ok {
			return fmt.Errorf("%s has no secret %q", args[0], args[1])
		}
		fmt.Fprintln(out, v)
		return nil
	}
	for _, k := range bundle.Keys() {
		fmt.Fprintf(out, "%s %s\n", style.Key.Render(k), bundle[k])
	}
	return nil
}

// parseAssignments turns key=value arguments into a map.
func parseAssignments(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", a)
		}
		out[k] = v
	}
	return out, nil
}

func runSecretsSet(cmd *cobra.Command, args []string) error {
	updates, err := parseAssignments(args[1:])
	if err != nil {
		return err
	}
	if err := secretsAccessor().Set(cmd.Context(), args[0], updates); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), style.Healthy.Render(fmt.Sprintf("updated %d secret(s) for %s", len(updates), args[0])))
	return nil
}

func runSecretsInit(cmd *cobra.Command, args []string) error {
	generated, err := secretsAccessor().CreateFromTemplate(cmd.Context(), args[0], cfg.BaseDomain)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, style.Healthy.Render("created secrets for "+args[0]))
	for _, k := range generated {
		fmt.Fprintf(out, "  %s %s\n", style.DotDim, style.DimText.Render("generated "+k))
	}
	return nil
}
