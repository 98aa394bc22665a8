package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/registry"
	"github.com/edvin/clientops/internal/report"
	"github.com/edvin/clientops/internal/style"
)

var (
	listStatus string
	listRole   string
	listFormat string
)

var statusCmd = &cobra.Command{
	Use:   "status <client>",
	Short: "Show a client's registry record",
	Args:  clientArgs(cobra.ExactArgs(1)),
	RunE:  runStatus,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered clients",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listStatus, "status", "", "Only clients with this status")
	listCmd.Flags().StringVar(&listRole, "role", "", "Only clients with this role")
	listCmd.Flags().StringVar(&listFormat, "format", "table", "Output format: table, json, csv or summary")
	rootCmd.AddCommand(statusCmd, listCmd)
}

func parseFilter(status, role string) (registry.Filter, error) {
	var f registry.Filter
	if status != "" {
		s, err := model.ParseStatus(status)
		if err != nil {
			return f, err
		}
		f.Status = s
	}
	if role != "" {
		r, err := model.ParseRole(role)
		if err != nil {
			return f, err
		}
		f.Role = r
	}
	return f, nil
}

func runList(cmd *cobra.Command, args []string) error {
	f, err := parseFilter(listStatus, listRole)
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(listFormat)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	reg, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Close()

	clients, err := reg.List(ctx, f)
	if err != nil {
		return fmt.Errorf("list clients: %w", err)
	}
	return report.Write(cmd.OutOrStdout(), format, clients)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	reg, err := openRegistry(ctx)
	if err != nil {
		return err
	}
	defer reg.Close()

	c, err := reg.Get(ctx, args[0])
	if err != nil {
		return fmt.Errorf("client %s: %w", args[0], err)
	}
	printClient(cmd.OutOrStdout(), c)
	return nil
}

func printClient(w io.Writer, c *model.Client) {
	field := func(k, v string) {
		if v == "" {
			v = style.DimText.Render("-")
		}
		fmt.Fprintf(w, "  %s %s\n", style.Key.Render(k), style.Val.Render(v))
	}

	fmt.Fprintln(w, style.StatusDot(c.Status)+" "+style.Bold.Render(c.Name)+"  "+style.RoleBadge.Render(string(c.Role)))
	fmt.Fprintln(w)
	field("status", string(c.Status))
	field("deployed", day(c.DeployedDate))
	field("destroyed", day(c.DestroyedDate))
	field("server", strings.TrimSpace(c.Server.Type+" "+c.Server.Location))
	field("ip", c.Server.IP)
	if c.Server.ID != 0 {
		field("server id", strconv.FormatInt(c.Server.ID, 10))
	}
	field("os", c.OS)
	field("apps", strings.Join(c.Apps, ", "))
	field("last update", day(c.Maintenance.LastFullUpdate))
	field("revision", strconv.FormatInt(c.Revision, 10))

	printMap(w, "versions", c.Versions)
	printMap(w, "urls", c.URLs)
	if c.Notes != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, style.DimText.Render(c.Notes))
	}
}

func printMap(w io.Writer, title string, m map[string]string) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "  "+style.Bold.Render(title))
	for _, k := range keys {
		fmt.Fprintf(w, "    %s %s\n", style.Key.Render(k), style.Val.Render(m[k]))
	}
}

func day(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
