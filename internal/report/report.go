// Package report renders registry projections: listings in several
// formats, fleet-wide outdated versions and stale maintenance.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/style"
)

type Format string

const (
	FormatTable   Format = "table"
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
	FormatSummary Format = "summary"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatJSON, FormatCSV, FormatSummary:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (want table, json, csv or summary)", s)
}

var listColumns = []string{"name", "status", "role", "server_type", "location", "ip", "deployed", "apps"}

func row(c *model.Client) []string {
	return []string{
		c.Name,
		string(c.Status),
		string(c.Role),
		c.Server.Type,
		c.Server.Location,
		c.Server.IP,
		date(c.DeployedDate),
		strings.Join(c.Apps, ","),
	}
}

// Write renders clients in the given format.
func Write(w io.Writer, f Format, clients []*model.Client) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if clients == nil {
			clients = []*model.Client{}
		}
		return enc.Encode(clients)
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(listColumns); err != nil {
			return err
		}
		for _, c := range clients {
			if err := cw.Write(row(c)); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	case FormatSummary:
		return writeSummary(w, Summarize(clients))
	case FormatTable, "":
		return writeTable(w, clients)
	}
	return fmt.Errorf("unknown format %q", f)
}

func writeTable(w io.Writer, clients []*model.Client) error {
	if len(clients) == 0 {
		_, err := fmt.Fprintln(w, style.DimText.Render("no clients"))
		return err
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers(upper(listColumns)...).
		StyleFunc(func(r, _ int) lipgloss.Style {
			if r == table.HeaderRow {
				return style.TableHeader
			}
			return style.TableCell
		})
	for _, c := range clients {
		cells := row(c)
		cells[1] = style.StatusDot(c.Status) + " " + cells[1]
		t.Row(cells...)
	}
	_, err := fmt.Fprintln(w, t.String())
	return err
}

func upper(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = strings.ToUpper(c)
	}
	return out
}

// Counts is the summary projection.
type Counts struct {
	Total    int                  `json:"total"`
	ByStatus map[model.Status]int `json:"by_status"`
	ByRole   map[model.Role]int   `json:"by_role"`
}

func Summarize(clients []*model.Client) Counts {
	c := Counts{ByStatus: map[model.Status]int{}, ByRole: map[model.Role]int{}}
	for _, cl := range clients {
		c.Total++
		c.ByStatus[cl.Status]++
		c.ByRole[cl.Role]++
	}
	return c
}

func writeSummary(w io.Writer, c Counts) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d\n", style.Key.Render("total"), c.Total)
	for _, s := range model.AllStatuses {
		fmt.Fprintf(&b, "%s %d\n", style.Key.Render(string(s)), c.ByStatus[s])
	}
	for _, r := range []model.Role{model.RoleCanary, model.RoleProduction} {
		fmt.Fprintf(&b, "%s %d\n", style.Key.Render("role "+string(r)), c.ByRole[r])
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// StaleEntry is a client whose last full update is too old or missing.
type StaleEntry struct {
	Client         string     `json:"client"`
	LastFullUpdate *time.Time `json:"last_full_update,omitempty"`
	AgeDays        int        `json:"age_days"`
}

// Stale returns clients not fully updated within thresholdDays of now,
// oldest first. Clients never updated sort first with AgeDays -1.
func Stale(clients []*model.Client, thresholdDays int, now time.Time) []StaleEntry {
	var out []StaleEntry
	for _, c := range clients {
		last := c.Maintenance.LastFullUpdate
		if last == nil {
			out = append(out, StaleEntry{Client: c.Name, AgeDays: -1})
			continue
		}
		age := int(now.Sub(*last).Hours() / 24)
		if age > thresholdDays {
			out = append(out, StaleEntry{Client: c.Name, LastFullUpdate: last, AgeDays: age})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := out[i].AgeDays, out[j].AgeDays
		if ai == -1 || aj == -1 {
			return ai == -1 && aj != -1
		}
		return ai > aj
	})
	return out
}

func WriteStale(w io.Writer, entries []StaleEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, style.Healthy.Render("all clients are within the maintenance window"))
		return err
	}
	for _, e := range entries {
		age := "never updated"
		if e.AgeDays >= 0 {
			age = fmt.Sprintf("%d days (last %s)", e.AgeDays, date(e.LastFullUpdate))
		}
		if _, err := fmt.Fprintf(w, "%s %s %s\n", style.DotWarning, style.TableCell.Render(e.Client), age); err != nil {
			return err
		}
	}
	return nil
}

func date(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}
