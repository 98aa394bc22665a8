package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/style"
)

// OutdatedEntry is a client running an older version of App than the
// newest one seen in the fleet.
type OutdatedEntry struct {
	App     string `json:"app"`
	Client  string `json:"client"`
	Version string `json:"version"`
	Latest  string `json:"latest"`
}

// Outdated compares each app's version across clients. With app empty
// every app is checked. Versions that do not parse as semver are skipped.
func Outdated(clients []*model.Client, app string) []OutdatedEntry {
	type seen struct {
		client string
		raw    string
		v      *semver.Version
	}
	byApp := map[string][]seen{}
	for _, c := range clients {
		for a, raw := range c.Versions {
			if app != "" && a != app {
				continue
			}
			v, err := parseVersion(raw)
			if err != nil {
				continue
			}
			byApp[a] = append(byApp[a], seen{client: c.Name, raw: raw, v: v})
		}
	}

	var out []OutdatedEntry
	for a, list := range byApp {
		latest := list[0]
		for _, s := range list[1:] {
			if s.v.GreaterThan(latest.v) {
				latest = s
			}
		}
		for _, s := range list {
			if s.v.LessThan(latest.v) {
				out = append(out, OutdatedEntry{App: a, Client: s.client, Version: s.raw, Latest: latest.raw})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].App != out[j].App {
			return out[i].App < out[j].App
		}
		return out[i].Client < out[j].Client
	})
	return out
}

// parseVersion accepts image tags like v3.1, 2024.8.3 and 29.0.1-apache.
// A trailing image variant is dropped before comparison.
func parseVersion(tag string) (*semver.Version, error) {
	base, variant, ok := strings.Cut(tag, "-")
	if ok && !strings.ContainsAny(variant, "0123456789") {
		tag = base
	}
	return semver.NewVersion(tag)
}

func WriteOutdated(w io.Writer, entries []OutdatedEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, style.Healthy.Render("every client runs the newest version seen in the fleet"))
		return err
	}
	for _, e := range entries {
		_, err := fmt.Fprintf(w, "%s %s %s %s → %s\n",
			style.DotWarning,
			style.TableCell.Render(e.App),
			style.TableCell.Render(e.Client),
			e.Version,
			style.Bold.Render(e.Latest),
		)
		if err != nil {
			return err
		}
	}
	return nil
}
