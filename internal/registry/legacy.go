package registry

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/edvin/clientops/internal/model"
)

const legacyDate = "2006-01-02"

// legacyFile is the clients/registry.yml layout.
type legacyFile struct {
	Clients map[string]legacyClient `yaml:"clients"`
}

type legacyClient struct {
	Status        string            `yaml:"status"`
	Role          string            `yaml:"role"`
	DeployedDate  string            `yaml:"deployed_date,omitempty"`
	DestroyedDate string            `yaml:"destroyed_date,omitempty"`
	Server        legacyServer      `yaml:"server"`
	Apps          []string          `yaml:"apps"`
	Versions      map[string]string `yaml:"versions"`
	OS            string            `yaml:"os,omitempty"`
	Maintenance   legacyMaintenance `yaml:"maintenance"`
	URLs          map[string]string `yaml:"urls,omitempty"`
	Notes         string            `yaml:"notes,omitempty"`
}

type legacyServer struct {
	Type     string `yaml:"type,omitempty"`
	Location string `yaml:"location,omitempty"`
	IP       string `yaml:"ip,omitempty"`
	ID       int64  `yaml:"id,omitempty"`
}

type legacyMaintenance struct {
	LastFullUpdate     string `yaml:"last_full_update,omitempty"`
	LastSecurityPatch  string `yaml:"last_security_patch,omitempty"`
	LastOSUpdate       string `yaml:"last_os_update,omitempty"`
	LastBackupVerified string `yaml:"last_backup_verified,omitempty"`
}

// Export writes every client in the registry.yml layout. Keys are emitted
// in sorted order so repeated exports are byte-identical.
func Export(ctx context.Context, s Store, w io.Writer) error {
	clients, err := s.List(ctx, Filter{})
	if err != nil {
		return err
	}

	doc := legacyFile{Clients: make(map[string]legacyClient, len(clients))}
	for _, c := range clients {
		doc.Clients[c.Name] = toLegacy(c)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	return enc.Close()
}

// Import loads a registry.yml document. Records with an unknown status or
// unparseable dates are rejected and reported together; the rest are
// written.
func Import(ctx context.Context, r *Registry, src io.Reader) ([]string, error) {
	var doc legacyFile
	if err := yaml.NewDecoder(src).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}

	names := make([]string, 0, len(doc.Clients))
	for name := range doc.Clients {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		imported []string
		errs     *multierror.Error
	)
	for _, name := range names {
		c, err := fromLegacy(name, doc.Clients[name])
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if err := r.Restore(ctx, c); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		imported = append(imported, name)
	}
	return imported, errs.ErrorOrNil()
}

func toLegacy(c *model.Client) legacyClient {
	return legacyClient{
		Status:        string(c.Status),
		Role:          string(c.Role),
		DeployedDate:  formatDate(c.DeployedDate),
		DestroyedDate: formatDate(c.DestroyedDate),
		Server: legacyServer{
			Type:     c.Server.Type,
			Location: c.Server.Location,
			IP:       c.Server.IP,
			ID:       c.Server.ID,
		},
		Apps:     c.Apps,
		Versions: c.Versions,
		OS:       c.OS,
		Maintenance: legacyMaintenance{
			LastFullUpdate:     formatDate(c.Maintenance.LastFullUpdate),
			LastSecurityPatch:  formatDate(c.Maintenance.LastSecurityPatch),
			LastOSUpdate:       formatDate(c.Maintenance.LastOSUpdate),
			LastBackupVerified: formatDate(c.Maintenance.LastBackupVerified),
		},
		URLs:  c.URLs,
		Notes: c.Notes,
	}
}

func fromLegacy(name string, l legacyClient) (*model.Client, error) {
	status, err := model.ParseStatus(l.Status)
	if err != nil {
		return nil, err
	}

	c := model.NewClient(name)
	c.Status = status
	if l.Role != "" {
		if c.Role, err = model.ParseRole(l.Role); err != nil {
			return nil, err
		}
	}
	if len(l.Apps) > 0 {
		c.Apps = l.Apps
	}
	if l.Versions != nil {
		c.Versions = l.Versions
	}
	if l.URLs != nil {
		c.URLs = l.URLs
	}
	c.OS = l.OS
	c.Notes = l.Notes
	c.Server = model.Server{Type: l.Server.Type, Location: l.Server.Location, IP: l.Server.IP, ID: l.Server.ID}

	dates := []struct {
		in  string
		out **time.Time
	}{
		{l.DeployedDate, &c.DeployedDate},
		{l.DestroyedDate, &c.DestroyedDate},
		{l.Maintenance.LastFullUpdate, &c.Maintenance.LastFullUpdate},
		{l.Maintenance.LastSecurityPatch, &c.Maintenance.LastSecurityPatch},
		{l.Maintenance.LastOSUpdate, &c.Maintenance.LastOSUpdate},
		{l.Maintenance.LastBackupVerified, &c.Maintenance.LastBackupVerified},
	}
	for _, d := range dates {
		if *d.out, err = parseDate(d.in); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(legacyDate)
}

func parseDate(s string) (*time.Time, error) {
	if s == "" || s == "null" {
		return nil, nil
	}
	t, err := time.Parse(legacyDate, s)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, s); err != nil {
			return nil, fmt.Errorf("invalid date %q", s)
		}
	}
	t = t.UTC()
	return &t, nil
}
