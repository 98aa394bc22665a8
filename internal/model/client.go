package model

import "time"

// Default app stack for a new client.
var DefaultApps = []string{"zitadel", "nextcloud"}

// Client is a tenant record in the registry.
type Client struct {
	Name          string            `json:"name" validate:"client_name"`
	Status        Status            `json:"status" validate:"required,client_status"`
	Role          Role              `json:"role" validate:"required,oneof=canary production"`
	DeployedDate  *time.Time        `json:"deployed_date,omitempty"`
	DestroyedDate *time.Time        `json:"destroyed_date,omitempty"`
	Server        Server            `json:"server"`
	Apps          []string          `json:"apps"`
	Versions      map[string]string `json:"versions"`
	OS            string            `json:"os,omitempty"`
	Maintenance   Maintenance       `json:"maintenance"`
	URLs          map[string]string `json:"urls"`
	Notes         string            `json:"notes,omitempty"`
	Revision      int64             `json:"revision"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// Server holds the facts about a client's compute instance.
type Server struct {
	Type     string `json:"type,omitempty"`
	Location string `json:"location,omitempty"`
	IP       string `json:"ip,omitempty" validate:"omitempty,ip"`
	ID       int64  `json:"id,omitempty"`
}

// Maintenance tracks when upkeep last happened on a client.
type Maintenance struct {
	LastFullUpdate     *time.Time `json:"last_full_update,omitempty"`
	LastSecurityPatch  *time.Time `json:"last_security_patch,omitempty"`
	LastOSUpdate       *time.Time `json:"last_os_update,omitempty"`
	LastBackupVerified *time.Time `json:"last_backup_verified,omitempty"`
}

// NewClient returns the default skeleton written when a client is first
// seen by the registry.
func NewClient(name string) *Client {
	return &Client{
		Name:     name,
		Status:   StatusPending,
		Role:     RoleProduction,
		Apps:     append([]string(nil), DefaultApps...),
		Versions: map[string]string{},
		URLs:     map[string]string{},
	}
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (c *Client) Clone() *Client {
	out := *c
	out.Apps = append([]string(nil), c.Apps...)
	out.Versions = cloneMap(c.Versions)
	out.URLs = cloneMap(c.URLs)
	out.DeployedDate = cloneTime(c.DeployedDate)
	out.DestroyedDate = cloneTime(c.DestroyedDate)
	out.Maintenance = Maintenance{
		LastFullUpdate:     cloneTime(c.Maintenance.LastFullUpdate),
		LastSecurityPatch:  cloneTime(c.Maintenance.LastSecurityPatch),
		LastOSUpdate:       cloneTime(c.Maintenance.LastOSUpdate),
		LastBackupVerified: cloneTime(c.Maintenance.LastBackupVerified),
	}
	return &out
}

// ClientURLs derives the public endpoints for a client under baseDomain.
func ClientURLs(name, baseDomain, idp string) map[string]string {
	urls := map[string]string{
		"nextcloud": "https://nextcloud." + name + "." + baseDomain,
	}
	switch idp {
	case "zitadel":
		urls["zitadel"] = "https://zitadel." + name + "." + baseDomain
	default:
		urls["authentik"] = "https://auth." + name + "." + baseDomain
	}
	return urls
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
