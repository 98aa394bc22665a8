package activity

import (
	"github.com/edvin/clientops/internal/model"
)

// PlanResult holds the outcome of PlanClient.
type PlanResult struct {
	Changes     bool              `json:"changes"`
	Declaration model.Declaration `json:"declaration"`
}

// RunPlaybookParams holds parameters for RunPlaybook.
type RunPlaybookParams struct {
	Client string      `json:"client"`
	Phase  model.Phase `json:"phase"`
}

// HostParams addresses a client's server.
type HostParams struct {
	Client string `json:"client"`
	IP     string `json:"ip"`
}

// CleanupResult lists the non-fatal problems of a best-effort cleanup.
type CleanupResult struct {
	Removed  []string `json:"removed,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// RecordDeploymentParams holds the facts written to the registry once a
// deploy has converged.
type RecordDeploymentParams struct {
	Client string            `json:"client"`
	Role   model.Role        `json:"role,omitempty"`
	Server model.Server      `json:"server"`
	Apps   []string          `json:"apps"`
	URLs   map[string]string `json:"urls"`
}

// SetStatusParams holds parameters for SetClientStatus.
type SetStatusParams struct {
	Client string       `json:"client"`
	Status model.Status `json:"status"`
}

// WireSSOParams holds parameters for WireSSO.
type WireSSOParams struct {
	Client     string `json:"client"`
	IDP        string `json:"idp"`
	BaseDomain string `json:"base_domain"`
}

// WireSSOResult carries the non-secret outcome of SSO wiring. The client
// secret is written to the secrets bundle, never into workflow history.
type WireSSOResult struct {
	Issuer   string   `json:"issuer"`
	ClientID string   `json:"client_id"`
	Warnings []string `json:"warnings,omitempty"`
	// Bootstrapped is set when the provider's service credentials were
	// created during this run.
	Bootstrapped bool `json:"bootstrapped,omitempty"`
}

// ResizeVolumeParams holds parameters for the volume resize activities.
type ResizeVolumeParams struct {
	Client string `json:"client"`
	SizeGB int    `json:"size_gb"`
}

// GrowFilesystemParams holds parameters for GrowFilesystem.
type GrowFilesystemParams struct {
	Client   string `json:"client"`
	IP       string `json:"ip"`
	VolumeID int64  `json:"volume_id"`
}

// CollectFleetParams selects the clients for CollectFleetVersions.
type CollectFleetParams struct {
	Status      model.Status `json:"status,omitempty"`
	Role        model.Role   `json:"role,omitempty"`
	Parallelism int          `json:"parallelism"`
}

// LiveServerResult holds the outcome of LiveServer.
type LiveServerResult struct {
	Server model.Server `json:"server"`
	Found  bool         `json:"found"`
}
