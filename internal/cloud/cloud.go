// Package cloud reads and adjusts client resources through the Hetzner
// Cloud API for operations the provisioning state cannot express.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
	"github.com/rs/zerolog"

	"github.com/edvin/clientops/internal/model"
)

// ErrShrink is returned when a resize would make a volume smaller.
var ErrShrink = errors.New("volumes cannot shrink")

// VolumeAPI is the subset of hcloud.VolumeClient used here.
type VolumeAPI interface {
	Get(ctx context.Context, idOrName string) (*hcloud.Volume, *hcloud.Response, error)
	Resize(ctx context.Context, volume *hcloud.Volume, size int) (*hcloud.Action, *hcloud.Response, error)
}

// ServerAPI is the subset of hcloud.ServerClient used here.
type ServerAPI interface {
	AllWithOpts(ctx context.Context, opts hcloud.ServerListOpts) ([]*hcloud.Server, error)
}

// ActionWaiter blocks until actions complete.
type ActionWaiter interface {
	WaitFor(ctx context.Context, actions ...*hcloud.Action) error
}

type Service struct {
	volumes VolumeAPI
	servers ServerAPI
	actions ActionWaiter
	logger  zerolog.Logger
}

func New(token string, logger zerolog.Logger) *Service {
	hc := hcloud.NewClient(
		hcloud.WithToken(token),
		hcloud.WithApplication("clientops", ""),
	)
	return NewWith(&hc.Volume, &hc.Server, &hc.Action, logger)
}

func NewWith(volumes VolumeAPI, servers ServerAPI, actions ActionWaiter, logger zerolog.Logger) *Service {
	return &Service{volumes: volumes, servers: servers, actions: actions, logger: logger}
}

// VolumeName is the Nextcloud data volume of a client.
func VolumeName(client string) string {
	return "nextcloud-data-" + client
}

// Resize reports a volume size change.
type Resize struct {
	VolumeID int64 `json:"volume_id"`
	FromGB   int   `json:"from_gb"`
	ToGB     int   `json:"to_gb"`
}

// Changed reports whether the volume actually grew.
func (r Resize) Changed() bool { return r.ToGB != r.FromGB }

// ResizeVolume grows the client's data volume to sizeGB. Shrinking is
// refused; an equal size is a no-op.
func (s *Service) ResizeVolume(ctx context.Context, client string, sizeGB int) (Resize, error) {
	if err := model.ValidateClientName(client); err != nil {
		return Resize{}, err
	}
	name := VolumeName(client)
	vol, _, err := s.volumes.Get(ctx, name)
	if err != nil {
		return Resize{}, fmt.Errorf("get volume %s: %w", name, err)
	}
	if vol == nil {
		return Resize{}, fmt.Errorf("volume %s not found", name)
	}
	res := Resize{VolumeID: vol.ID, FromGB: vol.Size, ToGB: vol.Size}
	if sizeGB < vol.Size {
		return res, fmt.Errorf("volume %s is %d GB, requested %d GB: %w", name, vol.Size, sizeGB, ErrShrink)
	}
	if sizeGB == vol.Size {
		s.logger.Info().Str("client", client).Int("size_gb", sizeGB).Msg("volume already at requested size")
		return res, nil
	}

	action, _, err := s.volumes.Resize(ctx, vol, sizeGB)
	if err != nil {
		return res, fmt.Errorf("resize volume %s: %w", name, err)
	}
	if err := s.actions.WaitFor(ctx, action); err != nil {
		return res, fmt.Errorf("wait for resize of %s: %w", name, err)
	}
	res.ToGB = sizeGB

	s.logger.Info().
		Str("client", client).
		Int("from_gb", res.FromGB).
		Int("to_gb", res.ToGB).
		Msg("volume resized")
	return res, nil
}

// DevicePath is where a Hetzner volume appears on its server.
func DevicePath(volumeID int64) string {
	return "/dev/disk/by-id/scsi-0HC_Volume_" + strconv.FormatInt(volumeID, 10)
}

// ServerFacts returns the live server labelled client=<client>.
func (s *Service) ServerFacts(ctx context.Context, client string) (model.Server, bool, error) {
	if err := model.ValidateClientName(client); err != nil {
		return model.Server{}, false, err
	}
	servers, err := s.servers.AllWithOpts(ctx, hcloud.ServerListOpts{
		ListOpts: hcloud.ListOpts{LabelSelector: "client=" + client},
	})
	if err != nil {
		return model.Server{}, false, fmt.Errorf("list servers for %s: %w", client, err)
	}
	switch len(servers) {
	case 0:
		return model.Server{}, false, nil
	case 1:
	default:
		return model.Server{}, false, fmt.Errorf("%d servers labelled client=%s", len(servers), client)
	}
	return serverFacts(servers[0]), true, nil
}

func serverFacts(srv *hcloud.Server) model.Server {
	out := model.Server{ID: srv.ID}
	if srv.ServerType != nil {
		out.Type = srv.ServerType.Name
	}
	if srv.Datacenter != nil && srv.Datacenter.Location != nil {
		out.Location = srv.Datacenter.Location.Name
	}
	if ip := srv.PublicNet.IPv4.IP; ip != nil && !ip.IsUnspecified() {
		out.IP = ip.String()
	}
	return out
}

// Drift lists fields where the registry disagrees with the live server.
func Drift(recorded, live model.Server) []string {
	var diffs []string
	add := func(field, was, is string) {
		if was != is {
			diffs = append(diffs, fmt.Sprintf("%s: %q -> %q", field, was, is))
		}
	}
	add("type", recorded.Type, live.Type)
	add("location", recorded.Location, live.Location)
	add("ip", recorded.IP, live.IP)
	add("id", strconv.FormatInt(recorded.ID, 10), strconv.FormatInt(live.ID, 10))
	return diffs
}
