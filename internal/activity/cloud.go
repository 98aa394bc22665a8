package activity

import (
	"context"
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/edvin/clientops/internal/cloud"
	"github.com/edvin/clientops/internal/model"
)

// CloudAPI is the Hetzner surface used by Cloud.
type CloudAPI interface {
	ResizeVolume(ctx context.Context, client string, sizeGB int) (cloud.Resize, error)
	ServerFacts(ctx context.Context, client string) (model.Server, bool, error)
}

// Cloud contains Hetzner API activities.
type Cloud struct {
	api CloudAPI
}

func NewCloud(api CloudAPI) *Cloud {
	return &Cloud{api: api}
}

// ResizeVolume grows the client's data volume.
func (a *Cloud) ResizeVolume(ctx context.Context, params ResizeVolumeParams) (*cloud.Resize, error) {
	res, err := a.api.ResizeVolume(ctx, params.Client, params.SizeGB)
	if errors.Is(err, cloud.ErrShrink) {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), "VolumeShrink", err)
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// LiveServer reads the client's server from the Hetzner API.
func (a *Cloud) LiveServer(ctx context.Context, client string) (*LiveServerResult, error) {
	srv, found, err := a.api.ServerFacts(ctx, client)
	if err != nil {
		return nil, err
	}
	return &LiveServerResult{Server: srv, Found: found}, nil
}
