package workflow

import (
	"fmt"

	"go.temporal.io/sdk/workflow"

	"github.com/edvin/clientops/internal/activity"
	"github.com/edvin/clientops/internal/cloud"
	"github.com/edvin/clientops/internal/model"
)

// ResizeVolumeWorkflow grows a client's Nextcloud data volume, records the
// size in its declaration and grows the filesystem.
func ResizeVolumeWorkflow(ctx workflow.Context, params activity.ResizeVolumeParams) (*model.FlowResult, error) {
	f, err := newFlow(ctx, model.FlowResize, params.Client)
	if err != nil {
		return nil, err
	}

	var rec *model.Client
	err = f.step("registry-lookup", defaultTimeout, func(ctx workflow.Context) (outcome, error) {
		if err := workflow.ExecuteActivity(ctx, "GetClient", params.Client).Get(ctx, &rec); err != nil {
			return outcome{}, err
		}
		if rec == nil {
			return outcome{}, fmt.Errorf("%s is not in the registry", params.Client)
		}
		return done("server %s", rec.Server.IP), nil
	})
	if err != nil {
		return nil, err
	}

	var res cloud.Resize
	err = f.step("volume-resize", provisionTimeout, func(ctx workflow.Context) (outcome, error) {
		if err := workflow.ExecuteActivity(ctx, "ResizeVolume", params).Get(ctx, &res); err != nil {
			return outcome{}, err
		}
		if !res.Changed() {
			return done("already %d GB", res.ToGB), nil
		}
		return done("%d GB -> %d GB", res.FromGB, res.ToGB), nil
	})
	if err != nil {
		return nil, err
	}

	err = f.step("declaration", defaultTimeout, func(ctx workflow.Context) (outcome, error) {
		return done("nextcloud_volume_size = %d", params.SizeGB), workflow.ExecuteActivity(ctx, "SetVolumeSize", params).Get(ctx, nil)
	})
	if err != nil {
		return nil, err
	}

	switch {
	case !res.Changed():
		f.skip("filesystem-grow", "volume unchanged")
	case rec.Server.IP == "":
		f.skip("filesystem-grow", "no server IP recorded; run resize2fs by hand")
	default:
		f.bestEffort("filesystem-grow", defaultTimeout, func(ctx workflow.Context) (outcome, error) {
			return done("resize2fs %s", cloud.DevicePath(res.VolumeID)), workflow.ExecuteActivity(ctx, "GrowFilesystem", activity.GrowFilesystemParams{
				Client:   params.Client,
				IP:       rec.Server.IP,
				VolumeID: res.VolumeID,
			}).Get(ctx, nil)
		})
	}
	return f.finish()
}
