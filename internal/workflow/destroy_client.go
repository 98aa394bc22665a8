package workflow

import (
	"strings"

	"go.temporal.io/sdk/workflow"

	"github.com/edvin/clientops/internal/activity"
	"github.com/edvin/clientops/internal/model"
)

// DestroyParams holds the inputs of DestroyClientWorkflow.
type DestroyParams struct {
	Client string `json:"client"`
}

// DestroyClientWorkflow tears a client down. Live cleanup and local
// artifact removal are best-effort; the targeted destroy is mandatory.
// The registry record is kept with status destroyed.
func DestroyClientWorkflow(ctx workflow.Context, params DestroyParams) (*model.FlowResult, error) {
	f, err := newFlow(ctx, model.FlowDestroy, params.Client)
	if err != nil {
		return nil, err
	}
	client := params.Client

	var rec *model.Client
	err = f.step("registry-lookup", defaultTimeout, func(ctx workflow.Context) (outcome, error) {
		if err := workflow.ExecuteActivity(ctx, "GetClient", client).Get(ctx, &rec); err != nil {
			return outcome{}, err
		}
		if rec == nil {
			return done("no registry entry"), nil
		}
		return done("status %s", rec.Status), nil
	})
	if err != nil {
		return nil, err
	}

	if rec != nil && rec.Server.IP != "" {
		f.bestEffort("live-cleanup", defaultTimeout, func(ctx workflow.Context) (outcome, error) {
			var res activity.CleanupResult
			err := workflow.ExecuteActivity(ctx, "CleanupHost", activity.HostParams{Client: client, IP: rec.Server.IP}).Get(ctx, &res)
			if err != nil {
				return outcome{}, err
			}
			return outcome{msg: "containers and volumes removed", warnings: res.Warnings}, nil
		})
	} else {
		f.skip("live-cleanup", "no server IP recorded")
	}

	err = f.step("provision-destroy", provisionTimeout, func(ctx workflow.Context) (outcome, error) {
		return done("destroyed"), workflow.ExecuteActivity(ctx, "DestroyClient", client).Get(ctx, nil)
	})
	if err != nil {
		return nil, err
	}

	f.bestEffort("local-cleanup", defaultTimeout, func(ctx workflow.Context) (outcome, error) {
		var res activity.CleanupResult
		if err := workflow.ExecuteActivity(ctx, "RemoveLocalArtifacts", client).Get(ctx, &res); err != nil {
			return outcome{}, err
		}
		return outcome{msg: "removed " + strings.Join(res.Removed, ", "), warnings: res.Warnings}, nil
	})

	err = f.step("registry", defaultTimeout, func(ctx workflow.Context) (outcome, error) {
		return done("marked destroyed"), workflow.ExecuteActivity(ctx, "MarkClientDestroyed", client).Get(ctx, nil)
	})
	if err != nil {
		return nil, err
	}
	return f.finish()
}
