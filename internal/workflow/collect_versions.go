package workflow

import (
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/clientops/internal/activity"
	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/versions"
)

// FleetVersionsID is the workflow id of fleet-wide collection.
const FleetVersionsID = "fleet-versions"

// CollectVersionsParams selects one client, or the deployed fleet when
// Client is empty.
type CollectVersionsParams struct {
	Client      string `json:"client,omitempty"`
	Parallelism int    `json:"parallelism,omitempty"`
}

// CollectVersionsWorkflow records running versions. Unreachable clients
// are warnings, never failures.
func CollectVersionsWorkflow(ctx workflow.Context, params CollectVersionsParams) (*model.FlowResult, error) {
	f, err := newFlow(ctx, model.FlowVersions, params.Client)
	if err != nil {
		return nil, err
	}

	var reports []versions.Report
	if params.Client != "" {
		err = f.step("collect", defaultTimeout, func(ctx workflow.Context) (outcome, error) {
			var rep versions.Report
			if err := workflow.ExecuteActivity(ctx, "CollectVersions", params.Client).Get(ctx, &rep); err != nil {
				return outcome{}, err
			}
			reports = append(reports, rep)
			return done("1 client"), nil
		})
	} else {
		err = f.step("collect", fleetTimeout, func(ctx workflow.Context) (outcome, error) {
			err := workflow.ExecuteActivity(ctx, "CollectFleetVersions", activity.CollectFleetParams{
				Status:      model.StatusDeployed,
				Parallelism: params.Parallelism,
			}).Get(ctx, &reports)
			if err != nil {
				return outcome{}, err
			}
			return done("%d clients", len(reports)), nil
		})
	}
	if err != nil {
		return nil, err
	}

	for _, rep := range reports {
		step := model.StepResult{Name: "versions/" + rep.Client, Status: model.StepOK}
		if rep.Reachable {
			step.Message = rep.OS
		} else {
			step.Status = model.StepWarning
			step.Message = rep.Warning
		}
		f.result.Add(step)
	}
	return f.finish()
}
