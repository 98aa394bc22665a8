package workflow

import (
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/provision"
)

// RebuildClientWorkflow destroys the client's provisioned resources and
// deploys it again from the provisioning step. The operator confirms the
// destroy before the flow starts.
func RebuildClientWorkflow(ctx workflow.Context, params DeployParams) (*model.FlowResult, error) {
	f, err := newFlow(ctx, model.FlowRebuild, params.Client)
	if err != nil {
		return nil, err
	}

	var instances []provision.Instance
	err = f.step("provision-instances", provisionTimeout, func(ctx workflow.Context) (outcome, error) {
		if err := workflow.ExecuteActivity(ctx, "ClientInstances", params.Client).Get(ctx, &instances); err != nil {
			return outcome{}, err
		}
		return done("%d server(s) in state", len(instances)), nil
	})
	if err != nil {
		return nil, err
	}

	if len(instances) > 0 {
		err = f.step("provision-destroy", provisionTimeout, func(ctx workflow.Context) (outcome, error) {
			return done("destroyed"), workflow.ExecuteActivity(ctx, "DestroyClient", params.Client).Get(ctx, nil)
		})
		if err != nil {
			return nil, err
		}
	} else {
		f.skip("provision-destroy", "nothing provisioned")
	}

	childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
		WorkflowID: model.WorkflowID(params.Client) + "-deploy",
	})
	var child model.FlowResult
	if err := workflow.ExecuteChildWorkflow(childCtx, DeployClientWorkflow, params).Get(childCtx, &child); err != nil {
		f.result.Add(model.StepResult{Name: "deploy", Status: model.StepFailed, Message: err.Error()})
		return nil, err
	}
	f.merge("deploy", &child)
	return f.finish()
}
