package workflow

import (
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/clientops/internal/activity"
	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/provision"
)

// registerActivities registers activity structs with the test workflow
// environment so that parameter and return types can be deserialized correctly
// by the Temporal test framework. In unit tests, all activities are mocked via
// OnActivity, but the framework still needs the type information.
func registerActivities(env *testsuite.TestWorkflowEnvironment) {
	env.RegisterActivity(&activity.Provisioning{})
	env.RegisterActivity(&activity.Configuration{})
	env.RegisterActivity(&activity.Host{})
	env.RegisterActivity(&activity.Local{})
	env.RegisterActivity(&activity.Records{})
	env.RegisterActivity(&activity.Versions{})
	env.RegisterActivity(&activity.SSO{})
	env.RegisterActivity(&activity.Cloud{})
}

func testInstance() provision.Instance {
	return provision.Instance{
		Address:    `hcloud_server.client["acme"]`,
		ID:         4711,
		Name:       "acme",
		IP:         "203.0.113.10",
		ServerType: "cx22",
		Location:   "fsn1",
	}
}

func testDeclaration(apps ...string) model.Declaration {
	d := model.SuggestDeclaration("acme")
	if len(apps) > 0 {
		d.Apps = apps
	}
	return d
}

// finalErr mimics a non-retryable activity failure.
func finalErr(msg, typ string) error {
	return temporal.NewNonRetryableApplicationError(msg, typ, nil)
}

func stepStatuses(res *model.FlowResult) map[string]model.StepStatus {
	out := make(map[string]model.StepStatus, len(res.Steps))
	for _, s := range res.Steps {
		out[s.Name] = s.Status
	}
	return out
}
