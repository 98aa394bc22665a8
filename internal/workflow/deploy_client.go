package workflow

import (
	"fmt"
	"sort"
	"strings"

	"go.temporal.io/sdk/workflow"

	"github.com/edvin/clientops/internal/activity"
	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/provision"
	"github.com/edvin/clientops/internal/versions"
)

// DeployParams holds the inputs of DeployClientWorkflow and
// RebuildClientWorkflow.
type DeployParams struct {
	Client     string     `json:"client"`
	Role       model.Role `json:"role,omitempty"`
	IDP        string     `json:"idp"`
	BaseDomain string     `json:"base_domain"`
}

// DeployClientWorkflow converges a client from its declaration to a
// running, registered deployment. Local preconditions (SSH key, secrets,
// declaration) are established by the caller before the flow starts.
func DeployClientWorkflow(ctx workflow.Context, params DeployParams) (*model.FlowResult, error) {
	f, err := newFlow(ctx, model.FlowDeploy, params.Client)
	if err != nil {
		return nil, err
	}
	if err := deploySteps(f, params); err != nil {
		return nil, err
	}
	return f.finish()
}

func deploySteps(f *flow, params DeployParams) error {
	client := params.Client

	var plan activity.PlanResult
	err := f.step("provision-plan", provisionTimeout, func(ctx workflow.Context) (outcome, error) {
		if err := workflow.ExecuteActivity(ctx, "PlanClient", client).Get(ctx, &plan); err != nil {
			return outcome{}, err
		}
		if plan.Changes {
			return done("changes pending"), nil
		}
		return done("no changes"), nil
	})
	if err != nil {
		return err
	}

	if plan.Changes {
		err = f.step("provision-apply", provisionTimeout, func(ctx workflow.Context) (outcome, error) {
			return done("applied"), workflow.ExecuteActivity(ctx, "ApplyClient", client).Get(ctx, nil)
		})
		if err != nil {
			return err
		}
	} else {
		f.skip("provision-apply", "no changes")
	}

	var server model.Server
	err = f.step("server-facts", defaultTimeout, func(ctx workflow.Context) (outcome, error) {
		var instances []provision.Instance
		if err := workflow.ExecuteActivity(ctx, "ClientInstances", client).Get(ctx, &instances); err != nil {
			return outcome{}, err
		}
		if len(instances) == 0 {
			return outcome{}, fmt.Errorf("no server for %s in state", client)
		}
		server = activity.ServerFromInstance(instances[0])
		return done("%s %s in %s", server.IP, server.Type, server.Location), nil
	})
	if err != nil {
		return err
	}
	host := activity.HostParams{Client: client, IP: server.IP}

	err = f.step("wait-ssh", sshWaitTimeout, func(ctx workflow.Context) (outcome, error) {
		return done("reachable"), workflow.ExecuteActivity(ctx, "WaitForSSH", host).Get(ctx, nil)
	})
	if err != nil {
		return err
	}

	for _, phase := range []model.Phase{model.PhaseBase, model.PhaseApps} {
		err = f.step("configure-"+string(phase), ansibleTimeout, func(ctx workflow.Context) (outcome, error) {
			return done("%s applied", phase.Playbook()),
				workflow.ExecuteActivity(ctx, "RunPlaybook", activity.RunPlaybookParams{Client: client, Phase: phase}).Get(ctx, nil)
		})
		if err != nil {
			return err
		}
	}

	idp := model.IdentityProvider(plan.Declaration.Apps, params.IDP)
	err = f.step("sso", ssoTimeout, func(ctx workflow.Context) (outcome, error) {
		var res activity.WireSSOResult
		err := workflow.ExecuteActivity(ctx, "WireSSO", activity.WireSSOParams{
			Client:     client,
			IDP:        idp,
			BaseDomain: params.BaseDomain,
		}).Get(ctx, &res)
		if err != nil {
			return outcome{}, err
		}
		return outcome{msg: idp + " issuer " + res.Issuer, warnings: res.Warnings}, nil
	})
	if err != nil {
		return err
	}

	err = f.step("nextcloud-oidc", defaultTimeout, func(ctx workflow.Context) (outcome, error) {
		return done("user_oidc configured"), workflow.ExecuteActivity(ctx, "ConfigureNextcloudOIDC", host).Get(ctx, nil)
	})
	if err != nil {
		return err
	}

	urls := model.ClientURLs(client, params.BaseDomain, idp)
	err = f.step("registry", defaultTimeout, func(ctx workflow.Context) (outcome, error) {
		var rec model.Client
		err := workflow.ExecuteActivity(ctx, "RecordDeployment", activity.RecordDeploymentParams{
			Client: client,
			Role:   params.Role,
			Server: server,
			Apps:   plan.Declaration.Apps,
			URLs:   urls,
		}).Get(ctx, &rec)
		if err != nil {
			return outcome{}, err
		}
		return done("status %s (revision %d)", rec.Status, rec.Revision), nil
	})
	if err != nil {
		return err
	}

	f.bestEffort("versions", defaultTimeout, func(ctx workflow.Context) (outcome, error) {
		var rep versions.Report
		if err := workflow.ExecuteActivity(ctx, "CollectVersions", client).Get(ctx, &rep); err != nil {
			return outcome{}, err
		}
		if !rep.Reachable {
			return outcome{warnings: []string{rep.Warning}}, nil
		}
		return done("%d apps recorded", len(rep.Versions)), nil
	})

	f.skip("monitoring", monitoringInstructions(urls))
	return nil
}

// monitoringInstructions is shown in place of uptime monitor automation.
func monitoringInstructions(urls map[string]string) string {
	apps := make([]string, 0, len(urls))
	for app := range urls {
		apps = append(apps, app)
	}
	sort.Strings(apps)
	targets := make([]string, 0, len(apps))
	for _, app := range apps {
		targets = append(targets, urls[app])
	}
	return "manual: add uptime monitors for " + strings.Join(targets, ", ")
}
