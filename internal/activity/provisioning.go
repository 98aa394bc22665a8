package activity

import (
	"context"
	"fmt"

	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/provision"
)

// ProvisionDriver is the tofu surface used by Provisioning.
type ProvisionDriver interface {
	Init(ctx context.Context) error
	Plan(ctx context.Context, client string) (bool, error)
	Apply(ctx context.Context, client string) error
	Destroy(ctx context.Context, client string) error
	Instances(ctx context.Context, client string) ([]provision.Instance, error)
}

// Provisioning contains activities that drive infrastructure state.
type Provisioning struct {
	driver ProvisionDriver
	decls  *provision.Declarations
}

func NewProvisioning(driver ProvisionDriver, decls *provision.Declarations) *Provisioning {
	return &Provisioning{driver: driver, decls: decls}
}

// PlanClient initialises the working directory and reports whether the
// client's resources differ from their declaration.
func (a *Provisioning) PlanClient(ctx context.Context, client string) (*PlanResult, error) {
	decl, err := a.decls.Get(client)
	if err != nil {
		return nil, nonRetryable(err)
	}
	if err := a.driver.Init(ctx); err != nil {
		return nil, nonRetryable(err)
	}
	changes, err := a.driver.Plan(ctx, client)
	if err != nil {
		return nil, nonRetryable(err)
	}
	return &PlanResult{Changes: changes, Declaration: decl}, nil
}

// ApplyClient applies the client-scoped targets.
func (a *Provisioning) ApplyClient(ctx context.Context, client string) error {
	if err := a.driver.Init(ctx); err != nil {
		return nonRetryable(err)
	}
	return nonRetryable(a.driver.Apply(ctx, client))
}

// DestroyClient destroys every resource targeted for the client.
func (a *Provisioning) DestroyClient(ctx context.Context, client string) error {
	if err := a.driver.Init(ctx); err != nil {
		return nonRetryable(err)
	}
	return nonRetryable(a.driver.Destroy(ctx, client))
}

// ClientInstances returns the client's servers recorded in state.
func (a *Provisioning) ClientInstances(ctx context.Context, client string) ([]provision.Instance, error) {
	if err := a.driver.Init(ctx); err != nil {
		return nil, nonRetryable(err)
	}
	inst, err := a.driver.Instances(ctx, client)
	return inst, nonRetryable(err)
}

// SetVolumeSize records a new data volume size in the client's declaration
// so the next apply does not revert it.
func (a *Provisioning) SetVolumeSize(ctx context.Context, params ResizeVolumeParams) error {
	decl, err := a.decls.Get(params.Client)
	if err != nil {
		return nonRetryable(err)
	}
	if decl.VolumeSize == params.SizeGB {
		return nil
	}
	decl.VolumeSize = params.SizeGB
	if err := a.decls.Set(params.Client, decl); err != nil {
		return fmt.Errorf("update declaration for %s: %w", params.Client, err)
	}
	return nil
}

// ServerFromInstance converts the provisioned instance into registry facts.
func ServerFromInstance(inst provision.Instance) model.Server {
	return model.Server{
		Type:     inst.ServerType,
		Location: inst.Location,
		IP:       inst.IP,
		ID:       inst.ID,
	}
}
