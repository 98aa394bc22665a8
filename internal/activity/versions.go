package activity

import (
	"context"
	"errors"

	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/registry"
	"github.com/edvin/clientops/internal/versions"
)

// Versions contains the version collection activities.
type Versions struct {
	collector *versions.Collector
}

func NewVersions(c *versions.Collector) *Versions {
	return &Versions{collector: c}
}

// CollectVersions reads one client's running versions. A client missing
// from the registry fails without retry.
func (a *Versions) CollectVersions(ctx context.Context, client string) (*versions.Report, error) {
	rep, err := a.collector.Collect(ctx, client)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, nonRetryable(&model.PreconditionError{
			Kind:   model.MissingRegistry,
			Client: client,
			Detail: "not in the registry",
			Remedy: "deploy it first or import the registry",
			Err:    err,
		})
	}
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

// CollectFleetVersions collects every client matching the filter.
func (a *Versions) CollectFleetVersions(ctx context.Context, params CollectFleetParams) ([]versions.Report, error) {
	return a.collector.CollectAll(ctx, registry.Filter{Status: params.Status, Role: params.Role}, params.Parallelism)
}
