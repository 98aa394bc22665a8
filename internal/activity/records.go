package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/registry"
)

// Records contains the registry activities.
type Records struct {
	store  registry.Store
	backup *registry.Backup
	now    func() time.Time
	logger zerolog.Logger
}

// NewRecords creates the registry activities. backup may be nil when no
// object storage is configured.
func NewRecords(store registry.Store, backup *registry.Backup, logger zerolog.Logger) *Records {
	return &Records{store: store, backup: backup, now: time.Now, logger: logger}
}

// GetClient returns the client's record, or nil if it has none.
func (a *Records) GetClient(ctx context.Context, name string) (*model.Client, error) {
	c, err := a.store.Get(ctx, name)
	if errors.Is(err, registry.ErrNotFound) {
		return nil, nil
	}
	return c, err
}

// RecordDeployment marks the client deployed and stores its server facts.
// deployed_date is only set the first time.
func (a *Records) RecordDeployment(ctx context.Context, params RecordDeploymentParams) (*model.Client, error) {
	c, err := a.store.Upsert(ctx, params.Client, func(c *model.Client) error {
		c.Status = model.StatusDeployed
		if params.Role != "" {
			c.Role = params.Role
		}
		c.Server = params.Server
		if len(params.Apps) > 0 {
			c.Apps = append([]string(nil), params.Apps...)
		}
		for app, url := range params.URLs {
			c.URLs[app] = url
		}
		if c.DeployedDate == nil {
			now := a.now().UTC()
			c.DeployedDate = &now
		}
		c.DestroyedDate = nil
		return nil
	})
	if err != nil {
		return nil, nonRetryable(err)
	}
	a.logger.Info().Str("client", c.Name).Int64("revision", c.Revision).Msg("deployment recorded")
	return c, nil
}

// SetClientStatus moves the client to a new status.
func (a *Records) SetClientStatus(ctx context.Context, params SetStatusParams) (*model.Client, error) {
	c, err := a.store.Upsert(ctx, params.Client, func(c *model.Client) error {
		c.Status = params.Status
		return nil
	})
	return c, nonRetryable(err)
}

// MarkClientDestroyed flips the record to destroyed, keeping it.
func (a *Records) MarkClientDestroyed(ctx context.Context, client string) error {
	_, err := a.store.MarkDestroyed(ctx, client, a.now())
	return nonRetryable(err)
}

// BackupRegistry uploads a YAML export of the registry.
func (a *Records) BackupRegistry(ctx context.Context) (string, error) {
	if a.backup == nil {
		return "", nonRetryable(&model.PreconditionError{
			Kind:   model.MissingEnv,
			Detail: "registry backup needs BACKUP_S3_ENDPOINT and BACKUP_S3_BUCKET",
		})
	}
	key, err := a.backup.Run(ctx, a.store)
	if err != nil {
		return "", fmt.Errorf("backup registry: %w", err)
	}
	return key, nil
}
