// Package worker assembles the Temporal worker that runs the lifecycle
// workflows. It is shared by cmd/worker and the embedded mode of clientctl.
package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/interceptor"
	temporalworker "go.temporal.io/sdk/worker"

	"github.com/edvin/clientops/internal/activity"
	"github.com/edvin/clientops/internal/cloud"
	"github.com/edvin/clientops/internal/config"
	"github.com/edvin/clientops/internal/configure"
	"github.com/edvin/clientops/internal/provision"
	"github.com/edvin/clientops/internal/registry"
	"github.com/edvin/clientops/internal/remote"
	"github.com/edvin/clientops/internal/secrets"
	"github.com/edvin/clientops/internal/toolexec"
	"github.com/edvin/clientops/internal/versions"
	"github.com/edvin/clientops/internal/workflow"
)

// New builds a worker on cfg.TaskQueue with every lifecycle activity and
// workflow registered. reg is shared with the caller so that an embedded
// Badger registry is opened only once.
func New(cfg *config.Config, tc temporalclient.Client, reg *registry.Registry, logger zerolog.Logger) (temporalworker.Worker, error) {
	driver, err := provision.NewDriver(cfg.TofuDir(), cfg.TofuBin, cfg.HCloudToken, logger)
	if err != nil {
		return nil, fmt.Errorf("provisioning driver: %w", err)
	}
	decls := provision.NewDeclarations(cfg.DeclarationsFile())
	store := secrets.NewAccessor(cfg.SecretsDir(), cfg.SOPSBin, cfg.SOPSAgeKeyFile, toolexec.OSRunner{})
	dial := remote.SSHDialer(cfg.SSHKeysDir(), cfg.SSHUser)

	var backup *registry.Backup
	if cfg.BackupS3Bucket != "" {
		s3 := registry.NewS3Client(cfg.BackupS3Endpoint, cfg.BackupS3Region, cfg.BackupS3AccessKey, cfg.BackupS3SecretKey)
		backup = registry.NewBackup(s3, cfg.BackupS3Bucket, logger)
	}

	w := temporalworker.New(tc, cfg.TaskQueue, temporalworker.Options{
		Interceptors: []interceptor.WorkerInterceptor{
			&workflow.ErrorTypingInterceptor{},
			&workflow.MetricsInterceptor{},
		},
	})

	// Register activities
	w.RegisterActivity(activity.NewProvisioning(driver, decls))
	w.RegisterActivity(activity.NewConfiguration(configure.NewDriver(
		cfg.AnsibleDir(), cfg.AnsiblePlaybookBin, cfg.SOPSAgeKeyFile, cfg.HCloudToken, nil, logger,
	)))
	w.RegisterActivity(activity.NewHost(dial, logger))
	w.RegisterActivity(activity.NewLocal(cfg.SSHKeysDir(), store, decls, logger))
	w.RegisterActivity(activity.NewRecords(reg, backup, logger))
	w.RegisterActivity(activity.NewVersions(versions.NewCollector(reg, dial, logger)))
	w.RegisterActivity(activity.NewSSO(store, dial, logger))
	w.RegisterActivity(activity.NewCloud(cloud.New(cfg.HCloudToken, logger)))

	// Register workflows
	w.RegisterWorkflow(workflow.DeployClientWorkflow)
	w.RegisterWorkflow(workflow.RebuildClientWorkflow)
	w.RegisterWorkflow(workflow.DestroyClientWorkflow)
	w.RegisterWorkflow(workflow.CollectVersionsWorkflow)
	w.RegisterWorkflow(workflow.ResizeVolumeWorkflow)
	w.RegisterWorkflow(workflow.RegistryBackupWorkflow)

	return w, nil
}

type cronSchedule struct {
	id       string
	cron     string
	workflow interface{}
	args     []interface{}
}

// schedules returns the recurring flows for cfg. The registry backup only
// runs when a bucket is configured.
func schedules(cfg *config.Config) []cronSchedule {
	schedules := []cronSchedule{
		{
			id:       "fleet-versions-cron",
			cron:     "0 3 * * *",
			workflow: workflow.CollectVersionsWorkflow,
			args:     []interface{}{workflow.CollectVersionsParams{Parallelism: 4}},
		},
	}
	if cfg.BackupS3Bucket != "" {
		schedules = append(schedules, cronSchedule{
			id:       "registry-backup-cron",
			cron:     "30 2 * * *",
			workflow: workflow.RegistryBackupWorkflow,
		})
	}
	return schedules
}

// RegisterSchedules creates the cron schedules. Errors for already-existing
// schedules are ignored so that re-deploys do not fail.
func RegisterSchedules(ctx context.Context, tc temporalclient.Client, cfg *config.Config, logger zerolog.Logger) error {
	scheduleClient := tc.ScheduleClient()

	for _, s := range schedules(cfg) {
		_, err := scheduleClient.Create(ctx, temporalclient.ScheduleOptions{
			ID: s.id,
			Spec: temporalclient.ScheduleSpec{
				CronExpressions: []string{s.cron},
			},
			Action: &temporalclient.ScheduleWorkflowAction{
				ID:        s.id,
				Workflow:  s.workflow,
				Args:      s.args,
				TaskQueue: cfg.TaskQueue,
			},
		})
		switch {
		case err == nil:
			logger.Info().Str("id", s.id).Str("cron", s.cron).Msg("created cron schedule")
		case alreadyExists(err):
			logger.Info().Str("id", s.id).Msg("cron schedule already exists, skipping")
		default:
			return fmt.Errorf("create schedule %s: %w", s.id, err)
		}
	}
	return nil
}

func alreadyExists(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "AlreadyExists") ||
		strings.Contains(msg, "already registered")
}
