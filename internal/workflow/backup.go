package workflow

import (
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/clientops/internal/model"
)

// FlowBackup names registry backup runs.
const FlowBackup = "registry-backup"

// RegistryBackupWorkflow uploads a YAML export of the registry to object
// storage.
func RegistryBackupWorkflow(ctx workflow.Context) (*model.FlowResult, error) {
	f, err := newFlow(ctx, FlowBackup, "")
	if err != nil {
		return nil, err
	}
	err = f.step("backup", defaultTimeout, func(ctx workflow.Context) (outcome, error) {
		var key string
		if err := workflow.ExecuteActivity(ctx, "BackupRegistry").Get(ctx, &key); err != nil {
			return outcome{}, err
		}
		return done("uploaded %s", key), nil
	})
	if err != nil {
		return nil, err
	}
	return f.finish()
}
