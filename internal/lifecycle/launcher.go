package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/edvin/clientops/internal/model"
)

// Workflow type names as registered on the worker.
const (
	DeployWorkflow   = "DeployClientWorkflow"
	RebuildWorkflow  = "RebuildClientWorkflow"
	DestroyWorkflow  = "DestroyClientWorkflow"
	VersionsWorkflow = "CollectVersionsWorkflow"
	ResizeWorkflow   = "ResizeVolumeWorkflow"
	BackupWorkflow   = "RegistryBackupWorkflow"
)

// ErrFlowRunning is returned when the workflow id already has a running flow.
var ErrFlowRunning = errors.New("a lifecycle flow is already running")

// Launcher starts lifecycle flows and follows them.
type Launcher struct {
	tc        temporalclient.Client
	taskQueue string
	logger    zerolog.Logger
}

func NewLauncher(tc temporalclient.Client, taskQueue string, logger zerolog.Logger) *Launcher {
	return &Launcher{tc: tc, taskQueue: taskQueue, logger: logger}
}

// Start begins workflowType under id. Starting a second flow while one is
// running under the same id fails with ErrFlowRunning.
func (l *Launcher) Start(ctx context.Context, id, workflowType string, arg any) (temporalclient.WorkflowRun, error) {
	opID := uuid.NewString()
	run, err := l.tc.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		ID:                                       id,
		TaskQueue:                                l.taskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowIDConflictPolicy:                 enumspb.WORKFLOW_ID_CONFLICT_POLICY_FAIL,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
		Memo: map[string]interface{}{
			"operation_id": opID,
			"operator":     os.Getenv("USER"),
		},
	}, workflowType, arg)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return nil, fmt.Errorf("%w for %s; follow it with clientctl resume", ErrFlowRunning, id)
		}
		return nil, fmt.Errorf("start %s: %w", workflowType, err)
	}
	l.logger.Info().
		Str("workflow_id", run.GetID()).
		Str("run_id", run.GetRunID()).
		Str("operation_id", opID).
		Msg("started " + workflowType)
	return run, nil
}

// Run starts a flow and waits for it.
func (l *Launcher) Run(ctx context.Context, id, workflowType string, arg any) (*model.FlowResult, error) {
	run, err := l.Start(ctx, id, workflowType, arg)
	if err != nil {
		return nil, err
	}
	return l.Wait(ctx, run)
}

// Wait blocks until run completes. On failure the steps recorded so far are
// fetched through the progress query and returned with the error.
func (l *Launcher) Wait(ctx context.Context, run temporalclient.WorkflowRun) (*model.FlowResult, error) {
	var res model.FlowResult
	if err := run.Get(ctx, &res); err != nil {
		partial, qerr := l.Progress(ctx, run.GetID(), run.GetRunID())
		if qerr != nil {
			l.logger.Debug().Err(qerr).Str("workflow_id", run.GetID()).Msg("progress query failed")
		}
		return partial, err
	}
	return &res, nil
}

// Resume re-attaches to the latest flow under id.
func (l *Launcher) Resume(ctx context.Context, id string) (*model.FlowResult, error) {
	return l.Wait(ctx, l.tc.GetWorkflow(ctx, id, ""))
}

// Progress returns the steps a flow has recorded so far.
func (l *Launcher) Progress(ctx context.Context, id, runID string) (*model.FlowResult, error) {
	val, err := l.tc.QueryWorkflow(ctx, id, runID, model.ProgressQuery)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", id, err)
	}
	var res model.FlowResult
	if err := val.Get(&res); err != nil {
		return nil, fmt.Errorf("decode progress of %s: %w", id, err)
	}
	return &res, nil
}
