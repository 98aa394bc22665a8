package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Activity timeouts per kind of step.
const (
	defaultTimeout   = 5 * time.Minute
	provisionTimeout = 30 * time.Minute
	ansibleTimeout   = 60 * time.Minute
	sshWaitTimeout   = 6 * time.Minute
	ssoTimeout       = 15 * time.Minute
	fleetTimeout     = 30 * time.Minute
)

// activityCtx returns a context whose activities time out after timeout.
// Precondition and tool failures are non-retryable at the source, so the
// retry policy only covers transient errors.
func activityCtx(ctx workflow.Context, timeout time.Duration) workflow.Context {
	return workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts:    3,
			InitialInterval:    5 * time.Second,
			MaximumInterval:    30 * time.Second,
			BackoffCoefficient: 2.0,
		},
	})
}
