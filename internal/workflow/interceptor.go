package workflow

import (
	"context"
	"errors"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/clientops/internal/metrics"
	"github.com/edvin/clientops/internal/model"
)

// ErrorTypingInterceptor is a Temporal worker interceptor that wraps activity
// errors with the activity name as the error type, so each failed step shows
// its name in the Temporal UI instead of a generic "ApplicationError".
type ErrorTypingInterceptor struct {
	interceptor.WorkerInterceptorBase
}

func (e *ErrorTypingInterceptor) InterceptActivity(
	ctx context.Context,
	next interceptor.ActivityInboundInterceptor,
) interceptor.ActivityInboundInterceptor {
	return &errorTypingActivityInterceptor{
		ActivityInboundInterceptorBase: interceptor.ActivityInboundInterceptorBase{},
		next:                           next,
	}
}

type errorTypingActivityInterceptor struct {
	interceptor.ActivityInboundInterceptorBase
	next interceptor.ActivityInboundInterceptor
}

func (e *errorTypingActivityInterceptor) Init(outbound interceptor.ActivityOutboundInterceptor) error {
	return e.next.Init(outbound)
}

func (e *errorTypingActivityInterceptor) ExecuteActivity(
	ctx context.Context,
	in *interceptor.ExecuteActivityInput,
) (interface{}, error) {
	result, err := e.next.ExecuteActivity(ctx, in)
	if err != nil {
		// Don't double-wrap errors that already have a type.
		var appErr *temporal.ApplicationError
		if errors.As(err, &appErr) && appErr.Type() != "" {
			return result, err
		}

		actName := activity.GetInfo(ctx).ActivityType.Name
		return result, temporal.NewApplicationError(err.Error(), actName, err)
	}
	return result, nil
}

// MetricsInterceptor records step durations, tool failures and flow
// outcomes in the Prometheus collectors.
type MetricsInterceptor struct {
	interceptor.WorkerInterceptorBase
}

func (m *MetricsInterceptor) InterceptActivity(
	ctx context.Context,
	next interceptor.ActivityInboundInterceptor,
) interceptor.ActivityInboundInterceptor {
	return &metricsActivityInterceptor{next: next}
}

func (m *MetricsInterceptor) InterceptWorkflow(
	ctx workflow.Context,
	next interceptor.WorkflowInboundInterceptor,
) interceptor.WorkflowInboundInterceptor {
	return &metricsWorkflowInterceptor{next: next}
}

type metricsActivityInterceptor struct {
	interceptor.ActivityInboundInterceptorBase
	next interceptor.ActivityInboundInterceptor
}

func (m *metricsActivityInterceptor) Init(outbound interceptor.ActivityOutboundInterceptor) error {
	return m.next.Init(outbound)
}

func (m *metricsActivityInterceptor) ExecuteActivity(
	ctx context.Context,
	in *interceptor.ExecuteActivityInput,
) (interface{}, error) {
	start := time.Now()
	result, err := m.next.ExecuteActivity(ctx, in)
	metrics.ObserveStep(activity.GetInfo(ctx).ActivityType.Name, time.Since(start))

	var toolErr *model.ToolError
	if errors.As(err, &toolErr) {
		metrics.ObserveToolFailure(toolErr.Tool)
	}
	return result, err
}

type metricsWorkflowInterceptor struct {
	interceptor.WorkflowInboundInterceptorBase
	next interceptor.WorkflowInboundInterceptor
}

func (m *metricsWorkflowInterceptor) Init(outbound interceptor.WorkflowOutboundInterceptor) error {
	return m.next.Init(outbound)
}

func (m *metricsWorkflowInterceptor) ExecuteWorkflow(
	ctx workflow.Context,
	in *interceptor.ExecuteWorkflowInput,
) (interface{}, error) {
	result, err := m.next.ExecuteWorkflow(ctx, in)
	if !workflow.IsReplaying(ctx) {
		metrics.ObserveFlow(workflow.GetInfo(ctx).WorkflowType.Name, err)
	}
	return result, err
}
