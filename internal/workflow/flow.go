package workflow

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/edvin/clientops/internal/activity"
	"github.com/edvin/clientops/internal/model"
)

// outcome is what a step reports on success.
type outcome struct {
	msg      string
	warnings []string
}

func done(format string, args ...any) outcome {
	return outcome{msg: fmt.Sprintf(format, args...)}
}

// flow records the steps of one lifecycle run and exposes them through
// the progress query.
type flow struct {
	ctx    workflow.Context
	result model.FlowResult
}

func newFlow(ctx workflow.Context, name, client string) (*flow, error) {
	if client != "" {
		if err := model.ValidateClientName(client); err != nil {
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), activity.ErrTypePrecondition, err)
		}
	}
	f := &flow{ctx: ctx, result: model.FlowResult{Client: client, Flow: name}}
	err := workflow.SetQueryHandler(ctx, model.ProgressQuery, func() (model.FlowResult, error) {
		return f.result, nil
	})
	if err != nil {
		return nil, fmt.Errorf("register progress query: %w", err)
	}
	return f, nil
}

func (f *flow) run(name string, timeout time.Duration, fn func(ctx workflow.Context) (outcome, error)) (model.StepResult, error) {
	start := workflow.Now(f.ctx)
	out, err := fn(activityCtx(f.ctx, timeout))
	step := model.StepResult{Name: name, Status: model.StepOK, Message: out.msg, Duration: workflow.Now(f.ctx).Sub(start)}
	switch {
	case err != nil:
		step.Status = model.StepFailed
		step.Message = err.Error()
	case len(out.warnings) > 0:
		step.Status = model.StepWarning
		step.Message = strings.Join(out.warnings, "; ")
	}
	return step, err
}

// step runs a mandatory step; its failure ends the flow.
func (f *flow) step(name string, timeout time.Duration, fn func(ctx workflow.Context) (outcome, error)) error {
	step, err := f.run(name, timeout, fn)
	f.result.Add(step)
	if err != nil {
		workflow.GetLogger(f.ctx).Error("step failed", "step", name, "error", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// bestEffort runs a step whose failure only becomes a warning.
func (f *flow) bestEffort(name string, timeout time.Duration, fn func(ctx workflow.Context) (outcome, error)) {
	step, err := f.run(name, timeout, fn)
	if err != nil {
		step.Status = model.StepWarning
		workflow.GetLogger(f.ctx).Warn("best-effort step failed", "step", name, "error", err)
	}
	f.result.Add(step)
}

func (f *flow) skip(name, reason string) {
	f.result.Add(model.StepResult{Name: name, Status: model.StepSkipped, Message: reason})
}

// merge appends the steps of a child flow under prefix.
func (f *flow) merge(prefix string, child *model.FlowResult) {
	if child == nil {
		return
	}
	for _, s := range child.Steps {
		s.Name = prefix + "/" + s.Name
		f.result.Add(s)
	}
}

func (f *flow) finish() (*model.FlowResult, error) {
	res := f.result
	return &res, nil
}
