package activity

import (
	"context"
	"fmt"

	"github.com/edvin/clientops/internal/model"
)

// PlaybookRunner runs one configuration phase against a client.
type PlaybookRunner interface {
	Run(ctx context.Context, client string, phase model.Phase) error
}

// Configuration contains the ansible activities.
type Configuration struct {
	runner PlaybookRunner
}

func NewConfiguration(runner PlaybookRunner) *Configuration {
	return &Configuration{runner: runner}
}

// RunPlaybook runs the playbook for params.Phase limited to the client.
func (a *Configuration) RunPlaybook(ctx context.Context, params RunPlaybookParams) error {
	if params.Phase.Playbook() == "" {
		return nonRetryable(&model.PreconditionError{
			Kind:   model.MissingEnv,
			Client: params.Client,
			Detail: fmt.Sprintf("unknown configuration phase %q", params.Phase),
		})
	}
	return nonRetryable(a.runner.Run(ctx, params.Client, params.Phase))
}
