package activity

import (
	"errors"

	"go.temporal.io/sdk/temporal"

	"github.com/edvin/clientops/internal/model"
)

// Application error types for failures that must not be retried.
const (
	ErrTypePrecondition = "PreconditionError"
	ErrTypeTool         = "ToolError"
	ErrTypeTransition   = "InvalidTransition"
)

// nonRetryable marks precondition, tool and transition failures as final.
func nonRetryable(err error) error {
	if err == nil {
		return nil
	}
	var pe *model.PreconditionError
	if errors.As(err, &pe) {
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypePrecondition, err)
	}
	var te *model.ToolError
	if errors.As(err, &te) {
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeTool, err)
	}
	if errors.Is(err, model.ErrInvalidTransition) {
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeTransition, err)
	}
	return err
}
