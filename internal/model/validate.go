package model

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// clientNameRule keeps a name usable as a single path segment, DNS label,
// tofu map key and hcloud label value.
const clientNameRule = "required,hostname_rfc1123,excludes=.,max=40"

func init() {
	validate.RegisterAlias("client_name", clientNameRule)
	validate.RegisterValidation("client_status", func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).Valid()
	})
}

// Validate checks a Client, Declaration or any struct carrying validate tags.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}
	return nil
}

// ValidateClientName rejects names that would escape the keys or secrets
// directory or break label selectors.
func ValidateClientName(name string) error {
	if err := validate.Var(name, clientNameRule); err != nil {
		return &PreconditionError{
			Kind:   InvalidClientName,
			Client: name,
			Detail: "must be a single DNS label of at most 40 characters",
			Remedy: "use letters, digits and hyphens only",
			Err:    err,
		}
	}
	return nil
}
