// Package lifecycle runs the operator-side half of the lifecycle: local
// preconditions are established interactively, then the durable flow is
// started on Temporal and followed to completion.
package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/provision"
	"github.com/edvin/clientops/internal/sshkey"
)

// SecretsCreator is the secrets surface used by Prepare.
type SecretsCreator interface {
	CheckKey() error
	Exists(client string) bool
	CreateFromTemplate(ctx context.Context, client, baseDomain string) ([]string, error)
}

// DeclarationStore is the provisioning config surface used by Prepare.
type DeclarationStore interface {
	Has(name string) (bool, error)
	Add(name string, decl model.Declaration) error
}

// Local holds what Prepare needs on the operator machine.
type Local struct {
	KeysDir      string
	BaseDomain   string
	Secrets      SecretsCreator
	Declarations DeclarationStore
	Prompt       Prompter
	Logger       zerolog.Logger
}

// Prepare establishes the local preconditions of a deploy in order: SSH
// key, secrets bundle, provisioning declaration. Each missing artifact is
// synthesised; secrets and declarations need the operator's consent.
func (l *Local) Prepare(ctx context.Context, client string) ([]model.StepResult, error) {
	if err := model.ValidateClientName(client); err != nil {
		return nil, err
	}
	logger := l.Logger.With().Str("client", client).Logger()
	var steps []model.StepResult

	kp, created, err := sshkey.Ensure(l.KeysDir, client)
	if err != nil {
		return steps, err
	}
	if created {
		logger.Info().Str("path", kp.PrivatePath).Msg("generated ssh key")
		steps = append(steps, model.StepResult{Name: "ssh-key", Status: model.StepOK, Message: "generated " + kp.PublicPath})
	} else {
		steps = append(steps, model.StepResult{Name: "ssh-key", Status: model.StepSkipped, Message: "exists"})
	}

	if err := l.Secrets.CheckKey(); err != nil {
		return steps, err
	}
	if l.Secrets.Exists(client) {
		steps = append(steps, model.StepResult{Name: "secrets", Status: model.StepSkipped, Message: "exists"})
	} else {
		ok, err := l.Prompt.Confirm(
			fmt.Sprintf("Create secrets for %s from the template?", client),
			"New passwords and tokens are generated for every GENERATE/CHANGEME field.",
		)
		if err != nil {
			return steps, err
		}
		if !ok {
			return steps, &model.PreconditionError{
				Kind:   model.MissingSecrets,
				Client: client,
				Remedy: "run clientctl secrets init " + client,
			}
		}
		generated, err := l.Secrets.CreateFromTemplate(ctx, client, l.BaseDomain)
		if err != nil {
			return steps, err
		}
		logger.Info().Strs("generated", generated).Msg("created secrets from template")
		steps = append(steps, model.StepResult{
			Name:    "secrets",
			Status:  model.StepOK,
			Message: fmt.Sprintf("created, %d value(s) generated", len(generated)),
		})
	}

	declared, err := l.Declarations.Has(client)
	if err != nil {
		return steps, err
	}
	if declared {
		steps = append(steps, model.StepResult{Name: "declaration", Status: model.StepSkipped, Message: "exists"})
		return steps, nil
	}

	suggestion := model.SuggestDeclaration(client)
	rendered := provision.Render(client, suggestion)
	ok, err := l.Prompt.Confirm(
		fmt.Sprintf("%s is not in the provisioning config. Add it?", client),
		strings.TrimSpace(rendered),
	)
	if err != nil {
		return steps, err
	}
	if !ok {
		return steps, &model.PreconditionError{
			Kind:   model.MissingDeclaration,
			Client: client,
			Detail: "add this entry to the clients map:\n" + rendered,
		}
	}
	if err := l.Declarations.Add(client, suggestion); err != nil {
		return steps, err
	}
	logger.Info().Msg("added provisioning declaration")
	steps = append(steps, model.StepResult{Name: "declaration", Status: model.StepOK, Message: "added with defaults"})
	return steps, nil
}
