package activity

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/provision"
	"github.com/edvin/clientops/internal/sshkey"
)

// SecretsRemover deletes a client's encrypted secrets file.
type SecretsRemover interface {
	Remove(client string) error
}

// Local contains activities on the operations checkout itself.
type Local struct {
	keysDir string
	secrets SecretsRemover
	decls   *provision.Declarations
	logger  zerolog.Logger
}

func NewLocal(keysDir string, secrets SecretsRemover, decls *provision.Declarations, logger zerolog.Logger) *Local {
	return &Local{keysDir: keysDir, secrets: secrets, decls: decls, logger: logger}
}

// RemoveLocalArtifacts deletes the SSH key pair, the secrets file and the
// declaration of a destroyed client. Each removal is attempted; failures
// come back as warnings. A malformed name removes nothing.
func (a *Local) RemoveLocalArtifacts(ctx context.Context, client string) (*CleanupResult, error) {
	if err := model.ValidateClientName(client); err != nil {
		return nil, nonRetryable(err)
	}
	res := &CleanupResult{}

	if err := sshkey.Remove(a.keysDir, client); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("remove ssh keys: %v", err))
	} else {
		res.Removed = append(res.Removed, "ssh keys")
	}

	if err := a.secrets.Remove(client); err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("remove secrets: %v", err))
	} else {
		res.Removed = append(res.Removed, "secrets")
	}

	removed, err := a.decls.Remove(client)
	switch {
	case err != nil:
		res.Warnings = append(res.Warnings, fmt.Sprintf("remove declaration: %v", err))
	case removed:
		res.Removed = append(res.Removed, "declaration")
	}

	a.logger.Info().
		Str("client", client).
		Strs("removed", res.Removed).
		Strs("warnings", res.Warnings).
		Msg("local artifacts cleaned up")
	return res, nil
}
