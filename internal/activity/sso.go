package activity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/clientops/internal/idp"
	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/remote"
	"github.com/edvin/clientops/internal/secrets"
)

const (
	idpReadyTimeout = 10 * time.Minute

	discoveryURIKey = "nextcloud_oidc_discovery_uri"
)

// SecretsStore is the secrets surface used by SSO wiring.
type SecretsStore interface {
	Read(ctx context.Context, client string) (secrets.Bundle, error)
	Set(ctx context.Context, client string, updates map[string]string) error
}

// ProviderFactory builds the identity provider client of a kind.
type ProviderFactory func(kind, baseURL string, bundle map[string]string) (idp.Provider, error)

// Bootstrapper creates the service credentials a provider client needs.
type Bootstrapper interface {
	WaitReady(ctx context.Context, timeout time.Duration) error
	Run(ctx context.Context) (map[string]string, error)
}

// BootstrapFactory returns nil when the bundle already holds the
// provider's service credentials.
type BootstrapFactory func(kind, baseURL string, bundle map[string]string) (Bootstrapper, error)

// SSO contains the single sign-on activities.
type SSO struct {
	secrets      SecretsStore
	providers    ProviderFactory
	bootstraps   BootstrapFactory
	verify       func(ctx context.Context, issuer string) error
	dial         remote.DialFunc
	readyTimeout time.Duration
	logger       zerolog.Logger
}

func NewSSO(store SecretsStore, dial remote.DialFunc, logger zerolog.Logger) *SSO {
	return &SSO{
		secrets: store,
		providers: func(kind, baseURL string, bundle map[string]string) (idp.Provider, error) {
			return idp.FromSecrets(kind, baseURL, bundle, nil)
		},
		bootstraps:   defaultBootstrap,
		verify:       idp.VerifyDiscovery,
		dial:         dial,
		readyTimeout: idpReadyTimeout,
		logger:       logger,
	}
}

func defaultBootstrap(kind, baseURL string, bundle map[string]string) (Bootstrapper, error) {
	if kind != "zitadel" || bundle[idp.ZitadelMachineKeyKey] != "" {
		return nil, nil
	}
	b, err := idp.NewZitadelBootstrap(baseURL, bundle, nil)
	if err != nil {
		return nil, err
	}
	return b, nil
}

type totpEnforcer interface {
	EnforceTOTP(ctx context.Context) error
}

type flowConfigurer interface {
	EnsureRecoveryFlow(ctx context.Context) (string, error)
	EnsureInvitationFlow(ctx context.Context) (string, error)
}

// WireSSO registers Nextcloud with the client's identity provider and
// stores the resulting credentials in the client's secrets bundle.
func (a *SSO) WireSSO(ctx context.Context, params WireSSOParams) (*WireSSOResult, error) {
	bundle, err := a.secrets.Read(ctx, params.Client)
	if err != nil {
		return nil, nonRetryable(err)
	}

	urls := model.ClientURLs(params.Client, params.BaseDomain, params.IDP)
	baseURL, ok := urls[params.IDP]
	if !ok {
		return nil, nonRetryable(&model.PreconditionError{
			Kind:   model.MissingEnv,
			Client: params.Client,
			Detail: fmt.Sprintf("unknown identity provider %q", params.IDP),
		})
	}
	bundle, bootstrapped, err := a.bootstrap(ctx, params, baseURL, bundle)
	if err != nil {
		return nil, err
	}
	provider, err := a.providers(params.IDP, baseURL, bundle)
	if err != nil {
		return nil, nonRetryable(&model.PreconditionError{
			Kind:   model.MissingSecrets,
			Client: params.Client,
			Detail: err.Error(),
		})
	}

	if err := provider.WaitReady(ctx, a.readyTimeout); err != nil {
		return nil, err
	}
	creds, err := provider.EnsureOIDCApp(ctx, idp.NextcloudApp(urls["nextcloud"]))
	if err != nil {
		return nil, fmt.Errorf("register nextcloud with %s: %w", provider.Kind(), err)
	}

	err = a.secrets.Set(ctx, params.Client, map[string]string{
		idp.NextcloudClientIDKey:     creds.ClientID,
		idp.NextcloudClientSecretKey: creds.ClientSecret,
		discoveryURIKey:              creds.DiscoveryURI,
	})
	if err != nil {
		return nil, fmt.Errorf("store oidc credentials: %w", err)
	}

	res := &WireSSOResult{Issuer: creds.Issuer, ClientID: creds.ClientID, Bootstrapped: bootstrapped}
	if err := a.verify(ctx, creds.Issuer); err != nil {
		res.Warnings = append(res.Warnings, err.Error())
	}
	if enf, ok := provider.(totpEnforcer); ok {
		if err := enf.EnforceTOTP(ctx); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("enforce totp: %v", err))
		}
	}
	if fc, ok := provider.(flowConfigurer); ok {
		if _, err := fc.EnsureRecoveryFlow(ctx); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("configure recovery flow: %v", err))
		}
		if _, err := fc.EnsureInvitationFlow(ctx); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("configure invitation flow: %v", err))
		}
	}

	a.logger.Info().
		Str("client", params.Client).
		Str("idp", params.IDP).
		Str("issuer", creds.Issuer).
		Msg("sso wired")
	return res, nil
}

// bootstrap creates and stores the provider's service credentials when the
// bundle lacks them, returning the bundle the provider should be built from.
func (a *SSO) bootstrap(ctx context.Context, params WireSSOParams, baseURL string, bundle secrets.Bundle) (secrets.Bundle, bool, error) {
	b, err := a.bootstraps(params.IDP, baseURL, bundle)
	if err != nil {
		return nil, false, nonRetryable(&model.PreconditionError{
			Kind:   model.MissingSecrets,
			Client: params.Client,
			Detail: err.Error(),
			Remedy: "add the admin credentials to the secrets bundle",
		})
	}
	if b == nil {
		return bundle, false, nil
	}

	if err := b.WaitReady(ctx, a.readyTimeout); err != nil {
		return nil, false, err
	}
	created, err := b.Run(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("bootstrap %s: %w", params.IDP, err)
	}
	if err := a.secrets.Set(ctx, params.Client, created); err != nil {
		return nil, false, fmt.Errorf("store %s service credentials: %w", params.IDP, err)
	}

	merged := make(secrets.Bundle, len(bundle)+len(created))
	for k, v := range bundle {
		merged[k] = v
	}
	for k, v := range created {
		merged[k] = v
	}
	a.logger.Info().
		Str("client", params.Client).
		Str("idp", params.IDP).
		Msg("identity provider bootstrapped")
	return merged, true, nil
}

// ConfigureNextcloudOIDC points Nextcloud's user_oidc app at the provider
// using the credentials stored by WireSSO.
func (a *SSO) ConfigureNextcloudOIDC(ctx context.Context, params HostParams) error {
	bundle, err := a.secrets.Read(ctx, params.Client)
	if err != nil {
		return nonRetryable(err)
	}
	id, secret, uri := bundle[idp.NextcloudClientIDKey], bundle[idp.NextcloudClientSecretKey], bundle[discoveryURIKey]
	if id == "" || secret == "" || uri == "" {
		return nonRetryable(&model.PreconditionError{
			Kind:   model.MissingSecrets,
			Client: params.Client,
			Detail: "oidc credentials not in secrets bundle",
			Remedy: "re-run the sso step",
		})
	}

	sess, err := a.dial(ctx, params.Client, params.IP)
	if err != nil {
		return err
	}
	defer sess.Close()

	cmd := strings.Join([]string{
		"docker exec -u www-data nextcloud php occ user_oidc:provider SSO",
		"--clientid=" + shellQuote(id),
		"--clientsecret=" + shellQuote(secret),
		"--discoveryuri=" + shellQuote(uri),
	}, " ")
	if _, err := sess.Run(ctx, cmd); err != nil {
		return fmt.Errorf("configure user_oidc on %s: %w", params.Client, err)
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
