// Package idp wires Nextcloud single sign-on into a client's identity
// provider (Authentik or Zitadel).
package idp

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/sethvargo/go-retry"
)

// App describes the relying party to register.
type App struct {
	Name        string
	Slug        string
	RedirectURI string
	LaunchURL   string
}

// Credentials are what Nextcloud needs to talk to the provider.
type Credentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	DiscoveryURI string `json:"discovery_uri"`
	Issuer       string `json:"issuer"`
}

// Provider is implemented by Authentik and Zitadel.
type Provider interface {
	Kind() string
	WaitReady(ctx context.Context, timeout time.Duration) error
	EnsureOIDCApp(ctx context.Context, app App) (Credentials, error)
}

// NextcloudApp is the relying party registered for every client.
func NextcloudApp(nextcloudURL string) App {
	return App{
		Name:        "Nextcloud",
		Slug:        "nextcloud",
		RedirectURI: nextcloudURL + "/apps/user_oidc/code",
		LaunchURL:   nextcloudURL,
	}
}

// VerifyDiscovery fetches the issuer's discovery document and checks it
// names the same issuer.
func VerifyDiscovery(ctx context.Context, issuer string) error {
	if _, err := oidc.NewProvider(ctx, issuer); err != nil {
		return fmt.Errorf("verify discovery for %s: %w", issuer, err)
	}
	return nil
}

// waitReady polls path every interval until it answers with one of ok.
func waitReady(ctx context.Context, c *client, path string, timeout, interval time.Duration, ok ...int) error {
	b := retry.WithMaxDuration(timeout, retry.NewConstant(interval))

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		r, err := c.do(ctx, http.MethodGet, path, nil)
		if r != nil {
			for _, code := range ok {
				if r.StatusCode == code {
					return nil
				}
			}
		}
		if err == nil {
			err = fmt.Errorf("status %d", r.StatusCode)
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		return fmt.Errorf("%s not ready after %s: %w", c.baseURL, timeout, err)
	}
	return nil
}

// Secrets bundle keys read and written by SSO wiring.
const (
	AuthentikTokenKey        = "authentik_bootstrap_token"
	ZitadelMachineKeyKey     = "zitadel_machine_key"
	ZitadelAPITokenKey       = "zitadel_api_token"
	ZitadelAdminUserKey      = "zitadel_admin_username"
	ZitadelAdminPasswordKey  = "zitadel_admin_password"
	NextcloudClientIDKey     = "nextcloud_oidc_client_id"
	NextcloudClientSecretKey = "nextcloud_oidc_client_secret"
)

// FromSecrets builds the provider of the given kind using credentials
// from a client's secrets bundle.
func FromSecrets(kind, baseURL string, bundle map[string]string, hc *http.Client) (Provider, error) {
	switch kind {
	case "authentik":
		token := bundle[AuthentikTokenKey]
		if token == "" {
			return nil, fmt.Errorf("secrets bundle has no %s", AuthentikTokenKey)
		}
		return NewAuthentik(baseURL, token, hc), nil
	case "zitadel":
		raw := bundle[ZitadelMachineKeyKey]
		if raw == "" {
			return nil, fmt.Errorf("secrets bundle has no %s", ZitadelMachineKeyKey)
		}
		key, err := ParseMachineKey([]byte(raw))
		if err != nil {
			return nil, err
		}
		return NewZitadel(baseURL, key, hc), nil
	}
	return nil, fmt.Errorf("unknown identity provider %q", kind)
}
