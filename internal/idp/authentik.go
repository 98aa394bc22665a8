package idp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	authentikAPI        = "/api/v3"
	authentikPoll       = 5 * time.Second
	mfaValidationStage  = "default-authentication-mfa-validation"
	defaultAuthzFlow    = "default-authorization-flow"
	defaultInvalidation = "default-provider-invalidation-flow"
	recoveryFlowSlug    = "recovery-flow"
	invitationStage     = "default-enrollment-invitation"
)

// Authentik talks to the Authentik REST API with a bootstrap token.
type Authentik struct {
	c    *client
	base string
	poll time.Duration
}

func NewAuthentik(baseURL, token string, hc *http.Client) *Authentik {
	c := newClient(baseURL, StaticToken(token), hc)
	return &Authentik{c: c, base: c.baseURL, poll: authentikPoll}
}

func (a *Authentik) Kind() string { return "authentik" }

// WaitReady polls the root page until Authentik answers 200 or 302.
func (a *Authentik) WaitReady(ctx context.Context, timeout time.Duration) error {
	return waitReady(ctx, a.c, "/", timeout, a.poll, http.StatusOK, http.StatusFound)
}

type page[T any] struct {
	Results []T `json:"results"`
}

type flow struct {
	PK          string `json:"pk"`
	Slug        string `json:"slug"`
	Designation string `json:"designation"`
}

func (a *Authentik) flows(ctx context.Context) ([]flow, error) {
	var p page[flow]
	if err := a.c.get(ctx, authentikAPI+"/flows/instances/?page_size=200", &p); err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	return p.Results, nil
}

func pickFlow(flows []flow, slug, designation string) (string, error) {
	f, err := findFlow(flows, slug, designation)
	return f.PK, err
}

// findFlow prefers the flow with slug and falls back to the first flow
// with designation.
func findFlow(flows []flow, slug, designation string) (flow, error) {
	for _, f := range flows {
		if slug != "" && f.Slug == slug {
			return f, nil
		}
	}
	for _, f := range flows {
		if f.Designation == designation {
			return f, nil
		}
	}
	return flow{}, fmt.Errorf("no %s flow found", designation)
}

// DefaultAuthorizationFlow returns the pk of the default authorization
// flow, falling back to any flow with the authorization designation.
func (a *Authentik) DefaultAuthorizationFlow(ctx context.Context) (string, error) {
	flows, err := a.flows(ctx)
	if err != nil {
		return "", err
	}
	return pickFlow(flows, defaultAuthzFlow, "authorization")
}

func (a *Authentik) DefaultInvalidationFlow(ctx context.Context) (string, error) {
	flows, err := a.flows(ctx)
	if err != nil {
		return "", err
	}
	return pickFlow(flows, defaultInvalidation, "invalidation")
}

// DefaultSigningKey returns the first certificate key pair.
func (a *Authentik) DefaultSigningKey(ctx context.Context) (string, error) {
	var p page[struct {
		PK string `json:"pk"`
	}]
	if err := a.c.get(ctx, authentikAPI+"/crypto/certificatekeypairs/", &p); err != nil {
		return "", fmt.Errorf("list certificate key pairs: %w", err)
	}
	if len(p.Results) == 0 {
		return "", fmt.Errorf("no certificate key pair found")
	}
	return p.Results[0].PK, nil
}

type oauth2Provider struct {
	PK           int    `json:"pk"`
	Name         string `json:"name"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type application struct {
	PK   string `json:"pk"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// removeExisting deletes any application and provider left over from an
// earlier run so the new secret is the only one in force.
func (a *Authentik) removeExisting(ctx context.Context, app App) error {
	var apps page[application]
	if err := a.c.get(ctx, authentikAPI+"/core/applications/?slug="+url.QueryEscape(app.Slug), &apps); err != nil {
		return fmt.Errorf("list applications: %w", err)
	}
	for _, existing := range apps.Results {
		if existing.Slug != app.Slug {
			continue
		}
		if err := a.c.delete(ctx, authentikAPI+"/core/applications/"+existing.Slug+"/"); err != nil {
			return fmt.Errorf("delete application %s: %w", existing.Slug, err)
		}
	}

	var providers page[oauth2Provider]
	if err := a.c.get(ctx, authentikAPI+"/providers/oauth2/?name="+url.QueryEscape(app.Name), &providers); err != nil {
		return fmt.Errorf("list providers: %w", err)
	}
	for _, p := range providers.Results {
		if p.Name != app.Name {
			continue
		}
		if err := a.c.delete(ctx, fmt.Sprintf("%s/providers/oauth2/%d/", authentikAPI, p.PK)); err != nil {
			return fmt.Errorf("delete provider %d: %w", p.PK, err)
		}
	}
	return nil
}

// EnsureOIDCApp (re)creates a confidential OAuth2 provider and the
// application bound to it.
func (a *Authentik) EnsureOIDCApp(ctx context.Context, app App) (Credentials, error) {
	authz, err := a.DefaultAuthorizationFlow(ctx)
	if err != nil {
		return Credentials{}, err
	}
	invalidation, err := a.DefaultInvalidationFlow(ctx)
	if err != nil {
		return Credentials{}, err
	}
	key, err := a.DefaultSigningKey(ctx)
	if err != nil {
		return Credentials{}, err
	}
	if err := a.removeExisting(ctx, app); err != nil {
		return Credentials{}, err
	}

	var p oauth2Provider
	err = a.c.post(ctx, authentikAPI+"/providers/oauth2/", map[string]any{
		"name":                       app.Name,
		"authorization_flow":         authz,
		"invalidation_flow":          invalidation,
		"client_type":                "confidential",
		"redirect_uris":              []map[string]string{{"matching_mode": "strict", "url": app.RedirectURI}},
		"signing_key":                key,
		"sub_mode":                   "hashed_user_id",
		"include_claims_in_id_token": true,
	}, &p)
	if err != nil {
		return Credentials{}, fmt.Errorf("create provider: %w", err)
	}

	err = a.c.post(ctx, authentikAPI+"/core/applications/", map[string]any{
		"name":            app.Name,
		"slug":            app.Slug,
		"provider":        p.PK,
		"meta_launch_url": app.LaunchURL,
	}, nil)
	if err != nil {
		return Credentials{}, fmt.Errorf("create application: %w", err)
	}

	issuer := fmt.Sprintf("%s/application/o/%s/", a.base, app.Slug)
	return Credentials{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		Issuer:       issuer,
		DiscoveryURI: issuer + ".well-known/openid-configuration",
	}, nil
}

type stage struct {
	PK   string `json:"pk"`
	Name string `json:"name"`
}

// EnforceTOTP makes the MFA validation stage send users without an
// authenticator through TOTP setup.
func (a *Authentik) EnforceTOTP(ctx context.Context) error {
	var validate page[stage]
	if err := a.c.get(ctx, authentikAPI+"/stages/authenticator/validate/", &validate); err != nil {
		return fmt.Errorf("list validation stages: %w", err)
	}
	var target *stage
	for i := range validate.Results {
		if strings.Contains(validate.Results[i].Name, mfaValidationStage) {
			target = &validate.Results[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("stage %s not found", mfaValidationStage)
	}

	var totp page[stage]
	if err := a.c.get(ctx, authentikAPI+"/stages/authenticator/totp/", &totp); err != nil {
		return fmt.Errorf("list totp stages: %w", err)
	}
	var setup *stage
	for i := range totp.Results {
		if strings.Contains(strings.ToLower(totp.Results[i].Name), "setup") {
			setup = &totp.Results[i]
			break
		}
	}
	if setup == nil {
		return fmt.Errorf("no totp setup stage found")
	}

	err := a.c.patch(ctx, authentikAPI+"/stages/authenticator/validate/"+target.PK+"/", map[string]any{
		"not_configured_action": "configure",
		"configuration_stages":  []string{setup.PK},
	}, nil)
	if err != nil {
		return fmt.Errorf("update %s: %w", target.Name, err)
	}
	return nil
}

type brand struct {
	UUID         string `json:"brand_uuid"`
	Default      bool   `json:"default"`
	FlowRecovery string `json:"flow_recovery"`
}

// EnsureRecoveryFlow makes the password recovery flow the default brand's
// recovery flow so the login page offers a reset link. It returns the
// flow's slug.
func (a *Authentik) EnsureRecoveryFlow(ctx context.Context) (string, error) {
	flows, err := a.flows(ctx)
	if err != nil {
		return "", err
	}
	recovery, err := findFlow(flows, recoveryFlowSlug, "recovery")
	if err != nil {
		return "", err
	}

	var brands page[brand]
	if err := a.c.get(ctx, authentikAPI+"/core/brands/", &brands); err != nil {
		return "", fmt.Errorf("list brands: %w", err)
	}
	for _, b := range brands.Results {
		if !b.Default || b.FlowRecovery == recovery.PK {
			continue
		}
		err := a.c.patch(ctx, authentikAPI+"/core/brands/"+b.UUID+"/", map[string]any{"flow_recovery": recovery.PK}, nil)
		if err != nil {
			return "", fmt.Errorf("set recovery flow on brand %s: %w", b.UUID, err)
		}
	}
	return recovery.Slug, nil
}

type binding struct {
	PK    string `json:"pk"`
	Stage string `json:"stage"`
	Order int    `json:"order"`
}

// EnsureInvitationFlow puts an invitation stage first in the enrollment
// flow. Enrollment without an invitation still continues. It returns the
// enrollment flow's slug.
func (a *Authentik) EnsureInvitationFlow(ctx context.Context) (string, error) {
	flows, err := a.flows(ctx)
	if err != nil {
		return "", err
	}
	enrollment, err := findFlow(flows, "", "enrollment")
	if err != nil {
		return "", err
	}

	var stages page[stage]
	if err := a.c.get(ctx, authentikAPI+"/stages/invitation/?name="+url.QueryEscape(invitationStage), &stages); err != nil {
		return "", fmt.Errorf("list invitation stages: %w", err)
	}
	var st *stage
	for i := range stages.Results {
		if stages.Results[i].Name == invitationStage {
			st = &stages.Results[i]
			break
		}
	}
	if st == nil {
		st = &stage{}
		err := a.c.post(ctx, authentikAPI+"/stages/invitation/", map[string]any{
			"name":                             invitationStage,
			"continue_flow_without_invitation": true,
		}, st)
		if err != nil {
			return "", fmt.Errorf("create invitation stage: %w", err)
		}
	}

	var bindings page[binding]
	if err := a.c.get(ctx, authentikAPI+"/flows/bindings/?target="+url.QueryEscape(enrollment.PK), &bindings); err != nil {
		return "", fmt.Errorf("list bindings of %s: %w", enrollment.Slug, err)
	}
	for _, b := range bindings.Results {
		if b.Stage == st.PK {
			return enrollment.Slug, nil
		}
	}

	err = a.c.post(ctx, authentikAPI+"/flows/bindings/", map[string]any{
		"target":               enrollment.PK,
		"stage":                st.PK,
		"order":                0,
		"evaluate_on_plan":     true,
		"re_evaluate_policies": false,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("bind invitation stage to %s: %w", enrollment.Slug, err)
	}
	return enrollment.Slug, nil
}
