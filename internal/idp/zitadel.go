package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	zitadelGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	zitadelScope     = "openid profile email urn:zitadel:iam:org:project:id:zitadel:aud"
	zitadelProject   = "SSO Applications"
	zitadelPoll      = 5 * time.Second
)

// MachineKey is the JSON key file Zitadel issues for a service user.
type MachineKey struct {
	Type   string `json:"type"`
	KeyID  string `json:"keyId"`
	Key    string `json:"key"`
	UserID string `json:"userId"`
}

func ParseMachineKey(data []byte) (MachineKey, error) {
	var k MachineKey
	if err := json.Unmarshal(data, &k); err != nil {
		return MachineKey{}, fmt.Errorf("parse machine key: %w", err)
	}
	if k.KeyID == "" || k.Key == "" || k.UserID == "" {
		return MachineKey{}, fmt.Errorf("machine key is missing keyId, key or userId")
	}
	return k, nil
}

// Zitadel talks to the Zitadel management API, authenticating with a
// JWT profile grant.
type Zitadel struct {
	c    *client
	base string
	key  MachineKey
	hc   *http.Client
	now  func() time.Time
	poll time.Duration

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewZitadel(baseURL string, key MachineKey, hc *http.Client) *Zitadel {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	z := &Zitadel{key: key, hc: hc, now: time.Now, poll: zitadelPoll}
	z.c = newClient(baseURL, z.accessToken, hc)
	z.base = z.c.baseURL
	return z
}

func (z *Zitadel) Kind() string { return "zitadel" }

func (z *Zitadel) WaitReady(ctx context.Context, timeout time.Duration) error {
	return waitReady(ctx, z.c, "/debug/ready", timeout, z.poll, http.StatusOK)
}

// Assertion signs the JWT presented to the token endpoint.
func (z *Zitadel) Assertion() (string, error) {
	priv, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(z.key.Key))
	if err != nil {
		return "", fmt.Errorf("parse machine key: %w", err)
	}
	now := z.now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Issuer:    z.key.UserID,
		Subject:   z.key.UserID,
		Audience:  jwt.ClaimStrings{z.base},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	})
	token.Header["kid"] = z.key.KeyID
	signed, err := token.SignedString(priv)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return signed, nil
}

func (z *Zitadel) accessToken(ctx context.Context) (string, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	if z.token != "" && z.now().Before(z.expires) {
		return z.token, nil
	}

	assertion, err := z.Assertion()
	if err != nil {
		return "", err
	}
	tok, ttl, err := requestToken(ctx, z.hc, z.base, url.Values{
		"grant_type": {zitadelGrantType},
		"assertion":  {assertion},
		"scope":      {zitadelScope},
	})
	if err != nil {
		return "", err
	}
	z.token = tok
	z.expires = z.now().Add(ttl - time.Minute)
	return z.token, nil
}

// requestToken posts form to the token endpoint and returns the access
// token with its lifetime.
func requestToken(ctx context.Context, hc *http.Client, base string, form url.Values) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/oauth/v2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := hc.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", 0, &StatusError{Method: http.MethodPost, Path: "/oauth/v2/token", Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", 0, fmt.Errorf("parse token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", 0, fmt.Errorf("token response has no access_token")
	}
	ttl := time.Duration(tok.ExpiresIn) * time.Second
	if ttl <= time.Minute {
		ttl = 5 * time.Minute
	}
	return tok.AccessToken, ttl, nil
}
type zitadelProjectRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EnsureProject returns the id of the named project, creating it if needed.
func (z *Zitadel) EnsureProject(ctx context.Context, name string) (string, error) {
	return ensureProject(ctx, z.c, name)
}

// ensureProject falls back to searching when creation is refused: 409 means
// the project exists, 403 means the caller may own projects but not create
// them.
func ensureProject(ctx context.Context, c *client, name string) (string, error) {
	var created zitadelProjectRef
	err := c.post(ctx, "/management/v1/projects", map[string]string{"name": name}, &created)
	if err == nil {
		return created.ID, nil
	}
	if !IsStatus(err, http.StatusConflict) && !IsStatus(err, http.StatusForbidden) {
		return "", fmt.Errorf("create project %s: %w", name, err)
	}

	var found struct {
		Result []zitadelProjectRef `json:"result"`
	}
	if err := c.post(ctx, "/management/v1/projects/_search", map[string]any{}, &found); err != nil {
		return "", fmt.Errorf("search projects: %w", err)
	}
	for _, p := range found.Result {
		if p.Name == name {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("project %s exists but was not returned by search", name)
}

type zitadelApp struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (z *Zitadel) findApp(ctx context.Context, projectID, name string) (string, error) {
	var found struct {
		Result []zitadelApp `json:"result"`
	}
	if err := z.c.post(ctx, "/management/v1/projects/"+projectID+"/apps/_search", map[string]any{}, &found); err != nil {
		return "", fmt.Errorf("search apps: %w", err)
	}
	for _, a := range found.Result {
		if a.Name == name {
			return a.ID, nil
		}
	}
	return "", nil
}

// CreateOIDCApp registers a web application using the code flow.
func (z *Zitadel) CreateOIDCApp(ctx context.Context, projectID string, app App) (Credentials, error) {
	logout := app.RedirectURI
	if i := strings.LastIndex(logout, "/"); i >= 0 {
		logout = logout[:i+1]
	}
	var out struct {
		AppID        string `json:"appId"`
		ClientID     string `json:"clientId"`
		ClientSecret string `json:"clientSecret"`
	}
	err := z.c.post(ctx, "/management/v1/projects/"+projectID+"/apps/oidc", map[string]any{
		"name":                     app.Name,
		"redirectUris":             []string{app.RedirectURI},
		"responseTypes":            []string{"OIDC_RESPONSE_TYPE_CODE"},
		"grantTypes":               []string{"OIDC_GRANT_TYPE_AUTHORIZATION_CODE", "OIDC_GRANT_TYPE_REFRESH_TOKEN"},
		"appType":                  "OIDC_APP_TYPE_WEB",
		"authMethodType":           "OIDC_AUTH_METHOD_TYPE_BASIC",
		"postLogoutRedirectUris":   []string{logout},
		"version":                  "OIDC_VERSION_1_0",
		"devMode":                  false,
		"accessTokenType":          "OIDC_TOKEN_TYPE_BEARER",
		"accessTokenRoleAssertion": true,
		"idTokenRoleAssertion":     true,
		"idTokenUserinfoAssertion": true,
		"clockSkew":                "0s",
	}, &out)
	if err != nil {
		return Credentials{}, fmt.Errorf("create oidc app %s: %w", app.Name, err)
	}
	return Credentials{
		ClientID:     out.ClientID,
		ClientSecret: out.ClientSecret,
		Issuer:       z.base,
		DiscoveryURI: z.base + "/.well-known/openid-configuration",
	}, nil
}

// EnsureOIDCApp recreates the app so a fresh client secret is returned;
// Zitadel only reveals the secret at creation time.
func (z *Zitadel) EnsureOIDCApp(ctx context.Context, app App) (Credentials, error) {
	projectID, err := z.EnsureProject(ctx, zitadelProject)
	if err != nil {
		return Credentials{}, err
	}
	existing, err := z.findApp(ctx, projectID, app.Name)
	if err != nil {
		return Credentials{}, err
	}
	if existing != "" {
		if err := z.c.delete(ctx, "/management/v1/projects/"+projectID+"/apps/"+existing); err != nil {
			return Credentials{}, fmt.Errorf("delete app %s: %w", existing, err)
		}
	}
	return z.CreateOIDCApp(ctx, projectID, app)
}
