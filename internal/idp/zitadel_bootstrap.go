package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const (
	zitadelMachineUser = "api-automation"
	zitadelKeyExpiry   = "2030-01-01T00:00:00Z"
	zitadelPATExpiry   = "2099-12-31T23:59:59Z"
)

// ZitadelBootstrap creates the service user that the JWT profile grant in
// Zitadel authenticates as. It runs once per client, before any machine key
// exists, as the instance admin or with a personal access token.
type ZitadelBootstrap struct {
	c    *client
	base string
	hc   *http.Client
	poll time.Duration

	user, password string

	mu    sync.Mutex
	token string
}

// NewZitadelBootstrap prefers a personal access token from the bundle and
// falls back to the admin username and password.
func NewZitadelBootstrap(baseURL string, bundle map[string]string, hc *http.Client) (*ZitadelBootstrap, error) {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	b := &ZitadelBootstrap{hc: hc, poll: zitadelPoll}

	if pat := bundle[ZitadelAPITokenKey]; pat != "" {
		b.c = newClient(baseURL, StaticToken(pat), hc)
	} else {
		b.user, b.password = bundle[ZitadelAdminUserKey], bundle[ZitadelAdminPasswordKey]
		if b.user == "" || b.password == "" {
			return nil, fmt.Errorf("secrets bundle has neither %s nor %s and %s",
				ZitadelAPITokenKey, ZitadelAdminUserKey, ZitadelAdminPasswordKey)
		}
		b.c = newClient(baseURL, b.adminToken, hc)
	}
	b.base = b.c.baseURL
	return b, nil
}

func (b *ZitadelBootstrap) WaitReady(ctx context.Context, timeout time.Duration) error {
	return waitReady(ctx, b.c, "/debug/ready", timeout, b.poll, http.StatusOK)
}

func (b *ZitadelBootstrap) adminToken(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.token != "" {
		return b.token, nil
	}
	tok, _, err := requestToken(ctx, b.hc, b.base, url.Values{
		"grant_type": {"password"},
		"username":   {b.user},
		"password":   {b.password},
		"scope":      {zitadelScope},
	})
	if err != nil {
		return "", fmt.Errorf("admin login: %w", err)
	}
	b.token = tok
	return tok, nil
}

// EnsureMachineUser returns the id of the automation user, creating it if
// needed.
func (b *ZitadelBootstrap) EnsureMachineUser(ctx context.Context) (string, error) {
	var created struct {
		UserID string `json:"userId"`
	}
	err := b.c.post(ctx, "/management/v1/users/machine", map[string]any{
		"userName":        zitadelMachineUser,
		"name":            "API Automation Service",
		"description":     "Service account for automated API operations",
		"accessTokenType": "ACCESS_TOKEN_TYPE_JWT",
	}, &created)
	if err == nil {
		return created.UserID, nil
	}
	if !IsStatus(err, http.StatusConflict) {
		return "", fmt.Errorf("create machine user: %w", err)
	}

	var found struct {
		Result []struct {
			ID string `json:"id"`
		} `json:"result"`
	}
	err = b.c.post(ctx, "/management/v1/users/_search", map[string]any{
		"queries": []any{map[string]any{
			"userNameQuery": map[string]string{
				"userName": zitadelMachineUser,
				"method":   "TEXT_QUERY_METHOD_EQUALS",
			},
		}},
	}, &found)
	if err != nil {
		return "", fmt.Errorf("search machine user: %w", err)
	}
	if len(found.Result) == 0 || found.Result[0].ID == "" {
		return "", fmt.Errorf("machine user %s exists but was not returned by search", zitadelMachineUser)
	}
	return found.Result[0].ID, nil
}

// CreateMachineKey issues a new JSON key for userID and returns the key
// file as Zitadel serves it.
func (b *ZitadelBootstrap) CreateMachineKey(ctx context.Context, userID string) ([]byte, error) {
	var out struct {
		KeyID      string `json:"keyId"`
		KeyDetails []byte `json:"keyDetails"`
	}
	err := b.c.post(ctx, "/management/v1/users/"+userID+"/keys", map[string]string{
		"type":           "KEY_TYPE_JSON",
		"expirationDate": zitadelKeyExpiry,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("create machine key: %w", err)
	}
	if _, err := ParseMachineKey(out.KeyDetails); err != nil {
		return nil, fmt.Errorf("machine key %s: %w", out.KeyID, err)
	}
	return out.KeyDetails, nil
}

func (b *ZitadelBootstrap) CreatePAT(ctx context.Context, userID string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := b.c.post(ctx, "/management/v1/users/"+userID+"/pats", map[string]string{
		"expirationDate": zitadelPATExpiry,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("create personal access token: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("personal access token response has no token")
	}
	return out.Token, nil
}

// GrantProjectOwner makes userID an owner of projectID. An existing
// membership counts as granted.
func (b *ZitadelBootstrap) GrantProjectOwner(ctx context.Context, projectID, userID string) error {
	err := b.c.post(ctx, "/management/v1/projects/"+projectID+"/members", map[string]any{
		"userId": userID,
		"roles":  []string{"PROJECT_OWNER"},
	}, nil)
	if err != nil && !IsStatus(err, http.StatusConflict) {
		return fmt.Errorf("grant project owner: %w", err)
	}
	return nil
}

// Run creates the machine user along with its key and token, and lets it
// own the SSO project. The returned entries belong in the client's secrets
// bundle.
func (b *ZitadelBootstrap) Run(ctx context.Context) (map[string]string, error) {
	userID, err := b.EnsureMachineUser(ctx)
	if err != nil {
		return nil, err
	}
	key, err := b.CreateMachineKey(ctx, userID)
	if err != nil {
		return nil, err
	}
	pat, err := b.CreatePAT(ctx, userID)
	if err != nil {
		return nil, err
	}
	projectID, err := ensureProject(ctx, b.c, zitadelProject)
	if err != nil {
		return nil, err
	}
	if err := b.GrantProjectOwner(ctx, projectID, userID); err != nil {
		return nil, err
	}

	compact, err := compactJSON(key)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		ZitadelMachineKeyKey: compact,
		ZitadelAPITokenKey:   pat,
	}, nil
}

func compactJSON(data []byte) (string, error) {
	var v map[string]any
	if err := json.Unmarshal(data, &v); err != nil {
		return "", fmt.Errorf("parse machine key: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode machine key: %w", err)
	}
	return string(out), nil
}
