package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TokenSource yields the bearer token for each request.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) { return token, nil }
}

type client struct {
	baseURL string
	token   TokenSource
	hc      *http.Client
}

type response struct {
	StatusCode int
	Body       json.RawMessage
}

// StatusError is returned for any 4xx/5xx answer.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == code
}

func newClient(baseURL string, token TokenSource, hc *http.Client) *client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	// Readiness checks need to see redirects rather than follow them.
	c := *hc
	c.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	return &client{baseURL: strings.TrimRight(baseURL, "/"), token: token, hc: &c}
}

func (c *client) get(ctx context.Context, path string, out any) error {
	return c.decode(c.do(ctx, http.MethodGet, path, nil))(out)
}

func (c *client) post(ctx context.Context, path string, body, out any) error {
	return c.decode(c.do(ctx, http.MethodPost, path, body))(out)
}

func (c *client) patch(ctx context.Context, path string, body, out any) error {
	return c.decode(c.do(ctx, http.MethodPatch, path, body))(out)
}

func (c *client) delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, path, nil)
	return err
}

func (c *client) decode(r *response, err error) func(out any) error {
	return func(out any) error {
		if err != nil {
			return err
		}
		if out == nil || len(r.Body) == 0 {
			return nil
		}
		if err := json.Unmarshal(r.Body, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		return nil
	}
}

func (c *client) do(ctx context.Context, method, path string, body any) (*response, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != nil {
		tok, err := c.token(ctx)
		if err != nil {
			return nil, fmt.Errorf("obtain token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	r := &response{StatusCode: resp.StatusCode, Body: json.RawMessage(respBody)}
	if resp.StatusCode >= 400 {
		return r, &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return r, nil
}
