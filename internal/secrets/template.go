package secrets

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/edvin/clientops/internal/model"
)

// Template placeholders.
const (
	placeholderClient   = "CLIENT_NAME"
	placeholderDomain   = "BASE_DOMAIN"
	placeholderGenerate = "GENERATE"
	placeholderChangeMe = "CHANGEME"
)

// CreateFromTemplate builds a client's bundle from the template: client and
// domain placeholders are substituted and every GENERATE/CHANGEME value gets
// a fresh random credential. It returns the names of generated keys.
func (a *Accessor) CreateFromTemplate(ctx context.Context, client, baseDomain string) ([]string, error) {
	if err := checkClient(client); err != nil {
		return nil, err
	}
	if a.Exists(client) {
		return nil, fmt.Errorf("secrets for %s already exist at %s", client, a.ClientFile(client))
	}
	if _, err := os.Stat(a.TemplateFile()); errors.Is(err, os.ErrNotExist) {
		return nil, &model.PreconditionError{
			Kind:   model.MissingSecrets,
			Client: client,
			Detail: "template " + a.TemplateFile() + " does not exist",
		}
	}

	tmpl, err := a.decrypt(ctx, a.TemplateFile())
	if err != nil {
		return nil, err
	}

	bundle, generated, err := Render(tmpl, client, baseDomain)
	if err != nil {
		return nil, err
	}
	if err := a.Write(ctx, client, bundle); err != nil {
		return nil, err
	}
	return generated, nil
}

// Render applies placeholder substitution and credential generation to a
// template bundle.
func Render(tmpl Bundle, client, baseDomain string) (Bundle, []string, error) {
	out := make(Bundle, len(tmpl))
	var generated []string

	for _, key := range tmpl.Keys() {
		value := tmpl[key]
		switch strings.TrimSpace(value) {
		case placeholderGenerate, placeholderChangeMe:
			length := 32
			if isTokenKey(key) {
				length = 48
			}
			secret, err := GeneratePassword(length)
			if err != nil {
				return nil, nil, fmt.Errorf("generate %s: %w", key, err)
			}
			out[key] = secret
			generated = append(generated, key)
			continue
		}

		value = strings.ReplaceAll(value, placeholderClient, client)
		value = strings.ReplaceAll(value, placeholderDomain, baseDomain)
		out[key] = value
	}

	out["client_name"] = client
	return out, generated, nil
}

func isTokenKey(key string) bool {
	return strings.Contains(key, "token") || strings.Contains(key, "secret_key")
}

// GeneratePassword returns a URL-safe random string of exactly length chars.
func GeneratePassword(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid password length %d", length)
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf)[:length], nil
}
