// Package secrets reads and writes the SOPS-encrypted credential bundles,
// one per client plus a shared bundle.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"filippo.io/age"
	"gopkg.in/yaml.v3"

	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/toolexec"
)

// Bundle is a decrypted secrets document.
type Bundle map[string]string

// Keys returns the bundle's key names in sorted order.
func (b Bundle) Keys() []string {
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Accessor handles the encrypted files under a secrets directory.
type Accessor struct {
	dir        string
	sopsBin    string
	ageKeyFile string
	runner     toolexec.Runner
}

func NewAccessor(dir, sopsBin, ageKeyFile string, runner toolexec.Runner) *Accessor {
	if runner == nil {
		runner = toolexec.OSRunner{}
	}
	return &Accessor{dir: dir, sopsBin: sopsBin, ageKeyFile: ageKeyFile, runner: runner}
}

// ClientFile returns the path to a client's encrypted bundle.
func (a *Accessor) ClientFile(client string) string {
	return filepath.Join(a.dir, "clients", client+".sops.yaml")
}

// checkClient rejects names that would resolve outside clients/ or onto
// the template bundle.
func checkClient(client string) error {
	if err := model.ValidateClientName(client); err != nil {
		return err
	}
	if client == templateName {
		return &model.PreconditionError{
			Kind:   model.InvalidClientName,
			Client: client,
			Detail: "the name is reserved for the secrets template",
		}
	}
	return nil
}

const templateName = "template"

func (a *Accessor) TemplateFile() string {
	return filepath.Join(a.dir, "clients", templateName+".sops.yaml")
}

func (a *Accessor) SharedFile() string {
	return filepath.Join(a.dir, "shared.sops.yaml")
}

func (a *Accessor) configFile() string {
	return filepath.Join(filepath.Dir(a.dir), ".sops.yaml")
}

// CheckKey verifies the age identity used for decryption is present and
// parses. A missing key is fatal.
func (a *Accessor) CheckKey() error {
	if a.ageKeyFile == "" {
		return &model.PreconditionError{
			Kind:   model.MissingEnv,
			Detail: "SOPS_AGE_KEY_FILE is not set",
			Remedy: "export SOPS_AGE_KEY_FILE=/path/to/keys.txt",
		}
	}
	f, err := os.Open(a.ageKeyFile)
	if err != nil {
		return &model.PreconditionError{
			Kind:   model.MissingAgeKey,
			Detail: fmt.Sprintf("open %s: %v", a.ageKeyFile, err),
			Remedy: "restore the age private key from the password manager",
		}
	}
	defer f.Close()

	ids, err := age.ParseIdentities(f)
	if err != nil || len(ids) == 0 {
		return &model.PreconditionError{
			Kind:   model.MissingAgeKey,
			Detail: fmt.Sprintf("%s holds no usable age identity", a.ageKeyFile),
		}
	}
	return nil
}

// Exists reports whether a client's bundle is present. Malformed names
// never exist.
func (a *Accessor) Exists(client string) bool {
	if checkClient(client) != nil {
		return false
	}
	_, err := os.Stat(a.ClientFile(client))
	return err == nil
}

// Read decrypts a client's bundle.
func (a *Accessor) Read(ctx context.Context, client string) (Bundle, error) {
	if err := checkClient(client); err != nil {
		return nil, err
	}
	path := a.ClientFile(client)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, &model.PreconditionError{
			Kind:   model.MissingSecrets,
			Client: client,
			Detail: path + " does not exist",
			Remedy: "run: clientctl secrets init " + client,
		}
	}
	return a.decrypt(ctx, path)
}

// Shared decrypts the bundle shared by all clients.
func (a *Accessor) Shared(ctx context.Context) (Bundle, error) {
	return a.decrypt(ctx, a.SharedFile())
}

// Write encrypts b into the client's bundle, replacing it.
func (a *Accessor) Write(ctx context.Context, client string, b Bundle) error {
	if err := checkClient(client); err != nil {
		return err
	}
	path := a.ClientFile(client)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create secrets dir: %w", err)
	}
	return a.encrypt(ctx, path, b)
}

// Set merges updates into the client's bundle.
func (a *Accessor) Set(ctx context.Context, client string, updates map[string]string) error {
	existing, err := a.Read(ctx, client)
	if err != nil {
		return err
	}
	for k, v := range updates {
		existing[k] = v
	}
	return a.Write(ctx, client, existing)
}

// Remove deletes a client's bundle. A missing file is not an error.
func (a *Accessor) Remove(client string) error {
	if err := checkClient(client); err != nil {
		return err
	}
	if err := os.Remove(a.ClientFile(client)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove secrets: %w", err)
	}
	return nil
}

func (a *Accessor) env() []string {
	if a.ageKeyFile == "" {
		return nil
	}
	return []string{"SOPS_AGE_KEY_FILE=" + a.ageKeyFile}
}

func (a *Accessor) decrypt(ctx context.Context, path string) (Bundle, error) {
	if err := a.CheckKey(); err != nil {
		return nil, err
	}

	out, err := a.runner.Run(ctx, toolexec.Command{
		Name: a.sopsBin,
		Args: []string{"--decrypt", "--output-type", "yaml", path},
		Env:  a.env(),
	})
	if err != nil {
		return nil, fmt.Errorf("sops decrypt %s: %w", filepath.Base(path), err)
	}

	b := Bundle{}
	if err := yaml.Unmarshal(out, &b); err != nil {
		return nil, fmt.Errorf("unmarshal secrets %s: %w", filepath.Base(path), err)
	}
	return b, nil
}

// encrypt writes plaintext to a 0600 temp file next to path, encrypts it
// with path's creation rules and removes the temp file.
func (a *Accessor) encrypt(ctx context.Context, path string, b Bundle) error {
	if err := a.CheckKey(); err != nil {
		return err
	}

	plain, err := yaml.Marshal(map[string]string(b))
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".plain-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(plain); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	args := []string{"--encrypt", "--input-type", "yaml", "--output-type", "yaml", "--filename-override", path}
	if _, err := os.Stat(a.configFile()); err == nil {
		args = append([]string{"--config", a.configFile()}, args...)
	}
	args = append(args, tmp.Name())

	encrypted, err := a.runner.Run(ctx, toolexec.Command{Name: a.sopsBin, Args: args, Env: a.env()})
	if err != nil {
		return fmt.Errorf("sops encrypt %s: %w", filepath.Base(path), err)
	}

	return os.WriteFile(path, encrypted, 0o600)
}
