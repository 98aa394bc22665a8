// Package sshkey manages the per-client ed25519 key pairs under keys/ssh.
package sshkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"

	"github.com/edvin/clientops/internal/model"
)

// KeyPair locates a client's key files.
type KeyPair struct {
	PrivatePath string
	PublicPath  string
	// AuthorizedKey is the public key in authorized_keys format.
	AuthorizedKey string
}

func Paths(dir, client string) KeyPair {
	priv := filepath.Join(dir, client)
	return KeyPair{PrivatePath: priv, PublicPath: priv + ".pub"}
}

// Exists reports whether the client's private key is on disk.
func Exists(dir, client string) bool {
	if model.ValidateClientName(client) != nil {
		return false
	}
	_, err := os.Stat(Paths(dir, client).PrivatePath)
	return err == nil
}

// Ensure returns the client's key pair, generating it when absent. created is
// true only when a new pair was written.
func Ensure(dir, client string) (kp KeyPair, created bool, err error) {
	if err := model.ValidateClientName(client); err != nil {
		return kp, false, err
	}
	kp = Paths(dir, client)

	if pub, err := os.ReadFile(kp.PublicPath); err == nil {
		if _, err := os.Stat(kp.PrivatePath); err == nil {
			kp.AuthorizedKey = string(pub)
			return kp, false, nil
		}
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return kp, false, fmt.Errorf("sshkey: create dir: %w", err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return kp, false, fmt.Errorf("sshkey: generate key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, client)
	if err != nil {
		return kp, false, fmt.Errorf("sshkey: marshal private key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return kp, false, fmt.Errorf("sshkey: convert public key: %w", err)
	}
	authorized := ssh.MarshalAuthorizedKey(sshPub)

	if err := os.WriteFile(kp.PrivatePath, pem.EncodeToMemory(block), 0o600); err != nil {
		return kp, false, fmt.Errorf("sshkey: write private key: %w", err)
	}
	if err := os.WriteFile(kp.PublicPath, authorized, 0o644); err != nil {
		return kp, false, fmt.Errorf("sshkey: write public key: %w", err)
	}

	kp.AuthorizedKey = string(authorized)
	return kp, true, nil
}

// Remove deletes both key files. Missing files are ignored.
func Remove(dir, client string) error {
	if err := model.ValidateClientName(client); err != nil {
		return err
	}
	kp := Paths(dir, client)
	var errs []error
	for _, p := range []string{kp.PrivatePath, kp.PublicPath} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Signer loads a private key for use as an SSH client identity.
func Signer(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sshkey: read %s: %w", path, err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("sshkey: parse private key: %w", err)
	}
	return signer, nil
}
