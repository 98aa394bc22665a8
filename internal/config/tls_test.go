package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPKI struct {
	cert, key, ca string
}

// newTestPKI writes a CA and a client certificate it signed into a temp dir.
func newTestPKI(t *testing.T) testPKI {
	t.Helper()
	dir := t.TempDir()

	caPub, caPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	ca := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "clientops test CA"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, ca, ca, caPub, caPriv)
	require.NoError(t, err)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	leaf := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "clientctl"},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leaf, ca, pub, caPriv)
	require.NoError(t, err)
	keyDER, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)

	p := testPKI{
		cert: filepath.Join(dir, "client.pem"),
		key:  filepath.Join(dir, "client-key.pem"),
		ca:   filepath.Join(dir, "ca.pem"),
	}
	writePEM(t, p.cert, "CERTIFICATE", leafDER)
	writePEM(t, p.key, "PRIVATE KEY", keyDER)
	writePEM(t, p.ca, "CERTIFICATE", caDER)
	return p
}

func writePEM(t *testing.T, path, blockType string, der []byte) {
	t.Helper()
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestTemporalTLS_Plaintext(t *testing.T) {
	tlsCfg, err := (&Config{}).TemporalTLS()
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)
}

func TestTemporalTLS(t *testing.T) {
	pki := newTestPKI(t)
	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a certificate"), 0o600))

	for _, tc := range []struct {
		name    string
		cfg     Config
		wantErr string
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name: "client cert only",
			cfg:  Config{TemporalTLSCert: pki.cert, TemporalTLSKey: pki.key},
			check: func(t *testing.T, cfg *Config) {
				tlsCfg, _ := cfg.TemporalTLS()
				assert.Len(t, tlsCfg.Certificates, 1)
				assert.Nil(t, tlsCfg.RootCAs)
			},
		},
		{
			name: "with CA and server name",
			cfg: Config{
				TemporalTLSCert:       pki.cert,
				TemporalTLSKey:        pki.key,
				TemporalTLSCACert:     pki.ca,
				TemporalTLSServerName: "temporal.ops.internal",
			},
			check: func(t *testing.T, cfg *Config) {
				tlsCfg, _ := cfg.TemporalTLS()
				assert.NotNil(t, tlsCfg.RootCAs)
				assert.Equal(t, "temporal.ops.internal", tlsCfg.ServerName)
			},
		},
		{
			name:    "missing key pair",
			cfg:     Config{TemporalTLSCert: "/nonexistent/client.pem", TemporalTLSKey: "/nonexistent/key.pem"},
			wantErr: "load temporal client certificate",
		},
		{
			name:    "missing CA file",
			cfg:     Config{TemporalTLSCert: pki.cert, TemporalTLSKey: pki.key, TemporalTLSCACert: "/nonexistent/ca.pem"},
			wantErr: "read temporal CA",
		},
		{
			name:    "CA without certificates",
			cfg:     Config{TemporalTLSCert: pki.cert, TemporalTLSKey: pki.key, TemporalTLSCACert: garbage},
			wantErr: "no certificates in temporal CA",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tlsCfg, err := tc.cfg.TemporalTLS()
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, tlsCfg)
			tc.check(t, &tc.cfg)
		})
	}
}

func TestTemporalOptions_Plaintext(t *testing.T) {
	cfg := &Config{TemporalAddress: "temporal:7233", TemporalNamespace: "ops"}
	opts, err := cfg.TemporalOptions()
	require.NoError(t, err)
	assert.Equal(t, "temporal:7233", opts.HostPort)
	assert.Equal(t, "ops", opts.Namespace)
	assert.Nil(t, opts.ConnectionOptions.TLS)
}

func TestTemporalOptions_MTLS(t *testing.T) {
	pki := newTestPKI(t)
	cfg := &Config{
		TemporalAddress:   "temporal:7233",
		TemporalTLSCert:   pki.cert,
		TemporalTLSKey:    pki.key,
		TemporalTLSCACert: pki.ca,
	}
	opts, err := cfg.TemporalOptions()
	require.NoError(t, err)
	require.NotNil(t, opts.ConnectionOptions.TLS)
	assert.Len(t, opts.ConnectionOptions.TLS.Certificates, 1)
	assert.NotNil(t, opts.ConnectionOptions.TLS.RootCAs)
}
