package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	// Root is the operations checkout holding tofu/, ansible/, secrets/ and keys/.
	Root string

	HCloudToken    string
	SOPSAgeKeyFile string

	TofuBin            string
	AnsiblePlaybookBin string
	SOPSBin            string

	BaseDomain string
	IDP        string
	SSHUser    string

	RegistryDSN string

	TemporalAddress       string
	TemporalNamespace     string
	TemporalTLSCert       string
	TemporalTLSKey        string
	TemporalTLSCACert     string
	TemporalTLSServerName string
	TaskQueue             string

	HTTPListenAddr string
	MetricsAddr    string
	LogLevel       string

	BackupS3Endpoint  string
	BackupS3Bucket    string
	BackupS3AccessKey string
	BackupS3SecretKey string
	BackupS3Region    string
}

func Load() (*Config, error) {
	cfg := &Config{
		Root:                  getEnv("CLIENTOPS_ROOT", "."),
		HCloudToken:           getEnv("HCLOUD_TOKEN", ""),
		SOPSAgeKeyFile:        getEnv("SOPS_AGE_KEY_FILE", ""),
		TofuBin:               getEnv("TOFU_BIN", "tofu"),
		AnsiblePlaybookBin:    getEnv("ANSIBLE_PLAYBOOK_BIN", "ansible-playbook"),
		SOPSBin:               getEnv("SOPS_BIN", "sops"),
		BaseDomain:            getEnv("BASE_DOMAIN", "vrije.cloud"),
		IDP:                   getEnv("IDP", "authentik"),
		SSHUser:               getEnv("SSH_USER", "root"),
		RegistryDSN:           getEnv("REGISTRY_DSN", "badger://.clientops/registry"),
		TemporalAddress:       getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalNamespace:     getEnv("TEMPORAL_NAMESPACE", "default"),
		TemporalTLSCert:       getEnv("TEMPORAL_TLS_CERT", ""),
		TemporalTLSKey:        getEnv("TEMPORAL_TLS_KEY", ""),
		TemporalTLSCACert:     getEnv("TEMPORAL_TLS_CA_CERT", ""),
		TemporalTLSServerName: getEnv("TEMPORAL_TLS_SERVER_NAME", ""),
		TaskQueue:             getEnv("TASK_QUEUE", "clientops"),
		HTTPListenAddr:        getEnv("HTTP_LISTEN_ADDR", ":8091"),
		MetricsAddr:           getEnv("METRICS_ADDR", ""),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		BackupS3Endpoint:      getEnv("BACKUP_S3_ENDPOINT", ""),
		BackupS3Bucket:        getEnv("BACKUP_S3_BUCKET", ""),
		BackupS3AccessKey:     getEnv("BACKUP_S3_ACCESS_KEY", ""),
		BackupS3SecretKey:     getEnv("BACKUP_S3_SECRET_KEY", ""),
		BackupS3Region:        getEnv("BACKUP_S3_REGION", "eu-central"),
	}

	if cfg.IDP != "authentik" && cfg.IDP != "zitadel" {
		return nil, fmt.Errorf("IDP must be authentik or zitadel, got %q", cfg.IDP)
	}

	return cfg, nil
}

// Validate checks that the variables a component needs are present.
// Components: "lifecycle", "secrets", "cloud", "worker", "backup".
func (c *Config) Validate(component string) error {
	var missing []string
	require := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}

	switch component {
	case "lifecycle", "worker":
		require("HCLOUD_TOKEN", c.HCloudToken)
		require("SOPS_AGE_KEY_FILE", c.SOPSAgeKeyFile)
		require("TEMPORAL_ADDRESS", c.TemporalAddress)
		require("REGISTRY_DSN", c.RegistryDSN)
		if component == "worker" {
			require("HTTP_LISTEN_ADDR", c.HTTPListenAddr)
		}
	case "secrets":
		require("SOPS_AGE_KEY_FILE", c.SOPSAgeKeyFile)
	case "cloud":
		require("HCLOUD_TOKEN", c.HCloudToken)
	case "backup":
		require("BACKUP_S3_ENDPOINT", c.BackupS3Endpoint)
		require("BACKUP_S3_BUCKET", c.BackupS3Bucket)
		require("BACKUP_S3_ACCESS_KEY", c.BackupS3AccessKey)
		require("BACKUP_S3_SECRET_KEY", c.BackupS3SecretKey)
	case "registry":
		require("REGISTRY_DSN", c.RegistryDSN)
	default:
		return fmt.Errorf("unknown component %q", component)
	}

	if (c.TemporalTLSCert == "") != (c.TemporalTLSKey == "") {
		missing = append(missing, "TEMPORAL_TLS_CERT and TEMPORAL_TLS_KEY must both be set")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration for %s: %s", component, strings.Join(missing, ", "))
	}
	return nil
}

// Path joins elem onto the operations root.
func (c *Config) Path(elem ...string) string {
	return filepath.Join(append([]string{c.Root}, elem...)...)
}

func (c *Config) TofuDir() string        { return c.Path("tofu") }
func (c *Config) AnsibleDir() string     { return c.Path("ansible") }
func (c *Config) SecretsDir() string     { return c.Path("secrets") }
func (c *Config) SSHKeysDir() string     { return c.Path("keys", "ssh") }
func (c *Config) LegacyRegistry() string { return c.Path("clients", "registry.yml") }

// DeclarationsFile is the provisioning variables file holding the clients map.
func (c *Config) DeclarationsFile() string { return c.Path("tofu", "terraform.tfvars") }

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
