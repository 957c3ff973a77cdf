// Package config loads the deployment core's process-wide configuration
// once at startup into an immutable Config value.
package config

import (
	"fmt"
	"os"
	"time"
)

// AcmeMode selects the Let's Encrypt directory a Config points the
// certificate provider at.
type AcmeMode string

const (
	AcmeModeProduction AcmeMode = "production"
	AcmeModeStaging    AcmeMode = "staging"
)

const (
	letsEncryptProductionURL = "https://acme-v02.api.letsencrypt.org/directory"
	letsEncryptStagingURL    = "https://acme-staging-v02.api.letsencrypt.org/directory"
)

// Config is the deployment core's full runtime configuration. It is built
// once via Load and never mutated; every constructor that needs a setting
// takes it (or a field of it) as an explicit argument rather than reaching
// for package-level state.
type Config struct {
	DataDir string

	// ACME / certificates
	LetsEncryptMode  AcmeMode
	AcmeDirectoryURL string
	AcmeEmail        string
	RenewalWindow    time.Duration
	CertPollInterval time.Duration

	// Reverse proxy
	HTTPAddr  string
	HTTPSAddr string

	// Health monitor
	HealthCheckInterval time.Duration

	// TEMPS_API_URL and TEMPS_API_TOKEN. Load reads them; nothing in the
	// serve process uses them, and this core does not report state to
	// an upstream API.
	TempsAPIURL   string
	TempsAPIToken string

	// HTTP API surface (pkg/api)
	BearerToken       string
	GitHubWebhookSecret string

	// SecretsPassphrase derives the AES-256-GCM key used to encrypt ACME
	// account credentials at rest.
	SecretsPassphrase string
}

// Default returns a Config populated with the same defaults Load falls
// back to when an environment variable is unset.
func Default() Config {
	return Config{
		DataDir:             "./data",
		LetsEncryptMode:     AcmeModeProduction,
		AcmeDirectoryURL:    letsEncryptProductionURL,
		RenewalWindow:       30 * 24 * time.Hour,
		CertPollInterval:    24 * time.Hour,
		HTTPAddr:            ":80",
		HTTPSAddr:           ":443",
		HealthCheckInterval: 60 * time.Second,
		// Only used if TEMPS_SECRETS_PASSPHRASE is unset; fine for local
		// development, not for a real deployment.
		SecretsPassphrase: "temps-dev-insecure-default",
	}
}

// Load reads configuration from environment variables, falling back to
// Default's values for anything unset. It never panics; malformed duration
// values are reported as an error so callers can fail fast at
// startup instead of silently running with a wrong setting.
func Load() (Config, error) {
	cfg := Default()

	if v := os.Getenv("TEMPS_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("LETSENCRYPT_MODE"); v != "" {
		switch AcmeMode(v) {
		case AcmeModeProduction:
			cfg.LetsEncryptMode = AcmeModeProduction
			cfg.AcmeDirectoryURL = letsEncryptProductionURL
		case AcmeModeStaging:
			cfg.LetsEncryptMode = AcmeModeStaging
			cfg.AcmeDirectoryURL = letsEncryptStagingURL
		default:
			return Config{}, fmt.Errorf("config: invalid LETSENCRYPT_MODE %q, want %q or %q", v, AcmeModeProduction, AcmeModeStaging)
		}
	}

	// An explicit directory URL (e.g. pointing at a local Pebble instance
	// for tests) always wins over the mode-derived default.
	if v := os.Getenv("ACME_DIRECTORY_URL"); v != "" {
		cfg.AcmeDirectoryURL = v
	}

	if v := os.Getenv("ACME_EMAIL"); v != "" {
		cfg.AcmeEmail = v
	}

	if v := os.Getenv("TEMPS_API_URL"); v != "" {
		cfg.TempsAPIURL = v
	}
	if v := os.Getenv("TEMPS_API_TOKEN"); v != "" {
		cfg.TempsAPIToken = v
	}

	if v := os.Getenv("TEMPS_BEARER_TOKEN"); v != "" {
		cfg.BearerToken = v
	}
	if v := os.Getenv("TEMPS_GITHUB_WEBHOOK_SECRET"); v != "" {
		cfg.GitHubWebhookSecret = v
	}
	if v := os.Getenv("TEMPS_SECRETS_PASSPHRASE"); v != "" {
		cfg.SecretsPassphrase = v
	}

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("HTTPS_ADDR"); v != "" {
		cfg.HTTPSAddr = v
	}

	if v := os.Getenv("CERT_RENEWAL_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid CERT_RENEWAL_WINDOW: %w", err)
		}
		cfg.RenewalWindow = d
	}

	if v := os.Getenv("HEALTH_CHECK_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid HEALTH_CHECK_INTERVAL: %w", err)
		}
		cfg.HealthCheckInterval = d
	}

	if v := os.Getenv("CERT_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: invalid CERT_POLL_INTERVAL: %w", err)
		}
		cfg.CertPollInterval = d
	}

	return cfg, nil
}
