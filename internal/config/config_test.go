package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testConfig = `
app:
  port: "8081"
  timezone: UTC
gateway:
  merchantId: "10000100"
  merchantKey: "46f0cd694581a"
  passphrase: ""
  processUrl: https://sandbox.gateway.test/eng/process
  sandbox: true
auth:
  jwtSecret: test-secret
pricing:
  pride_wash:
    sedan: 45000
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return dir
}

func TestLoadConfigFrom_FileAndDefaults(t *testing.T) {
	dir := writeConfig(t, testConfig)

	cfg, err := LoadConfigFrom(dir, filepath.Join(dir, ".env"))
	if err != nil {
		t.Fatalf("LoadConfigFrom() error = %v", err)
	}

	if cfg.App.Port != "8081" {
		t.Errorf("App.Port = %q, want 8081", cfg.App.Port)
	}
	if cfg.Gateway.SignatureAlgorithm != "md5" {
		t.Errorf("SignatureAlgorithm = %q, want md5", cfg.Gateway.SignatureAlgorithm)
	}
	if cfg.Auth.ReauthWindow != 5*time.Minute {
		t.Errorf("ReauthWindow = %v, want 5m", cfg.Auth.ReauthWindow)
	}
	if cfg.Kafka.NotificationsTopic != "gateway.notifications" {
		t.Errorf("NotificationsTopic = %q", cfg.Kafka.NotificationsTopic)
	}
	if cfg.Pricing["pride_wash"]["sedan"] != 45000 {
		t.Errorf("Pricing = %v", cfg.Pricing)
	}
	if m := cfg.Gateway.Merchant(); m.MerchantID != "10000100" || !m.EmailConfirmation {
		t.Errorf("Merchant() = %+v", m)
	}
}

func TestLoadConfigFrom_EnvironmentOverrides(t *testing.T) {
	dir := writeConfig(t, testConfig)
	t.Setenv("GATEWAY_PASSPHRASE", "from-env")
	t.Setenv("GATEWAY_SIGNATUREALGORITHM", "sha256")
	t.Setenv("APP_PORT", "9999")

	cfg, err := LoadConfigFrom(dir, "")
	if err != nil {
		t.Fatalf("LoadConfigFrom() error = %v", err)
	}
	if cfg.Gateway.Passphrase != "from-env" {
		t.Errorf("Passphrase = %q, want from-env", cfg.Gateway.Passphrase)
	}
	if cfg.Gateway.SignatureAlgorithm != "sha256" {
		t.Errorf("SignatureAlgorithm = %q, want sha256", cfg.Gateway.SignatureAlgorithm)
	}
	if cfg.App.Port != "9999" {
		t.Errorf("App.Port = %q, want 9999", cfg.App.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidate(t *testing.T) {
	dir := writeConfig(t, testConfig)

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"missing passphrase", func(c *Config) { c.Gateway.Passphrase = "" }, "gateway.passphrase"},
		{"missing merchant", func(c *Config) { c.Gateway.MerchantKey = "" }, "gateway.merchantId"},
		{"unknown algorithm", func(c *Config) { c.Gateway.SignatureAlgorithm = "sha1" }, "signatureAlgorithm"},
		{"live without api url", func(c *Config) { c.Gateway.Sandbox = false }, "gateway.apiUrl"},
		{"bad timezone", func(c *Config) { c.App.Timezone = "Mars/Olympus" }, "app.timezone"},
		{"missing jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }, "auth.jwtSecret"},
		{"empty pricing", func(c *Config) { c.Pricing = nil }, "pricing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfigFrom(dir, "")
			if err != nil {
				t.Fatalf("LoadConfigFrom() error = %v", err)
			}
			cfg.Gateway.Passphrase = "secret"
			tt.mutate(cfg)

			err = cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
