package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Auth.Enabled {
		t.Fatalf("expected auth disabled by default")
	}
	if cfg.Auth.WriteScope != "dsc:write" {
		t.Fatalf("unexpected write scope %q", cfg.Auth.WriteScope)
	}
	if len(cfg.RateLimits) != 2 || cfg.Stream.Buffer != 64 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadParsesPolicyFile(t *testing.T) {
	yaml := `readTimeout: 5s
rateLimits:
  - id: write
    ratePerSecond: 2
    burst: 4
auth:
  enabled: true
  hmacSecret: secret
  issuer: dsc-auth
stream:
  buffer: 8
`
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ReadTimeout != 5*time.Second {
		t.Fatalf("unexpected read timeout %s", cfg.ReadTimeout)
	}
	if len(cfg.RateLimits) != 1 || cfg.RateLimits[0].RatePerSecond != 2 {
		t.Fatalf("unexpected rate limits %+v", cfg.RateLimits)
	}
	if !cfg.Auth.Enabled || cfg.Auth.Issuer != "dsc-auth" || cfg.Auth.WriteScope != "dsc:write" {
		t.Fatalf("unexpected auth %+v", cfg.Auth)
	}
	if cfg.Stream.Buffer != 8 {
		t.Fatalf("unexpected stream buffer %d", cfg.Stream.Buffer)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	if _, err := Load(writeConfig(t, "services:\n  - name: lending\n")); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
}

func TestLoadRequiresSecretWhenAuthEnabled(t *testing.T) {
	if _, err := Load(writeConfig(t, "auth:\n  enabled: true\n")); err == nil {
		t.Fatalf("expected missing hmacSecret to be rejected")
	}
}

func TestLoadRequiresOptionalPathsWhenAllowAnonymousEnabled(t *testing.T) {
	path := writeConfig(t, "auth:\n  enabled: true\n  hmacSecret: s\n  allowAnonymous: true\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected load to fail when auth.allowAnonymous is true without optional paths")
	}
}

func TestLoadRequiresExplicitAuthWithTLS(t *testing.T) {
	yaml := "security:\n  tlsCertFile: /etc/gateway/cert.pem\n  tlsKeyFile: /etc/gateway/key.pem\n"
	_, err := Load(writeConfig(t, yaml))
	if !errors.Is(err, ErrAuthEnabledNotConfigured) {
		t.Fatalf("expected ErrAuthEnabledNotConfigured, got %v", err)
	}

	yaml = "auth:\n  enabled: false\n" + yaml
	if _, err := Load(writeConfig(t, yaml)); err != nil {
		t.Fatalf("load config: %v", err)
	}
}

func TestLoadNormalizesOptionalPaths(t *testing.T) {
	yaml := "auth:\n  enabled: true\n  hmacSecret: s\n  allowAnonymous: true\n  optionalPaths:\n    - /v1/params\n    - \"   /v1/collateral   \"\n"
	cfg, err := Load(writeConfig(t, yaml))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	expected := []string{"/v1/params", "/v1/collateral"}
	if len(cfg.Auth.OptionalPaths) != len(expected) {
		t.Fatalf("expected %d optional paths, got %d", len(expected), len(cfg.Auth.OptionalPaths))
	}
	for i, path := range expected {
		if cfg.Auth.OptionalPaths[i] != path {
			t.Fatalf("optional path %d mismatch: expected %q, got %q", i, path, cfg.Auth.OptionalPaths[i])
		}
	}
}

func TestValidateRejectsDuplicateRateLimits(t *testing.T) {
	cfg := Default()
	cfg.RateLimits = append(cfg.RateLimits, RateLimitConfig{ID: "read"})
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "duplicate id") {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}

func TestValidateRejectsImplicitAnonymousAccess(t *testing.T) {
	cfg := Config{
		Auth: AuthConfig{
			Enabled:        true,
			HMACSecret:     "s",
			OptionalPaths:  []string{"/v1/params"},
			AllowAnonymous: true,
			enabledSet:     true,
		},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error when auth.allowAnonymous is true without explicit opt-in")
	}
	if !strings.Contains(err.Error(), "auth.allowAnonymous must be explicitly set") {
		t.Fatalf("unexpected error: %v", err)
	}
}
