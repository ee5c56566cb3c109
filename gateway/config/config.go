package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RateLimitConfig struct {
	ID                string  `yaml:"id"`
	RequestsPerMinute float64 `yaml:"requestsPerMinute"`
	RatePerSecond     float64 `yaml:"ratePerSecond"`
	Burst             int     `yaml:"burst"`
}

type ObservabilityConfig struct {
	ServiceName string `yaml:"serviceName"`
	Metrics     bool   `yaml:"metrics"`
	Tracing     bool   `yaml:"tracing"`
	LogRequests bool   `yaml:"logRequests"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type StreamConfig struct {
	// Buffer bounds the events queued per websocket subscriber before it is
	// disconnected as too slow.
	Buffer         int      `yaml:"buffer"`
	OriginPatterns []string `yaml:"originPatterns"`
}

// Config is the gateway policy file: timeouts, rate limits, auth and
// stream settings. The listen address comes from the node config.
type Config struct {
	ReadTimeout   time.Duration       `yaml:"readTimeout"`
	WriteTimeout  time.Duration       `yaml:"writeTimeout"`
	IdleTimeout   time.Duration       `yaml:"idleTimeout"`
	RateLimits    []RateLimitConfig   `yaml:"rateLimits"`
	Observability ObservabilityConfig `yaml:"observability"`
	Auth          AuthConfig          `yaml:"auth"`
	Security      SecurityConfig      `yaml:"security"`
	CORS          CORSConfig          `yaml:"cors"`
	Stream        StreamConfig        `yaml:"stream"`
}

type AuthConfig struct {
	Enabled           bool          `yaml:"enabled"`
	HMACSecret        string        `yaml:"hmacSecret"`
	Issuer            string        `yaml:"issuer"`
	Audience          string        `yaml:"audience"`
	ScopeClaim        string        `yaml:"scopeClaim"`
	WriteScope        string        `yaml:"writeScope"`
	OptionalPaths     []string      `yaml:"optionalPaths"`
	AllowAnonymous    bool          `yaml:"allowAnonymous"`
	ClockSkew         time.Duration `yaml:"clockSkew"`
	allowAnonymousSet bool          `yaml:"-"`
	enabledSet        bool          `yaml:"-"`
}

func (a *AuthConfig) UnmarshalYAML(node *yaml.Node) error {
	type rawAuthConfig struct {
		Enabled        *bool         `yaml:"enabled"`
		HMACSecret     string        `yaml:"hmacSecret"`
		Issuer         string        `yaml:"issuer"`
		Audience       string        `yaml:"audience"`
		ScopeClaim     string        `yaml:"scopeClaim"`
		WriteScope     string        `yaml:"writeScope"`
		OptionalPaths  []string      `yaml:"optionalPaths"`
		AllowAnonymous *bool         `yaml:"allowAnonymous"`
		ClockSkew      time.Duration `yaml:"clockSkew"`
	}
	var raw rawAuthConfig
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.Enabled != nil {
		a.Enabled = *raw.Enabled
		a.enabledSet = true
	} else {
		a.Enabled = false
		a.enabledSet = false
	}
	a.HMACSecret = raw.HMACSecret
	a.Issuer = raw.Issuer
	a.Audience = raw.Audience
	a.ScopeClaim = raw.ScopeClaim
	a.WriteScope = raw.WriteScope
	a.OptionalPaths = raw.OptionalPaths
	if raw.AllowAnonymous != nil {
		a.AllowAnonymous = *raw.AllowAnonymous
		a.allowAnonymousSet = true
	} else {
		a.AllowAnonymous = false
		a.allowAnonymousSet = false
	}
	a.ClockSkew = raw.ClockSkew
	return nil
}

type SecurityConfig struct {
	TLSCertFile string `yaml:"tlsCertFile"`
	TLSKeyFile  string `yaml:"tlsKeyFile"`
}

// TLSEnabled reports whether both halves of the certificate pair are set.
func (s SecurityConfig) TLSEnabled() bool {
	return strings.TrimSpace(s.TLSCertFile) != "" && strings.TrimSpace(s.TLSKeyFile) != ""
}

// Default returns the policy used when no file is configured: auth disabled,
// a permissive read limit and a tighter write limit.
func Default() Config {
	return Config{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		RateLimits: []RateLimitConfig{
			{ID: "read", RequestsPerMinute: 600, Burst: 50},
			{ID: "write", RequestsPerMinute: 120, Burst: 10},
		},
		Observability: ObservabilityConfig{
			ServiceName: "dsc-gateway",
			Metrics:     true,
			Tracing:     true,
			LogRequests: true,
		},
		Auth: AuthConfig{
			Enabled:    false,
			ScopeClaim: "scope",
			WriteScope: "dsc:write",
			ClockSkew:  2 * time.Minute,
			enabledSet: true,
		},
		Stream: StreamConfig{Buffer: 64, OriginPatterns: []string{"*"}},
	}
}

// Load reads the policy file at path on top of Default. An empty path yields
// the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	cfg.Auth.enabledSet = false
	if path == "" {
		cfg.Auth.enabledSet = true
		cfg.applyDefaults()
		if err := cfg.Validate(); err != nil {
			return Config{}, fmt.Errorf("validate config: %w", err)
		}
		return cfg, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg == nil {
		return
	}
	if cfg.Auth.ClockSkew <= 0 {
		cfg.Auth.ClockSkew = 2 * time.Minute
	}
	if cfg.Auth.ScopeClaim == "" {
		cfg.Auth.ScopeClaim = "scope"
	}
	if cfg.Auth.WriteScope == "" {
		cfg.Auth.WriteScope = "dsc:write"
	}
	if !cfg.Auth.allowAnonymousSet {
		cfg.Auth.AllowAnonymous = false
	}
	if cfg.Stream.Buffer <= 0 {
		cfg.Stream.Buffer = 64
	}
	if len(cfg.Stream.OriginPatterns) == 0 {
		cfg.Stream.OriginPatterns = []string{"*"}
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "dsc-gateway"
	}
}

var ErrAuthEnabledNotConfigured = errors.New("auth.enabled must be explicitly set when TLS is configured")

func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Security.TLSEnabled() && !cfg.Auth.enabledSet {
		return ErrAuthEnabledNotConfigured
	}
	if cfg.Auth.Enabled && strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth.hmacSecret required when auth is enabled")
	}
	if cfg.Auth.AllowAnonymous && !cfg.Auth.allowAnonymousSet {
		return fmt.Errorf("auth.allowAnonymous must be explicitly set to true to enable anonymous access")
	}
	trimmed := make([]string, len(cfg.Auth.OptionalPaths))
	for i, path := range cfg.Auth.OptionalPaths {
		trimmedPath := strings.TrimSpace(path)
		if trimmedPath == "" {
			return fmt.Errorf("auth.optionalPaths[%d] cannot be empty", i)
		}
		if !strings.HasPrefix(trimmedPath, "/") {
			return fmt.Errorf("auth.optionalPaths[%d] must start with '/'", i)
		}
		trimmed[i] = trimmedPath
	}
	cfg.Auth.OptionalPaths = trimmed
	if cfg.Auth.Enabled && cfg.Auth.AllowAnonymous && len(cfg.Auth.OptionalPaths) == 0 {
		return fmt.Errorf("auth.optionalPaths must list at least one entry when auth.allowAnonymous is true")
	}
	seen := make(map[string]bool, len(cfg.RateLimits))
	for i, limit := range cfg.RateLimits {
		id := strings.TrimSpace(limit.ID)
		if id == "" {
			return fmt.Errorf("rateLimits[%d].id cannot be empty", i)
		}
		if seen[id] {
			return fmt.Errorf("rateLimits[%d]: duplicate id %q", i, id)
		}
		seen[id] = true
		if limit.RequestsPerMinute < 0 || limit.RatePerSecond < 0 || limit.Burst < 0 {
			return fmt.Errorf("rateLimits[%d]: values must not be negative", i)
		}
	}
	return nil
}
