package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"dscengine/cmd/internal/passphrase"
	"dscengine/config"
	gatewayconfig "dscengine/gateway/config"
	"dscengine/observability/logging"
	telemetry "dscengine/observability/otel"
)

func main() {
	if err := run(); err != nil {
		slog.Error("dscd exited", "error", err)
		_ = logging.Close()
		os.Exit(1)
	}
	_ = logging.Close()
}

func run() error {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	allowMigrate := flag.Bool("allow-migrate", false, "Allow starting with a mismatched ledger schema (manual migrations only)")
	allowInsecure := flag.Bool("allow-insecure", false, "DEV ONLY: permit a plaintext gateway outside the dev environment on loopback")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *allowMigrate {
		cfg.AllowMigrate = true
	}

	logger := logging.Setup("dscd", cfg.Environment, logging.WithFile(cfg.LogFile))
	logging.Install(logger)

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "dscd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Endpoint != "",
		Traces:      cfg.Telemetry.Endpoint != "",
	})
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	policy, err := gatewayconfig.Load(cfg.GatewayPolicyFile)
	if err != nil {
		return fmt.Errorf("load gateway policy: %w", err)
	}
	tlsConfig, err := buildTLSConfig(filepath.Dir(cfg.GatewayPolicyFile), policy.Security)
	if err != nil {
		return fmt.Errorf("configure TLS: %w", err)
	}
	if tlsConfig == nil && !strings.EqualFold(cfg.Environment, "dev") {
		if !*allowInsecure || !isLoopbackAddress(cfg.HTTPAddress) {
			return fmt.Errorf("plaintext gateway is restricted to the dev environment or loopback listeners started with --allow-insecure")
		}
	}

	pass, err := custodyPassphrase(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := buildNode(ctx, cfg, policy, pass, logger)
	if err != nil {
		return err
	}
	defer n.close()

	logger.Info("dscd starting",
		"custody", n.custody.Hex(),
		"collateral", len(n.tokens),
		"oracle", cfg.Oracle.Mode,
		"faucet", cfg.DevFaucet,
		logging.MaskField("keystore", cfg.CustodyKeystorePath))
	return n.run(ctx, tlsConfig)
}

// custodyPassphrase returns the keystore passphrase. With no variable named
// the keystore is unencrypted apart from the empty passphrase.
func custodyPassphrase(cfg *config.Config) (string, error) {
	if strings.TrimSpace(cfg.CustodyPassphraseEnv) == "" {
		return "", nil
	}
	return passphrase.NewSource(cfg.CustodyPassphraseEnv, "custody keystore passphrase").Get()
}

func buildTLSConfig(baseDir string, sec gatewayconfig.SecurityConfig) (*tls.Config, error) {
	certPath := resolvePath(baseDir, sec.TLSCertFile)
	keyPath := resolvePath(baseDir, sec.TLSKeyFile)
	if certPath == "" && keyPath == "" {
		return nil, nil
	}
	if !sec.TLSEnabled() {
		return nil, fmt.Errorf("security.tlsCertFile and security.tlsKeyFile must both be provided when enabling TLS")
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("load TLS key pair: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	if baseDir == "" || baseDir == "." || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(baseDir, trimmed)
}

func isLoopbackAddress(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
