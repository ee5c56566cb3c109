package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"dscengine/crypto"
)

type Config struct {
	Environment          string `toml:"Environment" env:"DSC_ENV"`
	DataDir              string `toml:"DataDir" env:"DSC_DATA_DIR"`
	HTTPAddress          string `toml:"HTTPAddress" env:"DSC_HTTP_ADDRESS"`
	GRPCAddress          string `toml:"GRPCAddress" env:"DSC_GRPC_ADDRESS"`
	GatewayPolicyFile    string `toml:"GatewayPolicyFile" env:"DSC_GATEWAY_POLICY"`
	LogFile              string `toml:"LogFile" env:"DSC_LOG_FILE"`
	CustodyKeystorePath  string `toml:"CustodyKeystorePath" env:"DSC_CUSTODY_KEYSTORE"`
	CustodyPassphraseEnv string `toml:"CustodyPassphraseEnv"`
	AllowMigrate         bool   `toml:"AllowMigrate" env:"DSC_ALLOW_MIGRATE"`
	// DevFaucet enables crediting in-memory collateral through the gateway.
	DevFaucet bool `toml:"DevFaucet" env:"DSC_DEV_FAUCET"`

	Stablecoin Stablecoin   `toml:"stablecoin"`
	Collateral []Collateral `toml:"collateral"`
	Oracle     Oracle       `toml:"oracle" envPrefix:"DSC_ORACLE_"`
	Indexer    Indexer      `toml:"indexer" envPrefix:"DSC_INDEXER_"`
	Export     Export       `toml:"export" envPrefix:"DSC_EXPORT_"`
	Webhook    Webhook      `toml:"webhook" envPrefix:"DSC_WEBHOOK_"`
	Telemetry  Telemetry    `toml:"telemetry" envPrefix:"DSC_OTEL_"`
	Pauses     Pauses       `toml:"pauses" envPrefix:"DSC_PAUSE_"`
}

// Load loads the configuration from the given path, creating a default file
// and custody keystore when none exists. Environment variables override file
// values.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err = createDefault(path)
		if err != nil {
			return nil, err
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
		}
		if err := ensureKeystore(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// CustodyPassphrase resolves the keystore passphrase from the configured
// environment variable. An unset variable yields the empty passphrase.
func (c *Config) CustodyPassphrase() string {
	if c == nil || strings.TrimSpace(c.CustodyPassphraseEnv) == "" {
		return ""
	}
	return os.Getenv(c.CustodyPassphraseEnv)
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "dev"
	}
	if strings.TrimSpace(cfg.Oracle.Mode) == "" {
		cfg.Oracle.Mode = OracleStatic
	}
	if cfg.Oracle.TimeoutSeconds <= 0 {
		cfg.Oracle.TimeoutSeconds = 5
	}
	if strings.TrimSpace(cfg.Stablecoin.Symbol) == "" {
		cfg.Stablecoin.Symbol = "DSC"
	}
	if cfg.Indexer.QueueSize <= 0 {
		cfg.Indexer.QueueSize = 256
	}
	if cfg.Collateral == nil {
		cfg.Collateral = []Collateral{}
	}
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.CustodyKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, _, err := crypto.LoadOrCreateKeystore(keystorePath, cfg.CustodyPassphrase()); err != nil {
		return err
	}

	if cfg.CustodyKeystorePath != keystorePath {
		cfg.CustodyKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a default configuration file with two
// collateral assets priced by the static oracle.
func createDefault(path string) (*Config, error) {
	keystorePath := defaultKeystorePath(path)
	cfg := &Config{
		Environment:         "dev",
		DataDir:             "./dsc-data",
		HTTPAddress:         ":8080",
		GRPCAddress:         ":9090",
		CustodyKeystorePath: keystorePath,
		DevFaucet:           true,
		Stablecoin: Stablecoin{
			Symbol:  "DSC",
			Address: "0x0000000000000000000000000000000000005dc0",
		},
		Collateral: []Collateral{
			{Symbol: "WETH", Asset: "0x0000000000000000000000000000000000001001", Feed: "0x000000000000000000000000000000000000f001", Price: "2000"},
			{Symbol: "WBTC", Asset: "0x0000000000000000000000000000000000001002", Feed: "0x000000000000000000000000000000000000f002", Price: "1000"},
		},
		Oracle:  Oracle{Mode: OracleStatic, TimeoutSeconds: 5},
		Indexer: Indexer{DSN: "indexer.db", QueueSize: 256},
	}
	if _, _, err := crypto.LoadOrCreateKeystore(keystorePath, cfg.CustodyPassphrase()); err != nil {
		return nil, err
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "custody.keystore")
}
