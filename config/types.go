package config

import (
	"os"
	"strings"
)

const (
	OracleStatic    = "static"
	OracleChainlink = "chainlink"
)

// Oracle selects where collateral prices come from.
type Oracle struct {
	Mode   string `toml:"Mode" env:"MODE"`
	RPCURL string `toml:"RPCURL" env:"RPC_URL"`
	// TimeoutSeconds bounds a single feed read.
	TimeoutSeconds int `toml:"TimeoutSeconds" env:"TIMEOUT_SECONDS"`
}

// Collateral registers one collateral asset. Price is the fixed USD quote
// served by the static oracle and is ignored otherwise.
type Collateral struct {
	Symbol string `toml:"Symbol"`
	Asset  string `toml:"Asset"`
	Feed   string `toml:"Feed"`
	Price  string `toml:"Price,omitempty"`
}

// Stablecoin describes the debt token issued by the engine.
type Stablecoin struct {
	Symbol  string `toml:"Symbol"`
	Address string `toml:"Address"`
}

// Indexer configures the event indexer database. A DSN starting with
// postgres:// selects PostgreSQL; anything else is a SQLite path.
type Indexer struct {
	DSN       string `toml:"DSN" env:"DSN"`
	QueueSize int    `toml:"QueueSize" env:"QUEUE_SIZE"`
}

// Export configures periodic ledger snapshots.
type Export struct {
	Dir             string `toml:"Dir" env:"DIR"`
	IntervalSeconds int    `toml:"IntervalSeconds" env:"INTERVAL_SECONDS"`
}

// Webhook forwards committed engine events to an HTTP endpoint. The HMAC
// secret is read from the environment variable named by SecretEnv.
type Webhook struct {
	Endpoint  string   `toml:"Endpoint" env:"ENDPOINT"`
	SecretEnv string   `toml:"SecretEnv" env:"SECRET_ENV"`
	Types     []string `toml:"Types" env:"TYPES"`
	QueueSize int      `toml:"QueueSize" env:"QUEUE_SIZE"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint" env:"ENDPOINT"`
	Insecure bool   `toml:"Insecure" env:"INSECURE"`
	Headers  string `toml:"Headers" env:"HEADERS"`
}

type Pauses struct {
	DSC bool `toml:"DSC" env:"DSC"`
}

// IsPaused reports whether the named module is halted.
func (p Pauses) IsPaused(module string) bool {
	switch strings.ToLower(strings.TrimSpace(module)) {
	case "dsc":
		return p.DSC
	default:
		return false
	}
}

// Secret resolves the webhook signing secret.
func (w Webhook) Secret() string {
	if strings.TrimSpace(w.SecretEnv) == "" {
		return ""
	}
	return os.Getenv(w.SecretEnv)
}
