package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"dscengine/core/types"
	"dscengine/crypto"
)

// CollateralEntry is a parsed collateral registration.
type CollateralEntry struct {
	Symbol string
	Asset  common.Address
	Feed   common.Address
	// Price is the 8-decimal static quote, nil when unset.
	Price *big.Int
}

// CollateralEntries parses the collateral table in file order.
func (c *Config) CollateralEntries() ([]CollateralEntry, error) {
	out := make([]CollateralEntry, 0, len(c.Collateral))
	for i, entry := range c.Collateral {
		asset, err := crypto.ParseAddress(entry.Asset)
		if err != nil {
			return nil, fmt.Errorf("collateral[%d].Asset: %w", i, err)
		}
		feed, err := crypto.ParseAddress(entry.Feed)
		if err != nil {
			return nil, fmt.Errorf("collateral[%d].Feed: %w", i, err)
		}
		parsed := CollateralEntry{Symbol: strings.TrimSpace(entry.Symbol), Asset: asset, Feed: feed}
		if strings.TrimSpace(entry.Price) != "" {
			price, err := types.ParsePrice(entry.Price)
			if err != nil {
				return nil, fmt.Errorf("collateral[%d].Price: %w", i, err)
			}
			parsed.Price = price
		}
		out = append(out, parsed)
	}
	return out, nil
}

// Validate checks the configuration is complete enough to start a node.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DataDir must not be empty")
	}
	if strings.TrimSpace(c.HTTPAddress) == "" {
		return fmt.Errorf("HTTPAddress must not be empty")
	}
	if _, err := crypto.ParseAddress(c.Stablecoin.Address); err != nil {
		return fmt.Errorf("stablecoin.Address: %w", err)
	}
	switch c.Oracle.Mode {
	case OracleStatic:
	case OracleChainlink:
		if strings.TrimSpace(c.Oracle.RPCURL) == "" {
			return fmt.Errorf("oracle: RPCURL required for chainlink mode")
		}
	default:
		return fmt.Errorf("oracle: unknown mode %q", c.Oracle.Mode)
	}

	entries, err := c.CollateralEntries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("collateral: at least one asset required")
	}
	seen := make(map[common.Address]bool, len(entries))
	for i, entry := range entries {
		if entry.Asset == (common.Address{}) || entry.Feed == (common.Address{}) {
			return fmt.Errorf("collateral[%d]: zero address", i)
		}
		if seen[entry.Asset] {
			return fmt.Errorf("collateral[%d]: duplicate asset %s", i, entry.Asset.Hex())
		}
		seen[entry.Asset] = true
		if c.Oracle.Mode == OracleStatic && (entry.Price == nil || entry.Price.Sign() <= 0) {
			return fmt.Errorf("collateral[%d]: static oracle requires a positive Price", i)
		}
	}
	if c.Export.Dir != "" && c.Export.IntervalSeconds <= 0 {
		return fmt.Errorf("export: IntervalSeconds must be positive")
	}
	if strings.TrimSpace(c.Webhook.Endpoint) != "" && strings.TrimSpace(c.Webhook.SecretEnv) == "" {
		return fmt.Errorf("webhook: SecretEnv required when Endpoint is set")
	}
	return nil
}
