package dsc

import "math/big"

const moduleName = "dsc"

const (
	// LiquidationThreshold is the share of collateral value, out of
	// LiquidationPrecision, that counts towards debt capacity.
	LiquidationThreshold = 50
	// LiquidationPrecision is the denominator for threshold and bonus.
	LiquidationPrecision = 100
	// LiquidationBonus is the premium, out of LiquidationPrecision, paid to
	// liquidators on top of the collateral matching the debt they cover.
	LiquidationBonus = 10
)

var (
	precision               = big.NewInt(1_000_000_000_000_000_000)
	additionalFeedPrecision = big.NewInt(10_000_000_000)
	minHealthFactor         = big.NewInt(1_000_000_000_000_000_000)
	maxHealthFactor         = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

	liquidationThreshold = big.NewInt(LiquidationThreshold)
	liquidationPrecision = big.NewInt(LiquidationPrecision)
	liquidationBonus     = big.NewInt(LiquidationBonus)
)

// Params exposes the fixed protocol constants.
type Params struct {
	Precision               *big.Int
	AdditionalFeedPrecision *big.Int
	LiquidationThreshold    uint64
	LiquidationPrecision    uint64
	LiquidationBonus        uint64
	MinHealthFactor         *big.Int
	MaxHealthFactor         *big.Int
}

// DefaultParams returns a copy of the protocol constants.
func DefaultParams() Params {
	return Params{
		Precision:               new(big.Int).Set(precision),
		AdditionalFeedPrecision: new(big.Int).Set(additionalFeedPrecision),
		LiquidationThreshold:    LiquidationThreshold,
		LiquidationPrecision:    LiquidationPrecision,
		LiquidationBonus:        LiquidationBonus,
		MinHealthFactor:         new(big.Int).Set(minHealthFactor),
		MaxHealthFactor:         new(big.Int).Set(maxHealthFactor),
	}
}
