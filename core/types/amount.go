package types

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// AmountDecimals is the fixed-point scale of collateral, debt and USD values.
const AmountDecimals = 18

// ParseAmount converts a human readable decimal such as "1.5" into its
// 18-decimal integer form. More than 18 fractional digits is an error.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("amount: empty value")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("amount: %w", err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount: negative value %s", s)
	}
	scaled := d.Shift(AmountDecimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount: %s has more than %d decimals", s, AmountDecimals)
	}
	return scaled.BigInt(), nil
}

// ParseAmountOrUnits accepts either a decimal ("2.5") or, when prefixed with
// "wei:", a raw integer in base units.
func ParseAmountOrUnits(s string) (*big.Int, error) {
	if raw, ok := strings.CutPrefix(strings.TrimSpace(s), "wei:"); ok {
		v, ok := new(big.Int).SetString(raw, 10)
		if !ok || v.Sign() < 0 {
			return nil, fmt.Errorf("amount: invalid base units %q", raw)
		}
		return v, nil
	}
	return ParseAmount(s)
}

// FormatAmount renders an 18-decimal integer as a decimal string without
// trailing zeros.
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -AmountDecimals).String()
}

// FormatPrice renders an 8-decimal oracle quote.
func FormatPrice(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -8).String()
}

// ParsePrice converts a decimal USD price such as "2000.5" into an 8-decimal
// oracle quote.
func ParsePrice(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	scaled := d.Shift(8)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("price: %s has more than 8 decimals", s)
	}
	return scaled.BigInt(), nil
}
