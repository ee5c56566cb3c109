package dsc

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// latestPrice reads the quote for asset's registered feed.
func (e *Engine) latestPrice(ctx context.Context, asset common.Address) (*big.Int, error) {
	feed, ok := e.registry.Feed(asset)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotAllowed, asset.Hex())
	}
	price, err := e.oracle.LatestQuote(ctx, feed)
	if err != nil {
		return nil, fmt.Errorf("dsc engine: read price feed %s: %w", feed.Hex(), err)
	}
	if price == nil {
		return big.NewInt(0), nil
	}
	return price, nil
}

func (e *Engine) usdValue(ctx context.Context, asset common.Address, amount *big.Int) (*big.Int, error) {
	price, err := e.latestPrice(ctx, asset)
	if err != nil {
		return nil, err
	}
	return usdValue(price, amount), nil
}

func (e *Engine) tokenAmountFromUSD(ctx context.Context, asset common.Address, usd *big.Int) (*big.Int, error) {
	price, err := e.latestPrice(ctx, asset)
	if err != nil {
		return nil, err
	}
	return tokenAmountFromUSD(price, usd)
}

// usdValue converts an 18-decimal token amount into 18-decimal USD using an
// 8-decimal price: price * 1e10 * amount / 1e18.
func usdValue(price, amount *big.Int) *big.Int {
	if price == nil || amount == nil {
		return big.NewInt(0)
	}
	value := new(big.Int).Mul(price, additionalFeedPrecision)
	value.Mul(value, amount)
	return value.Quo(value, precision)
}

// tokenAmountFromUSD is the inverse of usdValue: usd * 1e18 / (price * 1e10).
func tokenAmountFromUSD(price, usd *big.Int) (*big.Int, error) {
	if usd == nil {
		usd = big.NewInt(0)
	}
	scaled := new(big.Int)
	if price != nil {
		scaled.Mul(price, additionalFeedPrecision)
	}
	if scaled.Sign() == 0 {
		return nil, ErrInvalidPrice
	}
	amount := new(big.Int).Mul(usd, precision)
	return amount.Quo(amount, scaled), nil
}
