package dsc

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// accountCollateralValue sums the USD value of the user's balance for every
// registered asset, including assets the user does not hold.
func (e *Engine) accountCollateralValue(ctx context.Context, user common.Address) (*big.Int, error) {
	total := big.NewInt(0)
	for _, asset := range e.registry.assets {
		balance, err := e.state.CollateralBalance(user, asset)
		if err != nil {
			return nil, err
		}
		value, err := e.usdValue(ctx, asset, balance)
		if err != nil {
			return nil, err
		}
		total.Add(total, value)
	}
	return total, nil
}

func (e *Engine) accountInformation(ctx context.Context, user common.Address) (*big.Int, *big.Int, error) {
	debt, err := e.state.DebtBalance(user)
	if err != nil {
		return nil, nil, err
	}
	collateralUSD, err := e.accountCollateralValue(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return debt, collateralUSD, nil
}

func (e *Engine) healthFactor(ctx context.Context, user common.Address) (*big.Int, error) {
	debt, collateralUSD, err := e.accountInformation(ctx, user)
	if err != nil {
		return nil, err
	}
	return CalculateHealthFactor(debt, collateralUSD), nil
}

// assertHealthy fails with a SolvencyError when user's health factor is below
// the minimum.
func (e *Engine) assertHealthy(ctx context.Context, user common.Address) error {
	hf, err := e.healthFactor(ctx, user)
	if err != nil {
		return err
	}
	if hf.Cmp(minHealthFactor) < 0 {
		return &SolvencyError{Account: user, HealthFactor: hf}
	}
	return nil
}

// CalculateHealthFactor returns (collateralUSD * threshold / precision) * 1e18
// / debt, or the maximum uint256 value when debt is zero.
func CalculateHealthFactor(debt, collateralUSD *big.Int) *big.Int {
	if debt == nil || debt.Sign() == 0 {
		return new(big.Int).Set(maxHealthFactor)
	}
	if collateralUSD == nil {
		collateralUSD = big.NewInt(0)
	}
	adjusted := new(big.Int).Mul(collateralUSD, liquidationThreshold)
	adjusted.Quo(adjusted, liquidationPrecision)
	adjusted.Mul(adjusted, precision)
	return adjusted.Quo(adjusted, debt)
}
