package dsc

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"dscengine/core/events"
)

// Liquidate lets liquidator repay debtToCover of target's debt in exchange for
// the equivalent amount of asset plus the liquidation bonus. The target must
// be below the minimum health factor beforehand, and must end strictly
// healthier and above the minimum. The liquidator must remain healthy too.
func (e *Engine) Liquidate(ctx context.Context, liquidator, target, asset common.Address, debtToCover *big.Int) (*LiquidationResult, error) {
	var result *LiquidationResult
	err := e.execute(ctx, opLiquidate, liquidator, func(ctx context.Context) error {
		res, err := e.liquidate(ctx, liquidator, target, asset, debtToCover)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.metrics.ObserveLiquidation(asset.Hex())
	return result, nil
}

func (e *Engine) liquidate(ctx context.Context, liquidator, target, asset common.Address, debtToCover *big.Int) (*LiquidationResult, error) {
	if err := requirePositive(debtToCover); err != nil {
		return nil, err
	}
	if _, err := e.collateralToken(asset); err != nil {
		return nil, err
	}

	startingHealth, err := e.healthFactor(ctx, target)
	if err != nil {
		return nil, err
	}
	if startingHealth.Cmp(minHealthFactor) >= 0 {
		return nil, ErrHealthFactorOK
	}

	base, err := e.tokenAmountFromUSD(ctx, asset, debtToCover)
	if err != nil {
		return nil, err
	}
	bonus := new(big.Int).Mul(base, liquidationBonus)
	bonus.Quo(bonus, liquidationPrecision)
	seized := new(big.Int).Add(base, bonus)

	if err := e.redeemCollateral(ctx, asset, seized, target, liquidator); err != nil {
		return nil, err
	}
	if err := e.burnDebt(ctx, debtToCover, target, liquidator); err != nil {
		return nil, err
	}

	endingHealth, err := e.healthFactor(ctx, target)
	if err != nil {
		return nil, err
	}
	if endingHealth.Cmp(startingHealth) <= 0 {
		return nil, ErrHealthFactorNotImproved
	}
	if err := e.assertHealthy(ctx, target); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHealthFactorNotImproved, err)
	}
	if err := e.assertHealthy(ctx, liquidator); err != nil {
		return nil, err
	}

	result := &LiquidationResult{
		Target:             target,
		Liquidator:         liquidator,
		Asset:              asset,
		DebtCovered:        clone(debtToCover),
		CollateralSeized:   seized,
		Bonus:              bonus,
		HealthFactorBefore: startingHealth,
		HealthFactorAfter:  endingHealth,
	}
	e.emit(events.PositionLiquidated{
		Liquidator:         liquidator,
		Target:             target,
		Asset:              asset,
		DebtCovered:        clone(debtToCover),
		CollateralSeized:   clone(seized),
		Bonus:              clone(bonus),
		HealthFactorBefore: clone(startingHealth),
		HealthFactorAfter:  clone(endingHealth),
	})
	return result, nil
}
