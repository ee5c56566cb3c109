package dsc

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// The read-only surface below accepts any input. Unknown assets and accounts
// with no history read as zero; errors only surface when the state backend or
// a price feed fails.

// AccountCollateralValue returns the USD value of user's collateral.
func (e *Engine) AccountCollateralValue(ctx context.Context, user common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return big.NewInt(0), nil
	}
	done := e.guard.View(ctx)
	defer done()
	return e.accountCollateralValue(ctx, user)
}

// USDValue converts amount of asset into 18-decimal USD.
func (e *Engine) USDValue(ctx context.Context, asset common.Address, amount *big.Int) (*big.Int, error) {
	if e == nil || !e.registry.Allowed(asset) || amount == nil {
		return big.NewInt(0), nil
	}
	return e.usdValue(ctx, asset, amount)
}

// TokenAmountFromUSD converts an 18-decimal USD amount into asset units.
func (e *Engine) TokenAmountFromUSD(ctx context.Context, asset common.Address, usd *big.Int) (*big.Int, error) {
	if e == nil || !e.registry.Allowed(asset) || usd == nil {
		return big.NewInt(0), nil
	}
	return e.tokenAmountFromUSD(ctx, asset, usd)
}

// CollateralBalance returns the deposited amount of asset held for user.
func (e *Engine) CollateralBalance(ctx context.Context, user, asset common.Address) (*big.Int, error) {
	if e == nil || e.state == nil || !e.registry.Allowed(asset) {
		return big.NewInt(0), nil
	}
	done := e.guard.View(ctx)
	defer done()
	return e.state.CollateralBalance(user, asset)
}

// DebtOf returns the stablecoin debt minted by user.
func (e *Engine) DebtOf(ctx context.Context, user common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return big.NewInt(0), nil
	}
	done := e.guard.View(ctx)
	defer done()
	return e.state.DebtBalance(user)
}

// HealthFactor returns user's health factor scaled by 1e18.
func (e *Engine) HealthFactor(ctx context.Context, user common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return new(big.Int).Set(maxHealthFactor), nil
	}
	done := e.guard.View(ctx)
	defer done()
	return e.healthFactor(ctx, user)
}

// AccountInformation returns debt, collateral value and health factor for user.
func (e *Engine) AccountInformation(ctx context.Context, user common.Address) (*AccountInfo, error) {
	info := &AccountInfo{
		Account:       user,
		Debt:          big.NewInt(0),
		CollateralUSD: big.NewInt(0),
		HealthFactor:  new(big.Int).Set(maxHealthFactor),
	}
	if e == nil || e.state == nil {
		return info, nil
	}
	done := e.guard.View(ctx)
	defer done()
	debt, collateralUSD, err := e.accountInformation(ctx, user)
	if err != nil {
		return nil, err
	}
	info.Debt = debt
	info.CollateralUSD = collateralUSD
	info.HealthFactor = CalculateHealthFactor(debt, collateralUSD)
	return info, nil
}

// CollateralTokens lists the registered collateral assets in order.
func (e *Engine) CollateralTokens() []common.Address {
	if e == nil {
		return nil
	}
	return e.registry.Assets()
}

// PriceFeed returns the feed registered for asset.
func (e *Engine) PriceFeed(asset common.Address) (common.Address, bool) {
	if e == nil {
		return common.Address{}, false
	}
	return e.registry.Feed(asset)
}

// Params returns the protocol constants.
func (e *Engine) Params() Params {
	return DefaultParams()
}

// Accounts lists every account with ledger entries.
func (e *Engine) Accounts(ctx context.Context) ([]common.Address, error) {
	if e == nil || e.state == nil {
		return []common.Address{}, nil
	}
	done := e.guard.View(ctx)
	defer done()
	return e.state.Accounts()
}

// SystemSolvency aggregates collateral value and debt across all accounts.
func (e *Engine) SystemSolvency(ctx context.Context) (*Solvency, error) {
	out := &Solvency{TotalDebt: big.NewInt(0), TotalCollateralUSD: big.NewInt(0)}
	if e == nil || e.state == nil {
		return out, nil
	}
	done := e.guard.View(ctx)
	defer done()

	accounts, err := e.state.Accounts()
	if err != nil {
		return nil, err
	}
	for _, user := range accounts {
		debt, collateralUSD, err := e.accountInformation(ctx, user)
		if err != nil {
			return nil, err
		}
		out.Accounts++
		out.TotalDebt.Add(out.TotalDebt, debt)
		out.TotalCollateralUSD.Add(out.TotalCollateralUSD, collateralUSD)
		if CalculateHealthFactor(debt, collateralUSD).Cmp(minHealthFactor) < 0 {
			out.Undercollateralized++
		}
	}
	return out, nil
}
