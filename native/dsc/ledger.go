package dsc

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"dscengine/core/events"
)

// DepositCollateral credits amount of asset to user and pulls the tokens into
// custody.
func (e *Engine) DepositCollateral(ctx context.Context, user, asset common.Address, amount *big.Int) error {
	return e.execute(ctx, opDeposit, user, func(ctx context.Context) error {
		return e.depositCollateral(ctx, user, asset, amount)
	})
}

// RedeemCollateral returns amount of asset from custody to user. The user must
// remain healthy afterwards.
func (e *Engine) RedeemCollateral(ctx context.Context, user, asset common.Address, amount *big.Int) error {
	return e.execute(ctx, opRedeem, user, func(ctx context.Context) error {
		if err := e.redeemCollateral(ctx, asset, amount, user, user); err != nil {
			return err
		}
		return e.assertHealthy(ctx, user)
	})
}

// MintDebt issues amount of stablecoin to user against their collateral.
func (e *Engine) MintDebt(ctx context.Context, user common.Address, amount *big.Int) error {
	return e.execute(ctx, opMint, user, func(ctx context.Context) error {
		return e.mintDebt(ctx, user, amount)
	})
}

// BurnDebt repays amount of user's debt with stablecoin pulled from user.
// Repaying is allowed while the account is below the minimum health factor.
func (e *Engine) BurnDebt(ctx context.Context, user common.Address, amount *big.Int) error {
	return e.execute(ctx, opBurn, user, func(ctx context.Context) error {
		return e.burnDebt(ctx, amount, user, user)
	})
}

// DepositCollateralAndMint deposits collateral then mints debt in a single
// operation.
func (e *Engine) DepositCollateralAndMint(ctx context.Context, user, asset common.Address, collateral, debt *big.Int) error {
	return e.execute(ctx, opDepositAndMint, user, func(ctx context.Context) error {
		if err := e.depositCollateral(ctx, user, asset, collateral); err != nil {
			return err
		}
		return e.mintDebt(ctx, user, debt)
	})
}

// RedeemCollateralForDebt burns debt then redeems collateral in a single
// operation.
func (e *Engine) RedeemCollateralForDebt(ctx context.Context, user, asset common.Address, collateral, debt *big.Int) error {
	return e.execute(ctx, opRedeemForDebt, user, func(ctx context.Context) error {
		if err := e.burnDebt(ctx, debt, user, user); err != nil {
			return err
		}
		if err := e.redeemCollateral(ctx, asset, collateral, user, user); err != nil {
			return err
		}
		return e.assertHealthy(ctx, user)
	})
}

func (e *Engine) depositCollateral(ctx context.Context, user, asset common.Address, amount *big.Int) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	token, err := e.collateralToken(asset)
	if err != nil {
		return err
	}

	balance, err := e.state.CollateralBalance(user, asset)
	if err != nil {
		return err
	}
	if err := e.state.SetCollateralBalance(user, asset, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	e.emit(events.CollateralDeposited{User: user, Asset: asset, Amount: clone(amount)})

	ok, err := token.TransferFrom(ctx, user, e.custody, amount)
	return stageError(ErrDepositFailed, ok, err)
}

// redeemCollateral moves collateral from one account's ledger balance to an
// external beneficiary. It does not check solvency; callers decide which
// account must be asserted.
func (e *Engine) redeemCollateral(ctx context.Context, asset common.Address, amount *big.Int, from, to common.Address) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	token, err := e.collateralToken(asset)
	if err != nil {
		return err
	}

	balance, err := e.state.CollateralBalance(from, asset)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return underflow(fmt.Sprintf("collateral %s of %s", asset.Hex(), from.Hex()), balance, amount)
	}
	if err := e.state.SetCollateralBalance(from, asset, new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}

	ok, err := token.Transfer(ctx, to, amount)
	if err := stageError(ErrRedeemFailed, ok, err); err != nil {
		return err
	}
	e.emit(events.CollateralRedeemed{From: from, To: to, Asset: asset, Amount: clone(amount)})
	return nil
}

func (e *Engine) mintDebt(ctx context.Context, user common.Address, amount *big.Int) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	debt, err := e.state.DebtBalance(user)
	if err != nil {
		return err
	}
	if err := e.state.SetDebtBalance(user, new(big.Int).Add(debt, amount)); err != nil {
		return err
	}
	if err := e.assertHealthy(ctx, user); err != nil {
		return err
	}

	ok, err := e.stable.Mint(ctx, user, amount)
	if err := stageError(ErrMintFailed, ok, err); err != nil {
		return err
	}
	e.emit(events.DebtMinted{User: user, Amount: clone(amount)})
	return nil
}

// burnDebt reduces onBehalfOf's debt and destroys the same amount of
// stablecoin pulled from payer.
func (e *Engine) burnDebt(ctx context.Context, amount *big.Int, onBehalfOf, payer common.Address) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	debt, err := e.state.DebtBalance(onBehalfOf)
	if err != nil {
		return err
	}
	if debt.Cmp(amount) < 0 {
		return underflow(fmt.Sprintf("debt of %s", onBehalfOf.Hex()), debt, amount)
	}
	if err := e.state.SetDebtBalance(onBehalfOf, new(big.Int).Sub(debt, amount)); err != nil {
		return err
	}

	ok, err := e.stable.TransferFrom(ctx, payer, e.custody, amount)
	if err := stageError(ErrTransferFailed, ok, err); err != nil {
		return err
	}
	if err := e.stable.Burn(ctx, amount); err != nil {
		return fmt.Errorf("%w: %w", ErrBurnFailed, err)
	}
	e.emit(events.DebtBurned{OnBehalfOf: onBehalfOf, Payer: payer, Amount: clone(amount)})
	return nil
}

func (e *Engine) collateralToken(asset common.Address) (Token, error) {
	if !e.registry.Allowed(asset) {
		return nil, fmt.Errorf("%w: %s", ErrAssetNotAllowed, asset.Hex())
	}
	token, ok := e.collateral[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingToken, asset.Hex())
	}
	return token, nil
}
