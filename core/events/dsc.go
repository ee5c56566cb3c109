package events

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"dscengine/core/types"
)

const (
	// TypeCollateralDeposited is emitted when collateral is credited to an account.
	TypeCollateralDeposited = "dsc.collateral.deposited"
	// TypeCollateralRedeemed is emitted when collateral leaves an account,
	// either through a redemption or a liquidation seizure.
	TypeCollateralRedeemed = "dsc.collateral.redeemed"
	// TypeDebtMinted is emitted when stablecoin debt is issued.
	TypeDebtMinted = "dsc.debt.minted"
	// TypeDebtBurned is emitted when stablecoin debt is repaid.
	TypeDebtBurned = "dsc.debt.burned"
	// TypePositionLiquidated is emitted once a liquidation completes.
	TypePositionLiquidated = "dsc.position.liquidated"
)

type CollateralDeposited struct {
	User   common.Address
	Asset  common.Address
	Amount *big.Int
}

func (CollateralDeposited) EventType() string { return TypeCollateralDeposited }

func (e CollateralDeposited) Event() *types.Event {
	return &types.Event{
		Type: TypeCollateralDeposited,
		Attributes: map[string]string{
			"user":   e.User.Hex(),
			"asset":  e.Asset.Hex(),
			"amount": amountString(e.Amount),
		},
	}
}

type CollateralRedeemed struct {
	From   common.Address
	To     common.Address
	Asset  common.Address
	Amount *big.Int
}

func (CollateralRedeemed) EventType() string { return TypeCollateralRedeemed }

func (e CollateralRedeemed) Event() *types.Event {
	return &types.Event{
		Type: TypeCollateralRedeemed,
		Attributes: map[string]string{
			"from":   e.From.Hex(),
			"to":     e.To.Hex(),
			"asset":  e.Asset.Hex(),
			"amount": amountString(e.Amount),
		},
	}
}

type DebtMinted struct {
	User   common.Address
	Amount *big.Int
}

func (DebtMinted) EventType() string { return TypeDebtMinted }

func (e DebtMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeDebtMinted,
		Attributes: map[string]string{
			"user":   e.User.Hex(),
			"amount": amountString(e.Amount),
		},
	}
}

type DebtBurned struct {
	OnBehalfOf common.Address
	Payer      common.Address
	Amount     *big.Int
}

func (DebtBurned) EventType() string { return TypeDebtBurned }

func (e DebtBurned) Event() *types.Event {
	return &types.Event{
		Type: TypeDebtBurned,
		Attributes: map[string]string{
			"onBehalfOf": e.OnBehalfOf.Hex(),
			"payer":      e.Payer.Hex(),
			"amount":     amountString(e.Amount),
		},
	}
}

// PositionLiquidated summarises a completed liquidation, including the health
// factor of the target before and after.
type PositionLiquidated struct {
	Liquidator         common.Address
	Target             common.Address
	Asset              common.Address
	DebtCovered        *big.Int
	CollateralSeized   *big.Int
	Bonus              *big.Int
	HealthFactorBefore *big.Int
	HealthFactorAfter  *big.Int
}

func (PositionLiquidated) EventType() string { return TypePositionLiquidated }

func (e PositionLiquidated) Event() *types.Event {
	return &types.Event{
		Type: TypePositionLiquidated,
		Attributes: map[string]string{
			"liquidator":         e.Liquidator.Hex(),
			"target":             e.Target.Hex(),
			"asset":              e.Asset.Hex(),
			"debtCovered":        amountString(e.DebtCovered),
			"collateralSeized":   amountString(e.CollateralSeized),
			"bonus":              amountString(e.Bonus),
			"healthFactorBefore": amountString(e.HealthFactorBefore),
			"healthFactorAfter":  amountString(e.HealthFactorAfter),
		},
	}
}

// PrimaryAccount returns the account an indexer should file the event under.
func PrimaryAccount(evt Event) common.Address {
	switch e := evt.(type) {
	case CollateralDeposited:
		return e.User
	case CollateralRedeemed:
		return e.From
	case DebtMinted:
		return e.User
	case DebtBurned:
		return e.OnBehalfOf
	case PositionLiquidated:
		return e.Target
	default:
		return common.Address{}
	}
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
