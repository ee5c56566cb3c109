package dsc

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "dscengine/native/common"
)

// Token is the transfer surface of a collateral asset or the stablecoin. The
// engine's custody account is the implicit sender of Transfer and the spender
// of TransferFrom.
type Token interface {
	TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) (bool, error)
	Transfer(ctx context.Context, to common.Address, amount *big.Int) (bool, error)
}

// StableToken is the stablecoin with the mint and burn authority granted to
// the engine. Burn destroys tokens already held in custody.
type StableToken interface {
	Token
	Mint(ctx context.Context, to common.Address, amount *big.Int) (bool, error)
	Burn(ctx context.Context, amount *big.Int) error
}

// PriceFeed returns the latest signed 8-decimal USD quote published by feed.
type PriceFeed interface {
	LatestQuote(ctx context.Context, feed common.Address) (*big.Int, error)
}

// engineState is the ledger persistence the engine writes through. Backends
// journal their writes so a failed operation can be reverted.
type engineState interface {
	CollateralBalance(user, asset common.Address) (*big.Int, error)
	SetCollateralBalance(user, asset common.Address, amount *big.Int) error
	DebtBalance(user common.Address) (*big.Int, error)
	SetDebtBalance(user common.Address, amount *big.Int) error
	Accounts() ([]common.Address, error)
	nativecommon.Transactional
}

// committer is implemented by backends that persist state once an operation
// succeeds.
type committer interface {
	Commit() (common.Hash, error)
}

// resetter is implemented by persistent backends that can drop every
// uncommitted write.
type resetter interface {
	Root() common.Hash
	Reset(root common.Hash) error
}

// AccountInfo is the ledger and solvency view of a single account.
type AccountInfo struct {
	Account       common.Address
	Debt          *big.Int
	CollateralUSD *big.Int
	HealthFactor  *big.Int
}

// LiquidationResult describes a completed liquidation.
type LiquidationResult struct {
	Target             common.Address
	Liquidator         common.Address
	Asset              common.Address
	DebtCovered        *big.Int
	CollateralSeized   *big.Int
	Bonus              *big.Int
	HealthFactorBefore *big.Int
	HealthFactorAfter  *big.Int
}

// Solvency aggregates the ledger across every indexed account.
type Solvency struct {
	Accounts            int
	TotalDebt           *big.Int
	TotalCollateralUSD  *big.Int
	Undercollateralized int
}

// Overcollateralized reports whether half the aggregate collateral value
// covers the aggregate debt.
func (s *Solvency) Overcollateralized() bool {
	if s == nil || s.TotalDebt == nil || s.TotalCollateralUSD == nil {
		return true
	}
	adjusted := new(big.Int).Mul(s.TotalCollateralUSD, liquidationThreshold)
	adjusted.Quo(adjusted, liquidationPrecision)
	return adjusted.Cmp(s.TotalDebt) >= 0
}
