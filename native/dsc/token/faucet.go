package token

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnknownAsset = errors.New("token: unknown faucet asset")
	ErrFaucetLimit  = errors.New("token: amount exceeds faucet limit")
	maxAllowance    = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

// Faucet funds development accounts with collateral and grants custody an
// unlimited allowance over the account's collateral and stablecoin, so the
// account can operate through a custodial gateway.
type Faucet struct {
	custody common.Address
	stable  *Stablecoin
	tokens  map[common.Address]*Token
	limit   *big.Int
	run     Exclusive
}

// Exclusive runs fn while no engine operation is in flight.
type Exclusive func(ctx context.Context, fn func() error) error

// NewFaucet builds a faucet over tokens keyed by asset address. A nil or zero
// limit disables the per-request cap.
func NewFaucet(custody common.Address, stable *Stablecoin, tokens map[common.Address]*Token, limit *big.Int) *Faucet {
	copied := make(map[common.Address]*Token, len(tokens))
	for asset, tok := range tokens {
		copied[asset] = tok
	}
	return &Faucet{custody: custody, stable: stable, tokens: copied, limit: limit}
}

// Fund credits amount of asset to to and approves custody.
func (f *Faucet) Fund(asset, to common.Address, amount *big.Int) error {
	tok, ok := f.tokens[asset]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAsset, asset.Hex())
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if f.limit != nil && f.limit.Sign() > 0 && amount.Cmp(f.limit) > 0 {
		return fmt.Errorf("%w: %s > %s", ErrFaucetLimit, amount, f.limit)
	}
	if err := tok.Credit(to, amount); err != nil {
		return err
	}
	if err := tok.Approve(to, f.custody, maxAllowance); err != nil {
		return err
	}
	if f.stable != nil {
		return f.stable.Approve(to, f.custody, maxAllowance)
	}
	return nil
}

// WithExclusive serializes FundContext against engine operations so a
// credit can never be rolled back by an operation's snapshot.
func (f *Faucet) WithExclusive(run Exclusive) *Faucet {
	f.run = run
	return f
}

// FundContext is Fund run through the configured Exclusive.
func (f *Faucet) FundContext(ctx context.Context, asset, to common.Address, amount *big.Int) error {
	if f.run == nil {
		return f.Fund(asset, to, amount)
	}
	return f.run(ctx, func() error { return f.Fund(asset, to, amount) })
}

// Balance reports to's wallet balance of asset, outside of the engine.
func (f *Faucet) Balance(asset, to common.Address) (*big.Int, error) {
	if f.stable != nil && asset == (common.Address{}) {
		return f.stable.BalanceOf(to), nil
	}
	tok, ok := f.tokens[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, asset.Hex())
	}
	return tok.BalanceOf(to), nil
}
