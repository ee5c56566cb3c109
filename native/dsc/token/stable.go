package token

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var ErrBurnExceedsBalance = errors.New("token: burn amount exceeds custody balance")

// Stablecoin is a Token whose supply is controlled by the engine through Mint
// and Burn.
type Stablecoin struct {
	*Token
}

func NewStablecoin(symbol string, custody common.Address) *Stablecoin {
	return &Stablecoin{Token: New(symbol, custody)}
}

// Mint creates amount of tokens for to.
func (s *Stablecoin) Mint(ctx context.Context, to common.Address, amount *big.Int) (bool, error) {
	if to == (common.Address{}) {
		return false, ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return false, ErrInvalidAmount
	}
	s.mu.Lock()
	s.setBalanceLocked(to, new(big.Int).Add(s.balanceLocked(to), amount))
	s.setSupplyLocked(new(big.Int).Add(s.supply, amount))
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, common.Address{}, to, new(big.Int).Set(amount)); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Burn destroys amount of tokens held by custody.
func (s *Stablecoin) Burn(_ context.Context, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	balance := s.balanceLocked(s.custody)
	if balance.Cmp(amount) < 0 {
		return ErrBurnExceedsBalance
	}
	s.setBalanceLocked(s.custody, new(big.Int).Sub(balance, amount))
	s.setSupplyLocked(new(big.Int).Sub(s.supply, amount))
	return nil
}
