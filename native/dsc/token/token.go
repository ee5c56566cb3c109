// Package token provides in-process ERC20-style ledgers that stand in for the
// collateral assets and the stablecoin when the engine is not attached to a
// chain.
package token

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "dscengine/native/common"
)

var (
	ErrInvalidAmount = errors.New("token: amount must not be negative")
	ErrZeroAddress   = errors.New("token: zero address")
)

// TransferHook observes token movements after they are applied. Returning an
// error aborts the caller's operation; hooks receive the caller's context.
type TransferHook func(ctx context.Context, from, to common.Address, amount *big.Int) error

// Token is an in-memory fungible token. Transfer moves funds out of the
// custody account and TransferFrom spends allowances granted to custody.
type Token struct {
	mu         sync.Mutex
	symbol     string
	custody    common.Address
	supply     *big.Int
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
	hook       TransferHook
	journal    nativecommon.Journal
}

// New creates a token whose engine-side operations are performed by custody.
func New(symbol string, custody common.Address) *Token {
	return &Token{
		symbol:     strings.ToUpper(strings.TrimSpace(symbol)),
		custody:    custody,
		supply:     big.NewInt(0),
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

func (t *Token) Symbol() string { return t.symbol }

// SetTransferHook installs a hook invoked after every successful movement.
func (t *Token) SetTransferHook(hook TransferHook) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hook = hook
}

func (t *Token) BalanceOf(owner common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.balanceLocked(owner)
}

func (t *Token) TotalSupply() *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.supply)
}

func (t *Token) Allowance(owner, spender common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allowanceLocked(owner, spender)
}

// Approve sets the amount spender may pull from owner.
func (t *Token) Approve(owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setAllowanceLocked(owner, spender, amount)
	return nil
}

// Credit mints amount to owner outside of the engine's mint authority. It is
// used to fund accounts in development and tests.
func (t *Token) Credit(owner common.Address, amount *big.Int) error {
	if owner == (common.Address{}) {
		return ErrZeroAddress
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setBalanceLocked(owner, new(big.Int).Add(t.balanceLocked(owner), amount))
	t.setSupplyLocked(new(big.Int).Add(t.supply, amount))
	return nil
}

// Transfer moves amount from custody to to. It reports false when custody
// holds less than amount.
func (t *Token) Transfer(ctx context.Context, to common.Address, amount *big.Int) (bool, error) {
	return t.move(ctx, t.custody, to, amount, false)
}

// TransferFrom moves amount from from to to, spending custody's allowance
// unless from is custody itself. It reports false when the balance or the
// allowance is insufficient.
func (t *Token) TransferFrom(ctx context.Context, from, to common.Address, amount *big.Int) (bool, error) {
	return t.move(ctx, from, to, amount, from != t.custody)
}

func (t *Token) move(ctx context.Context, from, to common.Address, amount *big.Int, spendAllowance bool) (bool, error) {
	if amount == nil || amount.Sign() < 0 {
		return false, ErrInvalidAmount
	}
	if to == (common.Address{}) {
		return false, ErrZeroAddress
	}

	t.mu.Lock()
	balance := t.balanceLocked(from)
	if balance.Cmp(amount) < 0 {
		t.mu.Unlock()
		return false, nil
	}
	if spendAllowance {
		allowance := t.allowanceLocked(from, t.custody)
		if allowance.Cmp(amount) < 0 {
			t.mu.Unlock()
			return false, nil
		}
		t.setAllowanceLocked(from, t.custody, new(big.Int).Sub(allowance, amount))
	}
	t.setBalanceLocked(from, new(big.Int).Sub(balance, amount))
	t.setBalanceLocked(to, new(big.Int).Add(t.balanceLocked(to), amount))
	hook := t.hook
	t.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, from, to, new(big.Int).Set(amount)); err != nil {
			return false, fmt.Errorf("token %s: transfer hook: %w", t.symbol, err)
		}
	}
	return true, nil
}

func (t *Token) Snapshot() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.journal.Snapshot()
}

func (t *Token) RevertToSnapshot(id int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.journal.RevertToSnapshot(id)
}

func (t *Token) Release(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.journal.Release(id)
}

func (t *Token) balanceLocked(owner common.Address) *big.Int {
	if v, ok := t.balances[owner]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

func (t *Token) allowanceLocked(owner, spender common.Address) *big.Int {
	if v, ok := t.allowances[owner][spender]; ok {
		return new(big.Int).Set(v)
	}
	return big.NewInt(0)
}

func (t *Token) setBalanceLocked(owner common.Address, amount *big.Int) {
	prev, had := t.balances[owner]
	t.journal.Record(func() {
		if had {
			t.balances[owner] = prev
		} else {
			delete(t.balances, owner)
		}
	})
	t.balances[owner] = amount
}

func (t *Token) setAllowanceLocked(owner, spender common.Address, amount *big.Int) {
	spenders, ok := t.allowances[owner]
	if !ok {
		spenders = make(map[common.Address]*big.Int)
		t.allowances[owner] = spenders
	}
	prev, had := spenders[spender]
	t.journal.Record(func() {
		if had {
			spenders[spender] = prev
		} else {
			delete(spenders, spender)
		}
	})
	spenders[spender] = new(big.Int).Set(amount)
}

func (t *Token) setSupplyLocked(amount *big.Int) {
	prev := t.supply
	t.journal.Record(func() { t.supply = prev })
	t.supply = amount
}
