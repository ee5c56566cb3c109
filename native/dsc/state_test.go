package dsc

import (
	"context"
	"errors"
	"math/big"
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestNewRegistryValidation(t *testing.T) {
	if _, err := NewRegistry([]common.Address{wethAddr}, nil); !errors.Is(err, ErrRegistryLengthMismatch) {
		t.Fatalf("expected ErrRegistryLengthMismatch, got %v", err)
	}
	if _, err := NewRegistry([]common.Address{wethAddr, wethAddr}, []common.Address{wethFeed, wbtcFeed}); !errors.Is(err, ErrDuplicateAsset) {
		t.Fatalf("expected ErrDuplicateAsset, got %v", err)
	}
	if _, err := NewRegistry([]common.Address{{}}, []common.Address{wethFeed}); !errors.Is(err, ErrZeroAddress) {
		t.Fatalf("expected ErrZeroAddress, got %v", err)
	}
	registry, err := NewRegistry([]common.Address{wethAddr}, []common.Address{wethFeed})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	assets := registry.Assets()
	assets[0] = otherAddr
	if !registry.Allowed(wethAddr) || registry.Allowed(otherAddr) {
		t.Fatalf("registry must not be mutable through Assets")
	}
}

func TestNewEngineRequiresTokenPerAsset(t *testing.T) {
	env := newTestEnv(t)
	_, err := NewEngine(Config{
		Registry:   env.engine.registry,
		Custody:    custodyAddr,
		Oracle:     env.feed,
		Stable:     env.stable,
		Collateral: map[common.Address]Token{wethAddr: env.weth},
	})
	if !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestMemoryStateJournal(t *testing.T) {
	s := NewMemoryState()
	if err := s.SetDebtBalance(userAddr, big.NewInt(5)); err != nil {
		t.Fatalf("set debt: %v", err)
	}
	id := s.Snapshot()
	_ = s.SetDebtBalance(userAddr, big.NewInt(0))
	_ = s.SetCollateralBalance(otherAddr, wethAddr, big.NewInt(9))
	if err := s.RevertToSnapshot(id); err != nil {
		t.Fatalf("revert: %v", err)
	}

	debt, _ := s.DebtBalance(userAddr)
	if debt.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("expected debt restored, got %s", debt)
	}
	accounts, _ := s.Accounts()
	if len(accounts) != 1 || accounts[0] != userAddr {
		t.Fatalf("unexpected accounts %v", accounts)
	}
}

func TestSystemSolvency(t *testing.T) {
	env := newTestEnv(t)
	env.open(t, userAddr, ether(10), ether(100))
	env.open(t, otherAddr, ether(1), ether(900))

	solvency, err := env.engine.SystemSolvency(context.Background())
	if err != nil {
		t.Fatalf("solvency: %v", err)
	}
	if solvency.Accounts != 2 || solvency.Undercollateralized != 0 {
		t.Fatalf("unexpected solvency %+v", solvency)
	}
	expectEqual(t, "total debt", solvency.TotalDebt, ether(1_000))
	expectEqual(t, "total collateral", solvency.TotalCollateralUSD, ether(22_000))
	if !solvency.Overcollateralized() {
		t.Fatalf("expected overcollateralised system")
	}

	env.feed.Set(wethFeed, price(100))
	solvency, err = env.engine.SystemSolvency(context.Background())
	if err != nil {
		t.Fatalf("solvency: %v", err)
	}
	if solvency.Undercollateralized != 1 || solvency.Overcollateralized() {
		t.Fatalf("expected one undercollateralised account, got %+v", solvency)
	}
}

// TestRandomOperationsPreserveSolvency drives a random mix of operations at a
// fixed price and checks that every indebted account stays overcollateralised
// at the configured threshold.
func TestRandomOperationsPreserveSolvency(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	users := []common.Address{userAddr, otherAddr, liquidatorAddr}
	for _, user := range users {
		env.fund(t, env.weth, user, ether(1_000))
		env.fund(t, env.wbtc, user, ether(1_000))
		_ = env.stable.Approve(user, custodyAddr, ether(10_000_000))
	}
	assets := []common.Address{wethAddr, wbtcAddr}

	for i := 0; i < 500; i++ {
		user := users[rng.Intn(len(users))]
		asset := assets[rng.Intn(len(assets))]
		amount := ether(int64(rng.Intn(50)))
		switch rng.Intn(4) {
		case 0:
			_ = env.engine.DepositCollateral(ctx, user, asset, amount)
		case 1:
			_ = env.engine.RedeemCollateral(ctx, user, asset, amount)
		case 2:
			_ = env.engine.MintDebt(ctx, user, new(big.Int).Mul(amount, big.NewInt(200)))
		case 3:
			_ = env.engine.BurnDebt(ctx, user, new(big.Int).Mul(amount, big.NewInt(100)))
		}

		for _, u := range users {
			info, err := env.engine.AccountInformation(ctx, u)
			if err != nil {
				t.Fatalf("account information: %v", err)
			}
			if info.Debt.Sign() == 0 {
				continue
			}
			adjusted := new(big.Int).Mul(info.CollateralUSD, liquidationThreshold)
			adjusted.Quo(adjusted, liquidationPrecision)
			if adjusted.Cmp(info.Debt) < 0 {
				t.Fatalf("step %d: account %s undercollateralised: %s collateral, %s debt", i, u.Hex(), info.CollateralUSD, info.Debt)
			}
			expectEqual(t, "stablecoin held", env.stable.BalanceOf(u), info.Debt)
		}
	}
}
