package dsc

import (
	"context"
	"errors"
	"math/big"
	"testing"
)

func TestCalculateHealthFactor(t *testing.T) {
	expectEqual(t, "zero debt", CalculateHealthFactor(big.NewInt(0), ether(5)), maxHealthFactor)
	expectEqual(t, "nil debt", CalculateHealthFactor(nil, nil), maxHealthFactor)
	expectEqual(t, "200% collateralised", CalculateHealthFactor(ether(100), ether(200)), ether(1))
	expectEqual(t, "below minimum", CalculateHealthFactor(ether(100), ether(180)), big.NewInt(900_000_000_000_000_000))
}

func TestHealthFactorAfterMint(t *testing.T) {
	env := newTestEnv(t)
	env.open(t, userAddr, ether(10), ether(100))
	expectEqual(t, "health factor", env.mustHealth(t, userAddr), ether(100))
}

func TestHealthFactorAfterPriceDrop(t *testing.T) {
	env := newTestEnv(t)
	env.open(t, userAddr, ether(10), ether(100))
	env.feed.Set(wethFeed, price(18))
	expectEqual(t, "health factor", env.mustHealth(t, userAddr), big.NewInt(900_000_000_000_000_000))
}

func TestAccountInformationScansEveryAsset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.fund(t, env.weth, userAddr, ether(1))
	env.fund(t, env.wbtc, userAddr, ether(2))
	if err := env.engine.DepositCollateral(ctx, userAddr, wethAddr, ether(1)); err != nil {
		t.Fatalf("deposit weth: %v", err)
	}
	if err := env.engine.DepositCollateral(ctx, userAddr, wbtcAddr, ether(2)); err != nil {
		t.Fatalf("deposit wbtc: %v", err)
	}

	info, err := env.engine.AccountInformation(ctx, userAddr)
	if err != nil {
		t.Fatalf("account information: %v", err)
	}
	expectEqual(t, "collateral usd", info.CollateralUSD, ether(4000))
	expectEqual(t, "debt", info.Debt, big.NewInt(0))
	expectEqual(t, "health factor", info.HealthFactor, maxHealthFactor)
}

func TestQueriesForUnknownAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	info, err := env.engine.AccountInformation(ctx, otherAddr)
	if err != nil {
		t.Fatalf("account information: %v", err)
	}
	if info.Debt.Sign() != 0 || info.CollateralUSD.Sign() != 0 {
		t.Fatalf("expected empty account, got %+v", info)
	}
	expectEqual(t, "collateral", env.mustCollateral(t, otherAddr, otherAddr), big.NewInt(0))
	expectEqual(t, "health factor", env.mustHealth(t, otherAddr), maxHealthFactor)

	value, err := env.engine.AccountCollateralValue(ctx, otherAddr)
	if err != nil || value.Sign() != 0 {
		t.Fatalf("expected zero collateral value, got %v %v", value, err)
	}
	if got := env.engine.CollateralTokens(); len(got) != 2 || got[0] != wethAddr || got[1] != wbtcAddr {
		t.Fatalf("unexpected collateral tokens %v", got)
	}
	if feed, ok := env.engine.PriceFeed(wbtcAddr); !ok || feed != wbtcFeed {
		t.Fatalf("unexpected feed %s", feed.Hex())
	}
	params := env.engine.Params()
	if params.LiquidationThreshold != 50 || params.LiquidationPrecision != 100 || params.LiquidationBonus != 10 {
		t.Fatalf("unexpected params %+v", params)
	}
	params.MinHealthFactor.SetInt64(0)
	expectEqual(t, "min health factor", env.engine.Params().MinHealthFactor, ether(1))
}

func TestFeedErrorsSurfaceFromQueries(t *testing.T) {
	env := newTestEnv(t)
	env.open(t, userAddr, ether(1), ether(1))
	env.feed.Set(wethFeed, nil)
	if _, err := env.engine.HealthFactor(context.Background(), userAddr); err == nil {
		t.Fatalf("expected feed error")
	}
	if _, err := env.engine.HealthFactor(context.Background(), otherAddr); err == nil {
		t.Fatalf("expected feed error for full registry scan")
	}
	if err := env.engine.MintDebt(context.Background(), userAddr, ether(1)); err == nil || errors.Is(err, ErrBreaksHealthFactor) {
		t.Fatalf("expected feed error, got %v", err)
	}
	expectEqual(t, "debt", env.mustDebt(t, userAddr), ether(1))
}
