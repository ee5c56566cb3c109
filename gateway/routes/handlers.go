package routes

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"dscengine/core/types"
	"dscengine/crypto"
	"dscengine/native/dsc"
)

// Engine is the engine surface served over HTTP.
type Engine interface {
	DepositCollateral(ctx context.Context, user, asset common.Address, amount *big.Int) error
	RedeemCollateral(ctx context.Context, user, asset common.Address, amount *big.Int) error
	MintDebt(ctx context.Context, user common.Address, amount *big.Int) error
	BurnDebt(ctx context.Context, user common.Address, amount *big.Int) error
	DepositCollateralAndMint(ctx context.Context, user, asset common.Address, collateral, debt *big.Int) error
	RedeemCollateralForDebt(ctx context.Context, user, asset common.Address, collateral, debt *big.Int) error
	Liquidate(ctx context.Context, liquidator, target, asset common.Address, debtToCover *big.Int) (*dsc.LiquidationResult, error)

	AccountInformation(ctx context.Context, user common.Address) (*dsc.AccountInfo, error)
	CollateralBalance(ctx context.Context, user, asset common.Address) (*big.Int, error)
	USDValue(ctx context.Context, asset common.Address, amount *big.Int) (*big.Int, error)
	SystemSolvency(ctx context.Context) (*dsc.Solvency, error)
	CollateralTokens() []common.Address
	PriceFeed(asset common.Address) (common.Address, bool)
	Params() dsc.Params
}

// Faucet credits development collateral to an account.
type Faucet interface {
	FundContext(ctx context.Context, asset, to common.Address, amount *big.Int) error
}

type handlers struct {
	engine  Engine
	faucet  Faucet
	events  EventLog
	symbols map[common.Address]string
}

type opRequest struct {
	Account     string `json:"account"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
	Collateral  string `json:"collateral"`
	Debt        string `json:"debt"`
	Liquidator  string `json:"liquidator"`
	Target      string `json:"target"`
	DebtToCover string `json:"debtToCover"`
}

type opResponse struct {
	Op      string      `json:"op"`
	Account string      `json:"account"`
	Health  *healthView `json:"health,omitempty"`
}

type healthView struct {
	Debt          amountView `json:"debt"`
	CollateralUSD amountView `json:"collateralUsd"`
	HealthFactor  string     `json:"healthFactor"`
	Healthy       bool       `json:"healthy"`
}

type collateralPosition struct {
	Asset  string     `json:"asset"`
	Symbol string     `json:"symbol,omitempty"`
	Amount amountView `json:"amount"`
}

type accountResponse struct {
	Account    string               `json:"account"`
	Bech32     string               `json:"bech32"`
	Health     healthView           `json:"health"`
	Collateral []collateralPosition `json:"collateral"`
}

type collateralEntry struct {
	Asset  string `json:"asset"`
	Symbol string `json:"symbol,omitempty"`
	Feed   string `json:"feed"`
}

type paramsResponse struct {
	Precision               string `json:"precision"`
	AdditionalFeedPrecision string `json:"additionalFeedPrecision"`
	LiquidationThreshold    uint64 `json:"liquidationThreshold"`
	LiquidationPrecision    uint64 `json:"liquidationPrecision"`
	LiquidationBonus        uint64 `json:"liquidationBonus"`
	MinHealthFactor         string `json:"minHealthFactor"`
	MaxHealthFactor         string `json:"maxHealthFactor"`
}

type solvencyResponse struct {
	Accounts            int        `json:"accounts"`
	TotalDebt           amountView `json:"totalDebt"`
	TotalCollateralUSD  amountView `json:"totalCollateralUsd"`
	Undercollateralized int        `json:"undercollateralized"`
	Overcollateralized  bool       `json:"overcollateralized"`
}

type liquidationResponse struct {
	Target             string     `json:"target"`
	Liquidator         string     `json:"liquidator"`
	Asset              string     `json:"asset"`
	DebtCovered        amountView `json:"debtCovered"`
	CollateralSeized   amountView `json:"collateralSeized"`
	Bonus              amountView `json:"bonus"`
	HealthFactorBefore string     `json:"healthFactorBefore"`
	HealthFactorAfter  string     `json:"healthFactorAfter"`
}

func (h *handlers) health(info *dsc.AccountInfo) healthView {
	floor := h.engine.Params().MinHealthFactor
	return healthView{
		Debt:          viewAmount(info.Debt),
		CollateralUSD: viewAmount(info.CollateralUSD),
		HealthFactor:  info.HealthFactor.String(),
		Healthy:       info.HealthFactor.Cmp(floor) >= 0,
	}
}

func (h *handlers) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := pathAddress(r, "addr")
	if err != nil {
		writeError(w, r, err)
		return
	}
	info, err := h.engine.AccountInformation(r.Context(), account)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := accountResponse{
		Account:    account.Hex(),
		Bech32:     crypto.FormatAddress(account),
		Health:     h.health(info),
		Collateral: []collateralPosition{},
	}
	for _, asset := range h.engine.CollateralTokens() {
		balance, err := h.engine.CollateralBalance(r.Context(), account, asset)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if balance.Sign() == 0 {
			continue
		}
		resp.Collateral = append(resp.Collateral, collateralPosition{
			Asset:  asset.Hex(),
			Symbol: h.symbols[asset],
			Amount: viewAmount(balance),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) getCollateralBalance(w http.ResponseWriter, r *http.Request) {
	account, err := pathAddress(r, "addr")
	if err != nil {
		writeError(w, r, err)
		return
	}
	asset, err := pathAddress(r, "asset")
	if err != nil {
		writeError(w, r, err)
		return
	}
	balance, err := h.engine.CollateralBalance(r.Context(), account, asset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, collateralPosition{
		Asset:  asset.Hex(),
		Symbol: h.symbols[asset],
		Amount: viewAmount(balance),
	})
}

func (h *handlers) listCollateral(w http.ResponseWriter, _ *http.Request) {
	assets := h.engine.CollateralTokens()
	out := make([]collateralEntry, 0, len(assets))
	for _, asset := range assets {
		feed, _ := h.engine.PriceFeed(asset)
		out = append(out, collateralEntry{Asset: asset.Hex(), Symbol: h.symbols[asset], Feed: feed.Hex()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handlers) getParams(w http.ResponseWriter, _ *http.Request) {
	p := h.engine.Params()
	writeJSON(w, http.StatusOK, paramsResponse{
		Precision:               p.Precision.String(),
		AdditionalFeedPrecision: p.AdditionalFeedPrecision.String(),
		LiquidationThreshold:    p.LiquidationThreshold,
		LiquidationPrecision:    p.LiquidationPrecision,
		LiquidationBonus:        p.LiquidationBonus,
		MinHealthFactor:         p.MinHealthFactor.String(),
		MaxHealthFactor:         p.MaxHealthFactor.String(),
	})
}

func (h *handlers) getValue(w http.ResponseWriter, r *http.Request) {
	asset, err := pathAddress(r, "asset")
	if err != nil {
		writeError(w, r, err)
		return
	}
	amount, err := parseAmount("amount", r.URL.Query().Get("amount"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	value, err := h.engine.USDValue(r.Context(), asset, amount)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"asset":  asset.Hex(),
		"amount": viewAmount(amount),
		"usd":    viewAmount(value),
	})
}

func (h *handlers) getSolvency(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.SystemSolvency(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, solvencyResponse{
		Accounts:            s.Accounts,
		TotalDebt:           viewAmount(s.TotalDebt),
		TotalCollateralUSD:  viewAmount(s.TotalCollateralUSD),
		Undercollateralized: s.Undercollateralized,
		Overcollateralized:  s.Overcollateralized(),
	})
}

// operation adapts a mutating engine call into a handler that decodes the
// shared request body and answers with the account's post-op health.
func (h *handlers) operation(op string, run func(ctx context.Context, req opRequest) (common.Address, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req opRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		account, err := run(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp := opResponse{Op: op, Account: account.Hex()}
		if info, err := h.engine.AccountInformation(r.Context(), account); err == nil {
			view := h.health(info)
			resp.Health = &view
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (h *handlers) deposit(ctx context.Context, req opRequest) (common.Address, error) {
	user, asset, amount, err := parseAccountAssetAmount(req.Account, req.Asset, "amount", req.Amount)
	if err != nil {
		return common.Address{}, err
	}
	return user, h.engine.DepositCollateral(ctx, user, asset, amount)
}

func (h *handlers) redeem(ctx context.Context, req opRequest) (common.Address, error) {
	user, asset, amount, err := parseAccountAssetAmount(req.Account, req.Asset, "amount", req.Amount)
	if err != nil {
		return common.Address{}, err
	}
	return user, h.engine.RedeemCollateral(ctx, user, asset, amount)
}

func (h *handlers) mint(ctx context.Context, req opRequest) (common.Address, error) {
	user, err := parseAddress("account", req.Account)
	if err != nil {
		return common.Address{}, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return common.Address{}, err
	}
	return user, h.engine.MintDebt(ctx, user, amount)
}

func (h *handlers) burn(ctx context.Context, req opRequest) (common.Address, error) {
	user, err := parseAddress("account", req.Account)
	if err != nil {
		return common.Address{}, err
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		return common.Address{}, err
	}
	return user, h.engine.BurnDebt(ctx, user, amount)
}

func (h *handlers) depositAndMint(ctx context.Context, req opRequest) (common.Address, error) {
	user, asset, collateral, err := parseAccountAssetAmount(req.Account, req.Asset, "collateral", req.Collateral)
	if err != nil {
		return common.Address{}, err
	}
	debt, err := parseAmount("debt", req.Debt)
	if err != nil {
		return common.Address{}, err
	}
	return user, h.engine.DepositCollateralAndMint(ctx, user, asset, collateral, debt)
}

func (h *handlers) redeemForDebt(ctx context.Context, req opRequest) (common.Address, error) {
	user, asset, collateral, err := parseAccountAssetAmount(req.Account, req.Asset, "collateral", req.Collateral)
	if err != nil {
		return common.Address{}, err
	}
	debt, err := parseAmount("debt", req.Debt)
	if err != nil {
		return common.Address{}, err
	}
	return user, h.engine.RedeemCollateralForDebt(ctx, user, asset, collateral, debt)
}

func (h *handlers) liquidate(w http.ResponseWriter, r *http.Request) {
	var req opRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	liquidator, err := parseAddress("liquidator", req.Liquidator)
	if err != nil {
		writeError(w, r, err)
		return
	}
	target, asset, debt, err := parseAccountAssetAmount(req.Target, req.Asset, "debtToCover", req.DebtToCover)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.engine.Liquidate(r.Context(), liquidator, target, asset, debt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, liquidationResponse{
		Target:             result.Target.Hex(),
		Liquidator:         result.Liquidator.Hex(),
		Asset:              result.Asset.Hex(),
		DebtCovered:        viewAmount(result.DebtCovered),
		CollateralSeized:   viewAmount(result.CollateralSeized),
		Bonus:              viewAmount(result.Bonus),
		HealthFactorBefore: result.HealthFactorBefore.String(),
		HealthFactorAfter:  result.HealthFactorAfter.String(),
	})
}

func (h *handlers) fund(ctx context.Context, req opRequest) (common.Address, error) {
	user, asset, amount, err := parseAccountAssetAmount(req.Account, req.Asset, "amount", req.Amount)
	if err != nil {
		return common.Address{}, err
	}
	return user, h.faucet.FundContext(ctx, asset, user, amount)
}

func pathAddress(r *http.Request, param string) (common.Address, error) {
	return parseAddress(param, chi.URLParam(r, param))
}

func parseAddress(field, value string) (common.Address, error) {
	if strings.TrimSpace(value) == "" {
		return common.Address{}, invalid(fmt.Errorf("%s is required", field))
	}
	addr, err := crypto.ParseAddress(value)
	if err != nil {
		return common.Address{}, invalid(fmt.Errorf("%s: %w", field, err))
	}
	return addr, nil
}

func parseAmount(field, value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, invalid(fmt.Errorf("%s is required", field))
	}
	amount, err := types.ParseAmountOrUnits(value)
	if err != nil {
		return nil, invalid(fmt.Errorf("%s: %w", field, err))
	}
	return amount, nil
}

func parseAccountAssetAmount(account, asset, field, amount string) (common.Address, common.Address, *big.Int, error) {
	user, err := parseAddress("account", account)
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	token, err := parseAddress("asset", asset)
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	value, err := parseAmount(field, amount)
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	return user, token, value, nil
}
