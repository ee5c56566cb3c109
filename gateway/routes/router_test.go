package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"dscengine/gateway/middleware"
	"dscengine/native/dsc"
	"dscengine/native/dsc/feeds"
	"dscengine/native/dsc/token"
	"dscengine/services/indexer"
)

var (
	custody = common.HexToAddress("0xc057")
	weth    = common.HexToAddress("0x1001")
	wethFee = common.HexToAddress("0xf001")
	alice   = common.HexToAddress("0xa11ce")
	bob     = common.HexToAddress("0xb0b")
)

type pauseSet map[string]bool

func (p pauseSet) IsPaused(module string) bool { return p[module] }

type fixture struct {
	engine  *dsc.Engine
	feed    *feeds.Static
	pauses  pauseSet
	handler http.Handler
}

func usd(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(100_000_000))
}

func newFixture(t *testing.T, mutate func(*Config)) *fixture {
	t.Helper()
	registry, err := dsc.NewRegistry([]common.Address{weth}, []common.Address{wethFee})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	feed := feeds.NewStatic()
	feed.Set(wethFee, usd(2000))
	collateral := token.New("weth", custody)
	stable := token.NewStablecoin("dsc", custody)
	engine, err := dsc.NewEngine(dsc.Config{
		Registry:   registry,
		Custody:    custody,
		Oracle:     feed,
		Stable:     stable,
		Collateral: map[common.Address]dsc.Token{weth: collateral},
	})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	engine.SetState(dsc.NewMemoryState())
	pauses := pauseSet{}
	engine.SetPauses(pauses)

	faucet := token.NewFaucet(custody, stable, map[common.Address]*token.Token{weth: collateral}, nil).
		WithExclusive(engine.Exclusive)
	cfg := Config{
		Engine:  engine,
		Faucet:  faucet,
		Symbols: map[common.Address]string{weth: "WETH"},
		Stream:  NewStream(4, nil, nil),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	handler, err := New(cfg)
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	return &fixture{engine: engine, feed: feed, pauses: pauses, handler: handler}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode %s: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func (f *fixture) mustPost(t *testing.T, path string, body map[string]string) map[string]interface{} {
	t.Helper()
	rec, decoded := f.do(t, http.MethodPost, path, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("POST %s: status %d body %s", path, rec.Code, rec.Body.String())
	}
	return decoded
}

func field(t *testing.T, m map[string]interface{}, path ...string) interface{} {
	t.Helper()
	var current interface{} = m
	for _, key := range path {
		obj, ok := current.(map[string]interface{})
		if !ok {
			t.Fatalf("field %v: %v is not an object", path, current)
		}
		current = obj[key]
	}
	return current
}

func (f *fixture) open(t *testing.T, user common.Address, collateral, debt string) {
	t.Helper()
	f.mustPost(t, "/v1/dev/faucet", map[string]string{"account": user.Hex(), "asset": weth.Hex(), "amount": collateral})
	f.mustPost(t, "/v1/deposit-and-mint", map[string]string{
		"account": user.Hex(), "asset": weth.Hex(), "collateral": collateral, "debt": debt,
	})
}

func TestDepositAndMintReportsHealth(t *testing.T) {
	f := newFixture(t, nil)
	f.mustPost(t, "/v1/dev/faucet", map[string]string{"account": alice.Hex(), "asset": weth.Hex(), "amount": "10"})
	resp := f.mustPost(t, "/v1/deposit-and-mint", map[string]string{
		"account": alice.Hex(), "asset": weth.Hex(), "collateral": "10", "debt": "5000",
	})
	if got := field(t, resp, "health", "debt", "display"); got != "5000" {
		t.Fatalf("unexpected debt %v", got)
	}
	if got := field(t, resp, "health", "healthFactor"); got != "2000000000000000000" {
		t.Fatalf("unexpected health factor %v", got)
	}
	if got := field(t, resp, "health", "healthy"); got != true {
		t.Fatalf("expected healthy position")
	}

	rec, account := f.do(t, http.MethodGet, "/v1/accounts/"+alice.Hex(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("account status %d", rec.Code)
	}
	positions, ok := account["collateral"].([]interface{})
	if !ok || len(positions) != 1 {
		t.Fatalf("unexpected collateral %v", account["collateral"])
	}
	position := positions[0].(map[string]interface{})
	if position["symbol"] != "WETH" || field(t, position, "amount", "display") != "10" {
		t.Fatalf("unexpected position %v", position)
	}
	if !strings.HasPrefix(account["bech32"].(string), "dsc1") {
		t.Fatalf("unexpected bech32 %v", account["bech32"])
	}
}

func TestMintBeyondCapacityRejected(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t, alice, "10", "5000")

	rec, body := f.do(t, http.MethodPost, "/v1/mint", map[string]string{"account": alice.Hex(), "amount": "5001"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["code"] != "breaks_health_factor" {
		t.Fatalf("unexpected code %v", body["code"])
	}
	if hf, _ := body["healthFactor"].(string); hf == "" {
		t.Fatalf("expected health factor in error body")
	}
	if body["requestId"] == "" || rec.Header().Get(middleware.HeaderRequestID) == "" {
		t.Fatalf("expected request id")
	}

	debt, err := f.engine.DebtOf(context.Background(), alice)
	if err != nil {
		t.Fatalf("debt: %v", err)
	}
	if debt.Cmp(new(big.Int).Mul(big.NewInt(5000), big.NewInt(1e18))) != 0 {
		t.Fatalf("rejected mint changed debt to %s", debt)
	}
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t, nil)
	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"bad address", http.MethodGet, "/v1/accounts/nope", nil, http.StatusBadRequest, "invalid_request"},
		{"missing amount", http.MethodPost, "/v1/mint", map[string]string{"account": alice.Hex()}, http.StatusBadRequest, "invalid_request"},
		{"negative amount", http.MethodPost, "/v1/mint", map[string]string{"account": alice.Hex(), "amount": "-1"}, http.StatusBadRequest, "invalid_request"},
		{"zero amount", http.MethodPost, "/v1/mint", map[string]string{"account": alice.Hex(), "amount": "0"}, http.StatusBadRequest, "needs_more_than_zero"},
		{"unknown field", http.MethodPost, "/v1/burn", map[string]string{"account": alice.Hex(), "amount": "1", "memo": "x"}, http.StatusBadRequest, "invalid_request"},
		{"unlisted asset", http.MethodPost, "/v1/deposit", map[string]string{"account": alice.Hex(), "asset": bob.Hex(), "amount": "1"}, http.StatusBadRequest, "asset_not_allowed"},
		{"burn without debt", http.MethodPost, "/v1/burn", map[string]string{"account": alice.Hex(), "amount": "1"}, http.StatusUnprocessableEntity, "underflow"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := f.do(t, tc.method, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if body["code"] != tc.code {
				t.Fatalf("expected code %s, got %v", tc.code, body["code"])
			}
		})
	}
}

func TestQueries(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t, alice, "10", "5000")

	_, value := f.do(t, http.MethodGet, "/v1/value/"+weth.Hex()+"?amount=1.5", nil)
	if got := field(t, value, "usd", "display"); got != "3000" {
		t.Fatalf("unexpected usd value %v", got)
	}

	_, params := f.do(t, http.MethodGet, "/v1/params", nil)
	if params["liquidationThreshold"] != float64(50) || params["liquidationBonus"] != float64(10) {
		t.Fatalf("unexpected params %v", params)
	}

	_, solvency := f.do(t, http.MethodGet, "/v1/solvency", nil)
	if solvency["accounts"] != float64(1) || solvency["overcollateralized"] != true {
		t.Fatalf("unexpected solvency %v", solvency)
	}
	if got := field(t, solvency, "totalCollateralUsd", "display"); got != "20000" {
		t.Fatalf("unexpected collateral total %v", got)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/collateral", nil))
	var registry []collateralEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &registry); err != nil {
		t.Fatalf("decode registry: %v", err)
	}
	if len(registry) != 1 || registry[0].Symbol != "WETH" || registry[0].Feed != wethFee.Hex() {
		t.Fatalf("unexpected registry %+v", registry)
	}

	_, balance := f.do(t, http.MethodGet, "/v1/accounts/"+alice.Hex()+"/collateral/"+weth.Hex(), nil)
	if got := field(t, balance, "amount", "units"); got != "10000000000000000000" {
		t.Fatalf("unexpected balance %v", got)
	}
}

func TestLiquidateOverHTTP(t *testing.T) {
	f := newFixture(t, nil)
	f.open(t, alice, "10", "5000")
	f.open(t, bob, "10", "2000")

	f.feed.Set(wethFee, usd(900))

	_, before := f.do(t, http.MethodGet, "/v1/accounts/"+alice.Hex(), nil)
	if field(t, before, "health", "healthy") != false {
		t.Fatalf("expected alice to be liquidatable")
	}

	resp := f.mustPost(t, "/v1/liquidate", map[string]string{
		"liquidator": bob.Hex(), "target": alice.Hex(), "asset": weth.Hex(), "debtToCover": "1000",
	})
	if got := field(t, resp, "debtCovered", "display"); got != "1000" {
		t.Fatalf("unexpected debt covered %v", got)
	}
	beforeHF, _ := new(big.Int).SetString(resp["healthFactorBefore"].(string), 10)
	afterHF, _ := new(big.Int).SetString(resp["healthFactorAfter"].(string), 10)
	if afterHF.Cmp(beforeHF) <= 0 {
		t.Fatalf("health factor did not improve: %s -> %s", beforeHF, afterHF)
	}

	rec, body := f.do(t, http.MethodPost, "/v1/liquidate", map[string]string{
		"liquidator": alice.Hex(), "target": bob.Hex(), "asset": weth.Hex(), "debtToCover": "10",
	})
	if rec.Code != http.StatusUnprocessableEntity || body["code"] != "health_factor_ok" {
		t.Fatalf("expected health_factor_ok, got %d %v", rec.Code, body)
	}
}

func TestPausedEngineReturnsUnavailable(t *testing.T) {
	f := newFixture(t, nil)
	f.pauses["dsc"] = true
	rec, body := f.do(t, http.MethodPost, "/v1/mint", map[string]string{"account": alice.Hex(), "amount": "1"})
	if rec.Code != http.StatusServiceUnavailable || body["code"] != "paused" {
		t.Fatalf("expected paused, got %d %v", rec.Code, body)
	}
	rec, _ = f.do(t, http.MethodGet, "/v1/params", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("queries must stay available while paused, got %d", rec.Code)
	}
}

func TestWriteRoutesRequireScope(t *testing.T) {
	f := newFixture(t, func(cfg *Config) {
		cfg.Authenticator = middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:        true,
			HMACSecret:     "secret",
			OptionalPaths:  []string{"/v1/params"},
			AllowAnonymous: true,
		}, nil)
		cfg.WriteScope = "dsc:write"
		cfg.Faucet = nil
	})
	rec, _ := f.do(t, http.MethodPost, "/v1/mint", map[string]string{"account": alice.Hex(), "amount": "1"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec, _ = f.do(t, http.MethodGet, "/v1/params", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected anonymous params access, got %d", rec.Code)
	}
	rec, _ = f.do(t, http.MethodPost, "/v1/dev/faucet", map[string]string{})
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("faucet should not be mounted, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, nil)
	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, rec.Code)
		}
	}
}

type stubEvents struct {
	account common.Address
	records []indexer.Record
}

func (s *stubEvents) Recent(context.Context, int) ([]indexer.Record, error) { return s.records, nil }

func (s *stubEvents) ByAccount(_ context.Context, account common.Address, _ int) ([]indexer.Record, error) {
	s.account = account
	return s.records, nil
}

func TestListEvents(t *testing.T) {
	log := &stubEvents{records: []indexer.Record{{
		ID:          uuid.New(),
		Type:        "dsc.debt.minted",
		Fingerprint: "ab",
		Account:     alice.Hex(),
		Attributes:  `{"amount":"5"}`,
	}}}
	f := newFixture(t, func(cfg *Config) { cfg.Events = log })

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events?account="+alice.Hex()+"&limit=5", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var out []eventView
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].Attributes["amount"] != "5" || log.account != alice {
		t.Fatalf("unexpected events %+v", out)
	}

	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events?limit=-1", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative limit, got %d", rec.Code)
	}
}

func TestStatusForLiquidationFailures(t *testing.T) {
	stillUnhealthy := fmt.Errorf("%w: %w", dsc.ErrHealthFactorNotImproved, &dsc.SolvencyError{Account: alice, HealthFactor: big.NewInt(1)})
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{stillUnhealthy, http.StatusUnprocessableEntity, "health_factor_not_improved"},
		{dsc.ErrHealthFactorNotImproved, http.StatusUnprocessableEntity, "health_factor_not_improved"},
		{&dsc.SolvencyError{Account: alice, HealthFactor: big.NewInt(1)}, http.StatusUnprocessableEntity, "breaks_health_factor"},
		{dsc.ErrHealthFactorOK, http.StatusUnprocessableEntity, "health_factor_ok"},
	}
	for _, tc := range cases {
		status, code := statusFor(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("%v: got %d %s want %d %s", tc.err, status, code, tc.status, tc.code)
		}
	}
}
