package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"dscengine/config"
	"dscengine/core/events"
	gatewayconfig "dscengine/gateway/config"
	"dscengine/integrations/webhooks"
	"dscengine/observability/logging"
)

var (
	alice = common.HexToAddress("0xa11ce")
	weth  = common.HexToAddress("0x0000000000000000000000000000000000001001")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Load(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.Indexer.DSN = "indexer.db"
	cfg.GRPCAddress = ""
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func post(t *testing.T, srv *httptest.Server, path string, body map[string]string) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	payload, _ := io.ReadAll(resp.Body)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(payload))
}

func TestNodeServesAndPersistsLedger(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	n, err := buildNode(ctx, cfg, gatewayconfig.Default(), "", testLogger())
	require.NoError(t, err)
	require.NotNil(t, n.faucet)
	require.NotNil(t, n.indexer)

	srv := httptest.NewServer(n.handler)
	post(t, srv, "/v1/dev/faucet", map[string]string{"account": alice.Hex(), "asset": weth.Hex(), "amount": "10"})
	post(t, srv, "/v1/deposit-and-mint", map[string]string{
		"account": alice.Hex(), "asset": weth.Hex(), "collateral": "10", "debt": "5000",
	})
	srv.Close()

	info, err := n.engine.AccountInformation(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, ether(5000), info.Debt)
	n.sampleSolvency(ctx)
	n.close()

	reopened, err := buildNode(ctx, cfg, gatewayconfig.Default(), "", testLogger())
	require.NoError(t, err)
	defer reopened.close()

	debt, err := reopened.engine.DebtOf(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, ether(5000), debt)
	require.Equal(t, ether(10), reopened.tokens[weth].BalanceOf(reopened.custody), "custody holds the persisted collateral")

	// The restarted custody balance must be able to pay out a redemption.
	require.NoError(t, reopened.engine.RedeemCollateral(ctx, alice, weth, ether(1)))
	balance, err := reopened.engine.CollateralBalance(ctx, alice, weth)
	require.NoError(t, err)
	require.Equal(t, ether(9), balance)
}

func TestNodeForwardsEventsToWebhook(t *testing.T) {
	delivered := make(chan string, 4)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered <- r.Header.Get(webhooks.HeaderEvent)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	t.Setenv("DSC_TEST_WEBHOOK_SECRET", "shh")
	cfg := testConfig(t)
	cfg.Indexer.DSN = ""
	cfg.Webhook = config.Webhook{Endpoint: hook.URL, SecretEnv: "DSC_TEST_WEBHOOK_SECRET", Types: []string{events.TypeCollateralDeposited}}

	ctx := context.Background()
	n, err := buildNode(ctx, cfg, gatewayconfig.Default(), "", testLogger())
	require.NoError(t, err)
	defer n.close()
	require.Nil(t, n.indexer)

	require.NoError(t, n.faucet.FundContext(ctx, weth, alice, ether(1)))
	require.NoError(t, n.engine.DepositCollateral(ctx, alice, weth, ether(1)))

	select {
	case got := <-delivered:
		require.Equal(t, events.TypeCollateralDeposited, got)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not delivered")
	}
}

func TestBuildNodeRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Oracle.Mode = "carrier-pigeon"
	_, err := buildNode(context.Background(), cfg, gatewayconfig.Default(), "", testLogger())
	require.ErrorContains(t, err, "unknown mode")
}

func TestBuildNodeRequiresKeystorePassphrase(t *testing.T) {
	cfg := testConfig(t)
	_, err := buildNode(context.Background(), cfg, gatewayconfig.Default(), "wrong", testLogger())
	require.ErrorContains(t, err, "custody key")
}

func TestRateLimitsConvertPerMinute(t *testing.T) {
	limits := rateLimits([]gatewayconfig.RateLimitConfig{
		{ID: "read", RequestsPerMinute: 600, Burst: 50},
		{ID: "write", RatePerSecond: 3, RequestsPerMinute: 600, Burst: 5},
		{RequestsPerMinute: 60},
	})
	require.Len(t, limits, 2)
	require.InDelta(t, 10, limits["read"].RatePerSecond, 1e-9)
	require.InDelta(t, 3, limits["write"].RatePerSecond, 1e-9)
	require.Equal(t, 50, limits["read"].Burst)
}

func TestTLSAndListenerPolicy(t *testing.T) {
	tlsConfig, err := buildTLSConfig("", gatewayconfig.SecurityConfig{})
	require.NoError(t, err)
	require.Nil(t, tlsConfig)

	_, err = buildTLSConfig("", gatewayconfig.SecurityConfig{TLSCertFile: "cert.pem"})
	require.Error(t, err)

	require.True(t, isLoopbackAddress("127.0.0.1:8080"))
	require.True(t, isLoopbackAddress("localhost:8080"))
	require.False(t, isLoopbackAddress(":8080"))
	require.False(t, isLoopbackAddress("10.0.0.1:8080"))

	require.Equal(t, "/etc/dsc/cert.pem", resolvePath("/etc/dsc", "cert.pem"))
	require.Equal(t, "/abs/cert.pem", resolvePath("/etc/dsc", "/abs/cert.pem"))
}

func TestCustodyPassphraseFromEnvironment(t *testing.T) {
	cfg := &config.Config{}
	pass, err := custodyPassphrase(cfg)
	require.NoError(t, err)
	require.Empty(t, pass)

	t.Setenv("DSC_TEST_CUSTODY_PASS", "s3cret")
	cfg.CustodyPassphraseEnv = "DSC_TEST_CUSTODY_PASS"
	pass, err = custodyPassphrase(cfg)
	require.NoError(t, err)
	require.Equal(t, "s3cret", pass)
}

func TestMain(m *testing.M) {
	logging.Install(testLogger())
	m.Run()
}
