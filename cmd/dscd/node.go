package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"dscengine/config"
	"dscengine/core/events"
	"dscengine/core/state"
	"dscengine/crypto"
	gatewayconfig "dscengine/gateway/config"
	"dscengine/gateway/middleware"
	"dscengine/gateway/routes"
	"dscengine/integrations/webhooks"
	"dscengine/native/dsc"
	"dscengine/native/dsc/feeds"
	"dscengine/native/dsc/token"
	"dscengine/observability"
	"dscengine/observability/metrics"
	"dscengine/services/exporter"
	"dscengine/services/indexer"
	"dscengine/storage"
)

const (
	healthService     = "dscengine.Engine"
	solvencyInterval  = 15 * time.Second
	shutdownTimeout   = 10 * time.Second
	faucetLimitTokens = 1_000_000
	ledgerDir         = "ledger"
)

var faucetLimit = new(big.Int).Mul(big.NewInt(faucetLimitTokens), big.NewInt(1_000_000_000_000_000_000))

// node owns every long-lived component of a running daemon.
type node struct {
	cfg     *config.Config
	policy  gatewayconfig.Config
	logger  *slog.Logger
	custody common.Address

	db       *storage.LevelDB
	ledger   *state.Ledger
	engine   *dsc.Engine
	tokens   map[common.Address]*token.Token
	stable   *token.Stablecoin
	faucet   *token.Faucet
	stream   *routes.Stream
	indexer  *indexer.Indexer
	exporter *exporter.Exporter
	handler  http.Handler
	health   *health.Server

	closers []func()
}

// buildNode opens storage and wires the engine, its price source, the event
// sinks and the HTTP handler. Nothing is listening when it returns.
func buildNode(ctx context.Context, cfg *config.Config, policy gatewayconfig.Config, passphrase string, logger *slog.Logger) (n *node, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	n = &node{cfg: cfg, policy: policy, logger: logger}
	defer func() {
		if err != nil {
			n.close()
		}
	}()

	key, err := crypto.LoadFromKeystore(cfg.CustodyKeystorePath, passphrase)
	if err != nil {
		return nil, fmt.Errorf("load custody key: %w", err)
	}
	n.custody = key.PubKey().Address()

	if err := n.openLedger(); err != nil {
		return nil, err
	}
	if err := n.buildEngine(ctx); err != nil {
		return nil, err
	}
	if err := n.buildSinks(); err != nil {
		return nil, err
	}
	if err := n.buildGateway(); err != nil {
		return nil, err
	}
	n.health = health.NewServer()
	n.setServingStatus()
	return n, nil
}

func (n *node) openLedger() error {
	db, err := storage.NewLevelDB(filepath.Join(n.cfg.DataDir, ledgerDir))
	if err != nil {
		return fmt.Errorf("open ledger database: %w", err)
	}
	n.db = db
	n.closers = append(n.closers, db.Close)

	ledger, err := state.OpenLedger(db)
	if err != nil {
		return err
	}
	if err := ledger.EnsureSchemaVersion(n.cfg.AllowMigrate); err != nil {
		return err
	}
	n.ledger = ledger
	return nil
}

func (n *node) buildEngine(ctx context.Context) error {
	entries, err := n.cfg.CollateralEntries()
	if err != nil {
		return err
	}
	assets := make([]common.Address, 0, len(entries))
	feedAddrs := make([]common.Address, 0, len(entries))
	n.tokens = make(map[common.Address]*token.Token, len(entries))
	collateral := make(map[common.Address]dsc.Token, len(entries))
	for _, entry := range entries {
		tok := token.New(entry.Symbol, n.custody)
		n.tokens[entry.Asset] = tok
		collateral[entry.Asset] = tok
		assets = append(assets, entry.Asset)
		feedAddrs = append(feedAddrs, entry.Feed)
	}
	registry, err := dsc.NewRegistry(assets, feedAddrs)
	if err != nil {
		return err
	}

	oracle, err := n.priceFeed(ctx, entries)
	if err != nil {
		return err
	}

	n.stable = token.NewStablecoin(n.cfg.Stablecoin.Symbol, n.custody)
	engine, err := dsc.NewEngine(dsc.Config{
		Registry:   registry,
		Custody:    n.custody,
		Oracle:     oracle,
		Stable:     n.stable,
		Collateral: collateral,
	})
	if err != nil {
		return err
	}
	engine.SetState(n.ledger)
	engine.SetPauses(n.cfg.Pauses)
	engine.SetLogger(n.logger.With("module", "dsc"))
	engine.SetMetrics(metrics.Engine())
	n.engine = engine

	if err := n.reconcileCustody(); err != nil {
		return err
	}
	if n.cfg.DevFaucet {
		n.faucet = token.NewFaucet(n.custody, n.stable, n.tokens, faucetLimit).WithExclusive(engine.Exclusive)
	}
	return nil
}

func (n *node) priceFeed(ctx context.Context, entries []config.CollateralEntry) (dsc.PriceFeed, error) {
	switch n.cfg.Oracle.Mode {
	case config.OracleChainlink:
		client, err := ethclient.DialContext(ctx, n.cfg.Oracle.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("dial oracle rpc: %w", err)
		}
		n.closers = append(n.closers, client.Close)
		feed, err := feeds.NewChainlink(client)
		if err != nil {
			return nil, err
		}
		return feed.WithTimeout(time.Duration(n.cfg.Oracle.TimeoutSeconds) * time.Second), nil
	default:
		static := feeds.NewStatic()
		for _, entry := range entries {
			static.Set(entry.Feed, entry.Price)
		}
		return static, nil
	}
}

// reconcileCustody credits the in-process collateral tokens with what the
// persisted ledger says custody holds, so redemptions survive a restart.
func (n *node) reconcileCustody() error {
	accounts, err := n.ledger.Accounts()
	if err != nil {
		return fmt.Errorf("list ledger accounts: %w", err)
	}
	for asset, tok := range n.tokens {
		held := new(big.Int)
		for _, account := range accounts {
			balance, err := n.ledger.CollateralBalance(account, asset)
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", asset.Hex(), err)
			}
			held.Add(held, balance)
		}
		if held.Sign() == 0 {
			continue
		}
		if err := tok.Credit(n.custody, held); err != nil {
			return fmt.Errorf("reconcile %s: %w", asset.Hex(), err)
		}
		n.logger.Info("custody reconciled", "asset", asset.Hex(), "symbol", tok.Symbol(), "amount", held.String())
	}
	return nil
}

func (n *node) buildSinks() error {
	n.stream = routes.NewStream(n.policy.Stream.Buffer, n.policy.Stream.OriginPatterns, n.logger.With("component", "stream"))
	sinks := events.Fanout{n.stream, observability.Events()}

	if dsn := strings.TrimSpace(n.cfg.Indexer.DSN); dsn != "" {
		if !strings.Contains(dsn, "://") && !filepath.IsAbs(dsn) {
			dsn = filepath.Join(n.cfg.DataDir, dsn)
		}
		db, err := indexer.Open(dsn)
		if err != nil {
			return fmt.Errorf("open indexer database: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			n.closers = append(n.closers, func() { _ = sqlDB.Close() })
		}
		idx, err := indexer.New(db,
			indexer.WithQueueSize(n.cfg.Indexer.QueueSize),
			indexer.WithLogger(n.logger.With("component", "indexer")),
			indexer.WithMetrics(observability.Indexer()),
		)
		if err != nil {
			return err
		}
		n.indexer = idx
		sinks = append(sinks, idx)
	}
	if endpoint := strings.TrimSpace(n.cfg.Webhook.Endpoint); endpoint != "" {
		secret := n.cfg.Webhook.Secret()
		if secret == "" {
			return fmt.Errorf("webhook: %s is empty", n.cfg.Webhook.SecretEnv)
		}
		hook, err := webhooks.NewDispatcher(endpoint, []byte(secret),
			webhooks.WithTypes(n.cfg.Webhook.Types...),
			webhooks.WithQueueSize(n.cfg.Webhook.QueueSize),
			webhooks.WithLogger(n.logger.With("component", "webhook")),
		)
		if err != nil {
			return err
		}
		n.closers = append(n.closers, hook.Close)
		sinks = append(sinks, hook)
	}
	n.engine.SetEmitter(sinks)

	if dir := strings.TrimSpace(n.cfg.Export.Dir); dir != "" {
		exp, err := exporter.New(exporter.Config{
			Source:  n.engine,
			Dir:     dir,
			Symbols: n.symbols(),
			Logger:  n.logger.With("component", "exporter"),
		})
		if err != nil {
			return err
		}
		n.exporter = exp
	}
	return nil
}

func (n *node) symbols() map[common.Address]string {
	out := make(map[common.Address]string, len(n.tokens))
	for asset, tok := range n.tokens {
		out[asset] = tok.Symbol()
	}
	return out
}

func (n *node) buildGateway() error {
	policy := n.policy
	logger := n.logger.With("component", "gateway")

	obs := middleware.NewObservability(middleware.ObservabilityConfig{
		ServiceName: policy.Observability.ServiceName,
		LogRequests: policy.Observability.LogRequests,
		Metrics:     policy.Observability.Metrics,
		Tracing:     policy.Observability.Tracing,
	}, logger)

	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:        policy.Auth.Enabled,
		HMACSecret:     policy.Auth.HMACSecret,
		Issuer:         policy.Auth.Issuer,
		Audience:       policy.Auth.Audience,
		ScopeClaim:     policy.Auth.ScopeClaim,
		OptionalPaths:  policy.Auth.OptionalPaths,
		AllowAnonymous: policy.Auth.AllowAnonymous,
		ClockSkew:      policy.Auth.ClockSkew,
	}, logger)

	cfg := routes.Config{
		Engine:        n.engine,
		Symbols:       n.symbols(),
		Stream:        n.stream,
		Authenticator: auth,
		WriteScope:    policy.Auth.WriteScope,
		RateLimiter:   middleware.NewRateLimiter(rateLimits(policy.RateLimits), logger),
		Observability: obs,
		CORS: middleware.CORSConfig{
			AllowedOrigins: policy.CORS.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		},
	}
	if n.faucet != nil {
		cfg.Faucet = n.faucet
	}
	if n.indexer != nil {
		cfg.Events = n.indexer
	}
	handler, err := routes.New(cfg)
	if err != nil {
		return fmt.Errorf("configure routes: %w", err)
	}
	n.handler = handler
	return nil
}

func rateLimits(entries []gatewayconfig.RateLimitConfig) map[string]middleware.RateLimit {
	out := make(map[string]middleware.RateLimit, len(entries))
	for _, entry := range entries {
		if entry.ID == "" {
			continue
		}
		rate := entry.RatePerSecond
		if rate <= 0 && entry.RequestsPerMinute > 0 {
			rate = entry.RequestsPerMinute / 60.0
		}
		out[entry.ID] = middleware.RateLimit{RatePerSecond: rate, Burst: entry.Burst}
	}
	return out
}

func (n *node) setServingStatus() {
	status := healthpb.HealthCheckResponse_SERVING
	if n.cfg.Pauses.IsPaused("dsc") {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	n.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	n.health.SetServingStatus(healthService, status)
}

// run serves HTTP and gRPC and drives the background workers until ctx is
// cancelled or a listener fails.
func (n *node) run(ctx context.Context, tlsConfig *tls.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpListener, err := net.Listen("tcp", n.cfg.HTTPAddress)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	server := &http.Server{
		Handler:      n.handler,
		ReadTimeout:  n.policy.ReadTimeout,
		WriteTimeout: n.policy.WriteTimeout,
		IdleTimeout:  n.policy.IdleTimeout,
		TLSConfig:    tlsConfig,
	}

	var grpcServer *grpc.Server
	var grpcListener net.Listener
	if addr := strings.TrimSpace(n.cfg.GRPCAddress); addr != "" {
		grpcListener, err = net.Listen("tcp", addr)
		if err != nil {
			_ = httpListener.Close()
			return fmt.Errorf("listen grpc: %w", err)
		}
		grpcServer = grpc.NewServer(
			grpc.ChainUnaryInterceptor(otelgrpc.UnaryServerInterceptor()),
			grpc.ChainStreamInterceptor(otelgrpc.StreamServerInterceptor()),
		)
		healthpb.RegisterHealthServer(grpcServer, n.health)
	}

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	background := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				n.logger.Error("worker stopped", "worker", name, "error", err)
			}
		}()
	}

	go func() {
		scheme := "http"
		var serveErr error
		if tlsConfig != nil {
			scheme = "https"
		}
		n.logger.Info("gateway listening", "address", fmt.Sprintf("%s://%s", scheme, httpListener.Addr()))
		if tlsConfig != nil {
			serveErr = server.Serve(tls.NewListener(httpListener, tlsConfig))
		} else {
			serveErr = server.Serve(httpListener)
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errs <- fmt.Errorf("serve http: %w", serveErr)
		}
	}()
	if grpcServer != nil {
		go func() {
			n.logger.Info("grpc health listening", "address", grpcListener.Addr().String())
			if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errs <- fmt.Errorf("serve grpc: %w", err)
			}
		}()
	}

	if n.indexer != nil {
		background("indexer", n.indexer.Run)
	}
	if n.exporter != nil {
		interval := time.Duration(n.cfg.Export.IntervalSeconds) * time.Second
		background("exporter", func(ctx context.Context) error { return n.exporter.Run(ctx, interval) })
	}
	background("solvency", func(ctx context.Context) error {
		n.recordSolvency(ctx, solvencyInterval)
		return nil
	})

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errs:
	}

	n.health.Shutdown()
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		n.logger.Warn("graceful http shutdown failed", "error", err)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	cancel()
	wg.Wait()
	return runErr
}

// recordSolvency publishes the system-wide solvency gauges every interval.
func (n *node) recordSolvency(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n.sampleSolvency(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (n *node) sampleSolvency(ctx context.Context) {
	solvency, err := n.engine.SystemSolvency(ctx)
	if err != nil {
		n.logger.Warn("solvency sample failed", "error", err)
		return
	}
	observability.Solvency().Record(solvency.Accounts, solvency.Undercollateralized, solvency.TotalDebt, solvency.TotalCollateralUSD)
}

func (n *node) close() {
	for i := len(n.closers) - 1; i >= 0; i-- {
		n.closers[i]()
	}
	n.closers = nil
}
