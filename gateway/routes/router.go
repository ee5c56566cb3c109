package routes

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dscengine/gateway/middleware"
)

const (
	// RateLimitRead and RateLimitWrite name the policies applied to query and
	// mutating routes.
	RateLimitRead  = "read"
	RateLimitWrite = "write"
)

type Config struct {
	Engine Engine
	// Faucet, when set, mounts POST /v1/dev/faucet.
	Faucet  Faucet
	Symbols map[common.Address]string
	Stream  *Stream
	// Events, when set, mounts GET /v1/events over the indexer.
	Events EventLog

	Authenticator *middleware.Authenticator
	WriteScope    string
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	// MetricsHandler overrides the default Prometheus handler on /metrics.
	MetricsHandler http.Handler
}

func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("routes: engine required")
	}
	h := &handlers{engine: cfg.Engine, faucet: cfg.Faucet, events: cfg.Events, symbols: cfg.Symbols}
	if h.symbols == nil {
		h.symbols = map[common.Address]string{}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(cfg.CORS))
	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(read chi.Router) {
			if cfg.RateLimiter != nil {
				read.Use(cfg.RateLimiter.Middleware(RateLimitRead))
			}
			if cfg.Authenticator != nil {
				read.Use(cfg.Authenticator.Middleware())
			}
			read.Get("/accounts/{addr}", h.getAccount)
			read.Get("/accounts/{addr}/collateral/{asset}", h.getCollateralBalance)
			read.Get("/collateral", h.listCollateral)
			read.Get("/params", h.getParams)
			read.Get("/value/{asset}", h.getValue)
			read.Get("/solvency", h.getSolvency)
			if cfg.Events != nil {
				read.Get("/events", h.listEvents)
			}
			if cfg.Stream != nil {
				read.Get("/stream", cfg.Stream.ServeHTTP)
			}
		})

		v1.Group(func(write chi.Router) {
			if cfg.RateLimiter != nil {
				write.Use(cfg.RateLimiter.Middleware(RateLimitWrite))
			}
			if cfg.Authenticator != nil {
				var scopes []string
				if cfg.WriteScope != "" {
					scopes = append(scopes, cfg.WriteScope)
				}
				write.Use(cfg.Authenticator.Middleware(scopes...))
			}
			write.Post("/deposit", h.operation("deposit", h.deposit))
			write.Post("/redeem", h.operation("redeem", h.redeem))
			write.Post("/mint", h.operation("mint", h.mint))
			write.Post("/burn", h.operation("burn", h.burn))
			write.Post("/deposit-and-mint", h.operation("deposit_and_mint", h.depositAndMint))
			write.Post("/redeem-for-debt", h.operation("redeem_for_debt", h.redeemForDebt))
			write.Post("/liquidate", h.liquidate)
			if cfg.Faucet != nil {
				write.Post("/dev/faucet", h.operation("faucet", h.fund))
			}
		})
	})

	var handler http.Handler = r
	if obs != nil {
		handler = obs.Wrap(handler)
	}
	return handler, nil
}
