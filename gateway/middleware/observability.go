package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"dscengine/observability"
)

type ObservabilityConfig struct {
	ServiceName string
	LogRequests bool
	Metrics     bool
	Tracing     bool
}

// Observability records request metrics, access logs and spans labelled by
// the matched chi route pattern.
type Observability struct {
	cfg    ObservabilityConfig
	logger *slog.Logger
}

func NewObservability(cfg ObservabilityConfig, logger *slog.Logger) *Observability {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "dsc-gateway"
	}
	return &Observability{cfg: cfg, logger: logger}
}

// Wrap instruments the whole handler tree with otelhttp when tracing is on.
func (o *Observability) Wrap(next http.Handler) http.Handler {
	if !o.cfg.Tracing {
		return next
	}
	return otelhttp.NewHandler(next, o.cfg.ServiceName,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func (o *Observability) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routePattern(r)
		if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.String("dsc.request_id", RequestIDFrom(r.Context())),
			)
		}
		duration := time.Since(start)
		if o.cfg.Metrics {
			observability.Gateway().Observe(route, r.Method, recorder.status, duration)
		}
		if o.cfg.LogRequests {
			o.logger.Info("gateway request",
				"method", r.Method,
				"route", route,
				"status", recorder.status,
				"duration_ms", float64(duration.Microseconds())/1000,
				"request_id", RequestIDFrom(r.Context()),
			)
		}
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer so websocket upgrades can hijack it.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
