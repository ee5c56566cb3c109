package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type gatewayMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	gatewayMetricsOnce sync.Once
	gatewayRegistry    *gatewayMetrics

	solvencyMetricsOnce sync.Once
	solvencyRegistry    *SolvencyMetrics

	indexerMetricsOnce sync.Once
	indexerRegistry    *IndexerMetrics
)

// Gateway returns the lazily-initialised registry recording HTTP gateway
// activity.
func Gateway() *gatewayMetrics {
	gatewayMetricsOnce.Do(func() {
		gatewayRegistry = &gatewayMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total gateway requests segmented by route, method and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "gateway",
				Name:      "errors_total",
				Help:      "Total gateway errors segmented by route, method and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "dsc",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for gateway handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "gateway",
				Name:      "throttles_total",
				Help:      "Count of gateway requests rejected due to throttling policies.",
			}, []string{"route", "reason"}),
		}
		prometheus.MustRegister(
			gatewayRegistry.requests,
			gatewayRegistry.errors,
			gatewayRegistry.latency,
			gatewayRegistry.throttles,
		)
	})
	return gatewayRegistry
}

// Observe records the outcome of a gateway request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *gatewayMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied route and
// reason. Reasons should be stable strings such as "rate_limit".
func (m *gatewayMetrics) RecordThrottle(route, reason string) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(route, reason).Inc()
}

// SolvencyMetrics tracks the aggregate position of the system.
type SolvencyMetrics struct {
	totalDebt           prometheus.Gauge
	totalCollateral     prometheus.Gauge
	undercollateralized prometheus.Gauge
	accounts            prometheus.Gauge
}

// Solvency returns the singleton solvency gauge registry.
func Solvency() *SolvencyMetrics {
	solvencyMetricsOnce.Do(func() {
		solvencyRegistry = &SolvencyMetrics{
			totalDebt: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "dsc",
				Subsystem: "solvency",
				Name:      "total_debt",
				Help:      "Outstanding stablecoin debt in whole units.",
			}),
			totalCollateral: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "dsc",
				Subsystem: "solvency",
				Name:      "total_collateral_usd",
				Help:      "USD value of all deposited collateral.",
			}),
			undercollateralized: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "dsc",
				Subsystem: "solvency",
				Name:      "undercollateralized_accounts",
				Help:      "Accounts whose health factor is below the minimum.",
			}),
			accounts: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "dsc",
				Subsystem: "solvency",
				Name:      "accounts",
				Help:      "Accounts with a non-zero ledger balance.",
			}),
		}
		prometheus.MustRegister(
			solvencyRegistry.totalDebt,
			solvencyRegistry.totalCollateral,
			solvencyRegistry.undercollateralized,
			solvencyRegistry.accounts,
		)
	})
	return solvencyRegistry
}

// Record publishes an aggregate snapshot. Debt and collateral are 18-decimal
// fixed point values.
func (m *SolvencyMetrics) Record(accounts, undercollateralized int, totalDebt, totalCollateralUSD *big.Int) {
	if m == nil {
		return
	}
	m.accounts.Set(float64(accounts))
	m.undercollateralized.Set(float64(undercollateralized))
	m.totalDebt.Set(scaledToFloat(totalDebt, 18))
	m.totalCollateral.Set(scaledToFloat(totalCollateralUSD, 18))
}

// IndexerMetrics wraps collectors for the event indexer.
type IndexerMetrics struct {
	written    prometheus.Counter
	dropped    prometheus.Counter
	failures   prometheus.Counter
	queueDepth prometheus.Gauge
}

// Indexer exposes the metrics registry for the event indexer.
func Indexer() *IndexerMetrics {
	indexerMetricsOnce.Do(func() {
		indexerRegistry = &IndexerMetrics{
			written: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "indexer",
				Name:      "records_written_total",
				Help:      "Events persisted by the indexer.",
			}),
			dropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "indexer",
				Name:      "records_dropped_total",
				Help:      "Events dropped because the indexer queue was full.",
			}),
			failures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "indexer",
				Name:      "write_failures_total",
				Help:      "Events that could not be persisted.",
			}),
			queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "dsc",
				Subsystem: "indexer",
				Name:      "queue_depth",
				Help:      "Events waiting to be persisted.",
			}),
		}
		prometheus.MustRegister(
			indexerRegistry.written,
			indexerRegistry.dropped,
			indexerRegistry.failures,
			indexerRegistry.queueDepth,
		)
	})
	return indexerRegistry
}

func (m *IndexerMetrics) RecordWritten() {
	if m == nil {
		return
	}
	m.written.Inc()
}

func (m *IndexerMetrics) RecordDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *IndexerMetrics) RecordFailure() {
	if m == nil {
		return
	}
	m.failures.Inc()
}

func (m *IndexerMetrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

func labelValue(v string) string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

func scaledToFloat(value *big.Int, decimals int) float64 {
	if value == nil {
		return 0
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	floatVal, acc := new(big.Float).Quo(new(big.Float).SetInt(value), scale).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
