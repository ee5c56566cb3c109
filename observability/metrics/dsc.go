package metrics

import (
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics tracks solvency engine activity.
type EngineMetrics struct {
	operations   *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	liquidations *prometheus.CounterVec
	healthFactor prometheus.Histogram
}

var (
	engineOnce     sync.Once
	engineRegistry *EngineMetrics
)

func Engine() *EngineMetrics {
	engineOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Engine operations segmented by operation and result class.",
			}, []string{"op", "result"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "dsc",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for engine operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "engine",
				Name:      "liquidations_total",
				Help:      "Completed liquidations segmented by seized collateral asset.",
			}, []string{"asset"}),
			healthFactor: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "dsc",
				Subsystem: "engine",
				Name:      "health_factor",
				Help:      "Health factor of indebted accounts after successful operations.",
				Buckets:   []float64{0.5, 0.9, 1, 1.1, 1.25, 1.5, 2, 3, 5, 10, 100},
			}),
		}
		prometheus.MustRegister(
			engineRegistry.operations,
			engineRegistry.latency,
			engineRegistry.liquidations,
			engineRegistry.healthFactor,
		)
	})
	return engineRegistry
}

func (m *EngineMetrics) ObserveOperation(op, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	op = strings.TrimSpace(op)
	if op == "" {
		op = "unknown"
	}
	if result == "" {
		result = "ok"
	}
	m.operations.WithLabelValues(op, result).Inc()
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *EngineMetrics) ObserveLiquidation(asset string) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(strings.ToLower(strings.TrimSpace(asset))).Inc()
}

// ObserveHealthFactor records an 18-decimal health factor. Values above the
// largest bucket are clamped so unconstrained accounts do not skew sums.
func (m *EngineMetrics) ObserveHealthFactor(hf, scale *big.Int) {
	if m == nil || hf == nil || scale == nil || scale.Sign() == 0 {
		return
	}
	ratio, _ := new(big.Rat).SetFrac(hf, scale).Float64()
	if ratio > 1_000 {
		ratio = 1_000
	}
	m.healthFactor.Observe(ratio)
}
