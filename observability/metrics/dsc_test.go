package metrics

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEngineMetricsCounters(t *testing.T) {
	m := Engine()
	if m != Engine() {
		t.Fatalf("expected singleton registry")
	}
	before := testutil.ToFloat64(m.operations.WithLabelValues("mint", "solvency"))
	m.ObserveOperation("mint", "solvency", time.Millisecond)
	after := testutil.ToFloat64(m.operations.WithLabelValues("mint", "solvency"))
	if after-before != 1 {
		t.Fatalf("expected counter to increase by 1, got %v", after-before)
	}

	m.ObserveLiquidation(" 0xAbC ")
	if got := testutil.ToFloat64(m.liquidations.WithLabelValues("0xabc")); got < 1 {
		t.Fatalf("expected liquidation counter, got %v", got)
	}

	scale := big.NewInt(1_000_000_000_000_000_000)
	m.ObserveHealthFactor(new(big.Int).Mul(scale, big.NewInt(2)), scale)
	m.ObserveHealthFactor(nil, scale)
}

func TestNilEngineMetricsIsNoop(t *testing.T) {
	var m *EngineMetrics
	m.ObserveOperation("deposit", "ok", 0)
	m.ObserveLiquidation("eth")
	m.ObserveHealthFactor(big.NewInt(1), big.NewInt(1))
}
