package observability

import (
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"dscengine/core/events"
)

func TestGatewayMetricsObserve(t *testing.T) {
	m := Gateway()
	require.Same(t, m, Gateway())

	before := testutil.ToFloat64(m.errors.WithLabelValues("/v1/mint", "POST", "422"))
	m.Observe("/v1/mint", "POST", 422, 5*time.Millisecond)
	require.Equal(t, before+1, testutil.ToFloat64(m.errors.WithLabelValues("/v1/mint", "POST", "422")))

	m.RecordThrottle("", "")
	require.GreaterOrEqual(t, testutil.ToFloat64(m.throttles.WithLabelValues("unknown", "unspecified")), 1.0)
}

func TestSolvencyMetricsRecord(t *testing.T) {
	m := Solvency()
	debt, _ := new(big.Int).SetString("1500000000000000000000", 10)
	collateral, _ := new(big.Int).SetString("22000000000000000000000", 10)
	m.Record(3, 1, debt, collateral)

	require.Equal(t, 1500.0, testutil.ToFloat64(m.totalDebt))
	require.Equal(t, 22000.0, testutil.ToFloat64(m.totalCollateral))
	require.Equal(t, 1.0, testutil.ToFloat64(m.undercollateralized))
	require.Equal(t, 3.0, testutil.ToFloat64(m.accounts))

	var nilMetrics *SolvencyMetrics
	nilMetrics.Record(0, 0, nil, nil)
}

func TestEventMetricsCountByType(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.emitted.WithLabelValues(events.TypeDebtMinted))
	m.Emit(events.DebtMinted{Amount: big.NewInt(1)})
	m.Emit(nil)
	require.Equal(t, before+1, testutil.ToFloat64(m.emitted.WithLabelValues(events.TypeDebtMinted)))
}
