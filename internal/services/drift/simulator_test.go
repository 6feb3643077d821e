package drift

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func weights(kv ...string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = d(kv[i+1])
	}
	return out
}

func snapshot(t *testing.T, balances, prices map[string]decimal.Decimal) domain.HoldingsSnapshot {
	t.Helper()
	s, err := domain.NewHoldingsSnapshot(time.Unix(1700000000, 0), "USDT", balances, prices, nil, nil)
	require.NoError(t, err)
	return s
}

func TestSimulate_BasicRebalance(t *testing.T) {
	sim, err := NewSimulator(Config{FeeRate: d("0.001"), SlippageBuffer: d("5")})
	require.NoError(t, err)

	snap := snapshot(t,
		weights("BTC", "0.1", "ETH", "3"),
		weights("BTC", "40000", "ETH", "2000"),
	)
	target := domain.NewTargetAllocation(weights("BTC", "0.5", "ETH", "0.5"))

	result, err := sim.Simulate(snap, target, decimal.Zero)
	require.NoError(t, err)

	assert.True(t, result.TotalValue.Equal(d("10000")))
	assert.True(t, result.DriftPct["BTC"].Equal(d("-10")), "BTC drift %s", result.DriftPct["BTC"])
	assert.True(t, result.DriftPct["ETH"].Equal(d("10")), "ETH drift %s", result.DriftPct["ETH"])

	btc, ok := result.Asset("BTC")
	require.True(t, ok)
	assert.True(t, btc.DriftValue.Equal(d("-1000")))
	assert.True(t, btc.CurrentPct.Equal(d("40")))
	assert.True(t, btc.TargetPct.Equal(d("50")))

	// 0.001 * (1000 + 1000) + 5
	assert.True(t, result.EstimatedCost.Equal(d("7")), "cost %s", result.EstimatedCost)
	assert.False(t, result.EffectiveTarget.Adjusted)
}

func TestSimulate_SignConvention(t *testing.T) {
	sim, err := NewSimulator(Config{})
	require.NoError(t, err)

	snap := snapshot(t,
		weights("BTC", "0.15", "ETH", "2"),
		weights("BTC", "40000", "ETH", "2000"),
	)
	target := domain.NewTargetAllocation(weights("BTC", "0.4", "ETH", "0.6"))

	result, err := sim.Simulate(snap, target, decimal.Zero)
	require.NoError(t, err)

	// BTC 6000 of 10000 is 60% vs 40% target.
	assert.True(t, result.DriftPct["BTC"].Equal(d("20")))
	assert.True(t, result.DriftPct["BTC"].IsPositive())
	assert.True(t, result.DriftPct["ETH"].IsNegative())
}

func TestSimulate_AssetsOutsideTargetAndSnapshot(t *testing.T) {
	sim, err := NewSimulator(Config{})
	require.NoError(t, err)

	snap := snapshot(t,
		weights("BTC", "0.1", "DOGE", "1000"),
		weights("BTC", "40000", "DOGE", "1", "ETH", "2000"),
	)
	target := domain.NewTargetAllocation(weights("BTC", "0.5", "ETH", "0.5"))

	result, err := sim.Simulate(snap, target, decimal.Zero)
	require.NoError(t, err)

	require.Len(t, result.Assets, 3)
	assert.Equal(t, "BTC", result.Assets[0].Asset)
	assert.Equal(t, "DOGE", result.Assets[1].Asset)
	assert.Equal(t, "ETH", result.Assets[2].Asset)

	doge, _ := result.Asset("DOGE")
	assert.True(t, doge.TargetPct.IsZero())
	assert.True(t, doge.DriftPct.IsPositive())

	eth, _ := result.Asset("ETH")
	assert.True(t, eth.CurrentPct.IsZero())
	assert.True(t, eth.DriftPct.Equal(d("-50")))
}

func TestSimulate_EmptyPortfolio(t *testing.T) {
	sim, err := NewSimulator(Config{})
	require.NoError(t, err)

	snap := snapshot(t, map[string]decimal.Decimal{}, weights("BTC", "40000"))
	target := domain.NewTargetAllocation(weights("BTC", "1"))

	result, err := sim.Simulate(snap, target, decimal.Zero)
	require.NoError(t, err)
	assert.True(t, result.TotalValue.IsZero())
	assert.True(t, result.DriftPct["BTC"].Equal(d("-100")))
}

func TestSimulate_Deterministic(t *testing.T) {
	sim, err := NewSimulator(Config{
		Adaptive: AdaptivePolicy{Asset: "SOL", MinWeight: d("0.1"), VolatilityThreshold: d("0.05"), Sensitivity: d("5")},
		FeeRate:  d("0.001"),
	})
	require.NoError(t, err)

	snap := snapshot(t,
		weights("BTC", "0.1", "ETH", "1.3", "SOL", "17"),
		weights("BTC", "41234.5", "ETH", "2210.75", "SOL", "101.3"),
	)
	target := domain.NewTargetAllocation(weights("BTC", "0.5", "ETH", "0.3", "SOL", "0.2"))

	first, err := sim.Simulate(snap, target, d("0.08"))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := sim.Simulate(snap, target, d("0.08"))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSimulate_DoesNotMutateTarget(t *testing.T) {
	sim, err := NewSimulator(Config{
		Adaptive: AdaptivePolicy{Asset: "SOL", MinWeight: d("0.1"), VolatilityThreshold: d("0.05"), Sensitivity: d("5")},
	})
	require.NoError(t, err)

	snap := snapshot(t, weights("SOL", "10"), weights("SOL", "100", "BTC", "40000", "ETH", "2000"))
	target := domain.NewTargetAllocation(weights("BTC", "0.5", "ETH", "0.3", "SOL", "0.2"))

	_, err = sim.Simulate(snap, target, d("0.1"))
	require.NoError(t, err)
	assert.True(t, target.Weight("SOL").Equal(d("0.2")))
	assert.True(t, target.Weight("BTC").Equal(d("0.5")))
}

func TestNewSimulator_RejectsNegativeCosts(t *testing.T) {
	_, err := NewSimulator(Config{FeeRate: d("-0.1")})
	require.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewSimulator(Config{SlippageBuffer: d("-1")})
	require.ErrorIs(t, err, domain.ErrConfiguration)
}
