package setup

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRenderRecord(t *testing.T) {
	snap, err := domain.NewHoldingsSnapshot(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), "USDT",
		map[string]decimal.Decimal{"BTC": dec("1")},
		map[string]decimal.Decimal{"BTC": dec("30000")},
		nil,
		[]domain.SourceGap{{Source: "bybit", Reason: "timeout"}})
	require.NoError(t, err)

	order := domain.Order{Asset: "BTC", Side: domain.SideSell, Quantity: dec("0.1"), Price: dec("30000"), Rung: 1, Rungs: 3}
	record := domain.RunRecord{
		RunID:    "run-1",
		Mode:     domain.ModeExecute,
		Snapshot: &snap,
		Drift: &domain.DriftResult{
			QuoteAsset:    "USDT",
			Assets:        []domain.AssetDrift{{Asset: "BTC", Priced: true, DriftPct: dec("25"), DriftValue: dec("7500")}},
			EstimatedCost: dec("7.5"),
		},
		Preflight: &domain.PreflightReport{
			Checks: []domain.PreflightCheck{
				{Name: "credentials", Passed: true, Detail: "2 variables present"},
				{Name: "health_factor", Passed: true, Skipped: true, Detail: "no lending position"},
			},
			OverallPass: true,
		},
		Plan: &domain.ExecutionPlan{QuoteAsset: "USDT", Policy: domain.LadderFrontLoaded, Orders: []domain.Order{order}},
		Outcome: &domain.ExecutionOutcome{
			Rungs:       []domain.RungOutcome{{Order: order, ClientOrderID: "run1-BTC-2", Status: domain.RungFailed}},
			Failures:    []domain.ExecutionFailure{{Asset: "BTC", Rung: 1, Reason: "rejected"}},
			Checkpoint:  domain.Checkpoint{NextOrder: 1, Total: 1},
			Aborted:     true,
			AbortReason: "rung failed",
		},
	}

	out := RenderRecord(record)
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "total 30000.00 USDT")
	assert.Contains(t, out, "source bybit unavailable: timeout")
	assert.Contains(t, out, "+25.00")
	assert.Contains(t, out, "estimated cost 7.50 USDT")
	assert.Contains(t, out, "SKIP")
	assert.Contains(t, out, "all checks passed")
	assert.Contains(t, out, "sell 0.1 BTC (rung 2/3)")
	assert.Contains(t, out, "BTC rung 2: rejected")
	assert.Contains(t, out, "aborted: rung failed")
}

func TestRenderRecord_ErrorOnly(t *testing.T) {
	out := RenderRecord(domain.RunRecord{RunID: "r", Mode: domain.ModeSimulate, Error: "source \"binance\" unavailable"})
	assert.Contains(t, out, "SIMULATE")
	assert.Contains(t, out, "error: source \"binance\" unavailable")
	assert.NotContains(t, out, "PLAN")
}

func TestRenderPlan_Empty(t *testing.T) {
	out := RenderPlan(domain.ExecutionPlan{Policy: domain.LadderEven})
	assert.Contains(t, out, "no trades needed")
}
