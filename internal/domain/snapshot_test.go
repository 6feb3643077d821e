package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestNewHoldingsSnapshot_Values(t *testing.T) {
	snap, err := NewHoldingsSnapshot(time.Unix(1700000000, 0).UTC(), "USDT",
		map[string]decimal.Decimal{"BTC": dec("0.5"), "ETH": dec("2"), "USDT": dec("1000")},
		map[string]decimal.Decimal{"BTC": dec("40000"), "ETH": dec("2500"), "USDT": dec("1")},
		nil, nil)
	require.NoError(t, err)

	assert.True(t, snap.Value("BTC").Equal(dec("20000")))
	assert.True(t, snap.TotalValue().Equal(dec("26000")))
	assert.Equal(t, []string{"BTC", "ETH", "USDT"}, snap.Assets())
	assert.Equal(t, "USDT", snap.QuoteAsset())

	sum := decimal.Zero
	for _, a := range snap.Assets() {
		sum = sum.Add(snap.Allocation(a))
	}
	assert.True(t, sum.Sub(dec("1")).Abs().LessThan(dec("0.0000001")), sum.String())
}

func TestNewHoldingsSnapshot_EmptyPortfolio(t *testing.T) {
	snap, err := NewHoldingsSnapshot(time.Now(), "USDT", nil, nil, nil, nil)
	require.NoError(t, err)

	assert.True(t, snap.TotalValue().IsZero())
	assert.True(t, snap.Allocation("BTC").IsZero())
	assert.False(t, snap.HasLendingPosition())
}

func TestNewHoldingsSnapshot_Rejects(t *testing.T) {
	tests := []struct {
		name      string
		balances  map[string]decimal.Decimal
		prices    map[string]decimal.Decimal
		breakdown map[string][]SourceEntry
	}{
		{
			name:     "negative balance",
			balances: map[string]decimal.Decimal{"BTC": dec("-1")},
			prices:   map[string]decimal.Decimal{"BTC": dec("1")},
		},
		{
			name:     "zero price",
			balances: map[string]decimal.Decimal{"BTC": dec("1")},
			prices:   map[string]decimal.Decimal{"BTC": dec("0")},
		},
		{
			name:     "missing price",
			balances: map[string]decimal.Decimal{"BTC": dec("1")},
		},
		{
			name:     "breakdown mismatch",
			balances: map[string]decimal.Decimal{"BTC": dec("1")},
			prices:   map[string]decimal.Decimal{"BTC": dec("1")},
			breakdown: map[string][]SourceEntry{"BTC": {
				{Source: "binance", Kind: SourceKindExchange, Quantity: dec("0.4")},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewHoldingsSnapshot(time.Now(), "USDT", tt.balances, tt.prices, tt.breakdown, nil)
			require.Error(t, err)
		})
	}
}

func TestHoldingsSnapshot_IsImmutable(t *testing.T) {
	balances := map[string]decimal.Decimal{"BTC": dec("1")}
	snap, err := NewHoldingsSnapshot(time.Now(), "USDT", balances,
		map[string]decimal.Decimal{"BTC": dec("30000")}, nil, nil)
	require.NoError(t, err)

	balances["BTC"] = dec("100")
	got := snap.Balances()
	got["BTC"] = dec("5")

	assert.True(t, snap.Balance("BTC").Equal(dec("1")))
}

func TestHoldingsSnapshot_LendingPosition(t *testing.T) {
	snap, err := NewHoldingsSnapshot(time.Now(), "USDT",
		map[string]decimal.Decimal{"ETH": dec("3")},
		map[string]decimal.Decimal{"ETH": dec("2000")},
		map[string][]SourceEntry{"ETH": {
			{Source: "ledger", Kind: SourceKindCustody, Quantity: dec("1")},
			{Source: "aave", Kind: SourceKindLending, Quantity: dec("2")},
		}},
		[]SourceGap{{Source: "bybit", Reason: "timeout"}})
	require.NoError(t, err)

	assert.True(t, snap.HasLendingPosition())
	assert.Len(t, snap.Breakdown("ETH"), 2)
	assert.Equal(t, "bybit", snap.Gaps()[0].Source)
}

func TestHoldingsSnapshot_JSON(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	snap, err := NewHoldingsSnapshot(ts, "USDT",
		map[string]decimal.Decimal{"BTC": dec("1")},
		map[string]decimal.Decimal{"BTC": dec("30000")},
		map[string][]SourceEntry{"BTC": {{Source: "binance", Kind: SourceKindExchange, Quantity: dec("1")}}},
		nil)
	require.NoError(t, err)

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"total_value":"30000"`)

	var decoded HoldingsSnapshot
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Timestamp().Equal(ts))
	assert.True(t, decoded.TotalValue().Equal(dec("30000")))
	assert.Equal(t, "binance", decoded.Breakdown("BTC")[0].Source)
}
