package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/sovereign/internal/domain"
	pricerMock "github.com/vadiminshakov/sovereign/mocks/pricer"
)

type fakeSource struct {
	name     string
	kind     domain.SourceKind
	balances map[string]decimal.Decimal
	err      error
	delay    time.Duration
}

func (f *fakeSource) Name() string            { return f.name }
func (f *fakeSource) Kind() domain.SourceKind { return f.kind }

// GetBalances ignores ctx on purpose to exercise the hard timeout.
func (f *fakeSource) GetBalances(context.Context) (map[string]decimal.Decimal, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.balances, nil
}

func (f *fakeSource) IsReachable(context.Context) bool { return f.err == nil }

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func pairMatcher(asset string) interface{} {
	return mock.MatchedBy(func(p domain.Pair) bool { return p.From == asset && p.To == "USDT" })
}

func newAggregator(t *testing.T, sources []SourceSpec, p *pricerMock.Pricer, targets ...string) *Aggregator {
	t.Helper()
	agg, err := NewAggregator(sources, p, Config{
		QuoteAsset:   "USDT",
		TargetAssets: targets,
		CallTimeout:  100 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	agg.now = func() time.Time { return time.Unix(1700000000, 0) }
	return agg
}

func TestAggregate_MergesSources(t *testing.T) {
	mockPricer := pricerMock.NewPricer(t)
	mockPricer.On("GetPrice", mock.Anything, pairMatcher("BTC")).Return(dec("40000"), nil)
	mockPricer.On("GetPrice", mock.Anything, pairMatcher("ETH")).Return(dec("2000"), nil)

	exchange := &fakeSource{name: "binance", kind: domain.SourceKindExchange, balances: map[string]decimal.Decimal{
		"BTC": dec("0.05"), "USDT": dec("1000"),
	}}
	cold := &fakeSource{name: "ledger", kind: domain.SourceKindCustody, balances: map[string]decimal.Decimal{
		"BTC": dec("0.05"), "ETH": dec("2"),
	}}

	agg := newAggregator(t, []SourceSpec{{Source: exchange, Required: true}, {Source: cold, Required: true}}, mockPricer, "BTC", "ETH")

	snap, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	assert.True(t, snap.Balance("BTC").Equal(dec("0.1")))
	assert.True(t, snap.Balance("ETH").Equal(dec("2")))
	assert.True(t, snap.TotalValue().Equal(dec("9000")), "total %s", snap.TotalValue())

	quotePrice, ok := snap.Price("USDT")
	require.True(t, ok)
	assert.True(t, quotePrice.Equal(decimal.NewFromInt(1)))

	btc := snap.Breakdown("BTC")
	require.Len(t, btc, 2)
	assert.Equal(t, "binance", btc[0].Source)
	assert.Equal(t, "ledger", btc[1].Source)
	assert.Empty(t, snap.Gaps())
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), snap.Timestamp())
}

func TestAggregate_RequiredSourceTimeout(t *testing.T) {
	mockPricer := pricerMock.NewPricer(t)

	slow := &fakeSource{name: "bybit", kind: domain.SourceKindExchange, delay: 2 * time.Second}
	ok := &fakeSource{name: "ledger", kind: domain.SourceKindCustody, balances: map[string]decimal.Decimal{"BTC": dec("1")}}

	agg := newAggregator(t, []SourceSpec{{Source: slow, Required: true}, {Source: ok}}, mockPricer, "BTC")

	start := time.Now()
	_, err := agg.Aggregate(context.Background())
	require.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Less(t, time.Since(start), time.Second)

	var srcErr *domain.SourceError
	require.ErrorAs(t, err, &srcErr)
	assert.Equal(t, "bybit", srcErr.Source)
	mockPricer.AssertNotCalled(t, "GetPrice", mock.Anything, mock.Anything)
}

func TestAggregate_OptionalSourceFailure(t *testing.T) {
	mockPricer := pricerMock.NewPricer(t)
	mockPricer.On("GetPrice", mock.Anything, pairMatcher("BTC")).Return(dec("40000"), nil)
	mockPricer.On("GetPrice", mock.Anything, pairMatcher("ETH")).Return(dec("2000"), nil)

	exchange := &fakeSource{name: "binance", kind: domain.SourceKindExchange, balances: map[string]decimal.Decimal{"BTC": dec("1")}}
	broken := &fakeSource{name: "aave", kind: domain.SourceKindLending, err: errors.New("rpc down")}

	agg := newAggregator(t, []SourceSpec{{Source: exchange, Required: true}, {Source: broken}}, mockPricer, "BTC", "ETH")

	snap, err := agg.Aggregate(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Gaps(), 1)
	assert.Equal(t, "aave", snap.Gaps()[0].Source)

	eth := snap.Breakdown("ETH")
	require.Len(t, eth, 1)
	assert.True(t, eth[0].Unavailable)
	assert.True(t, eth[0].Quantity.IsZero())
	assert.False(t, snap.HasLendingPosition())
	assert.True(t, snap.Balance("BTC").Equal(dec("1")))
}

func TestAggregate_PriceFailure(t *testing.T) {
	mockPricer := pricerMock.NewPricer(t)
	mockPricer.On("GetPrice", mock.Anything, pairMatcher("BTC")).Return(decimal.Zero, errors.Wrap(domain.ErrPriceUnavailable, "no ticker"))

	exchange := &fakeSource{name: "binance", kind: domain.SourceKindExchange, balances: map[string]decimal.Decimal{"BTC": dec("1")}}
	agg := newAggregator(t, []SourceSpec{{Source: exchange, Required: true}}, mockPricer, "BTC")

	_, err := agg.Aggregate(context.Background())
	require.ErrorIs(t, err, domain.ErrSourceUnavailable)
	require.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestAggregate_NegativeBalanceIsMalformed(t *testing.T) {
	mockPricer := pricerMock.NewPricer(t)

	bad := &fakeSource{name: "manual", kind: domain.SourceKindManual, balances: map[string]decimal.Decimal{"BTC": dec("-1")}}
	agg := newAggregator(t, []SourceSpec{{Source: bad, Required: true}}, mockPricer, "BTC")

	_, err := agg.Aggregate(context.Background())
	require.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestNewAggregator_Validation(t *testing.T) {
	mockPricer := pricerMock.NewPricer(t)

	_, err := NewAggregator(nil, mockPricer, Config{QuoteAsset: "USDT"}, nil)
	require.ErrorIs(t, err, domain.ErrConfiguration)

	src := &fakeSource{name: "x"}
	_, err = NewAggregator([]SourceSpec{{Source: src}}, nil, Config{QuoteAsset: "USDT"}, nil)
	require.ErrorIs(t, err, domain.ErrConfiguration)

	agg, err := NewAggregator([]SourceSpec{{Source: src}}, mockPricer, Config{QuoteAsset: "usdt"}, nil)
	require.NoError(t, err)
	assert.Equal(t, defaultCallTimeout, agg.cfg.CallTimeout)
	assert.Equal(t, "USDT", agg.cfg.QuoteAsset)
}
