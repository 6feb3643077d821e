package volatility

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

type fakeProvider struct {
	candles []domain.MarketCandle
	err     error
	gotPair domain.Pair
	gotInt  string
	gotLim  int
}

func (f *fakeProvider) GetKlines(_ context.Context, pair domain.Pair, interval string, limit int) ([]domain.MarketCandle, error) {
	f.gotPair, f.gotInt, f.gotLim = pair, interval, limit
	return f.candles, f.err
}

// flatCandles have a constant true range of 2 around a close of 100.
func flatCandles(n int) []domain.MarketCandle {
	out := make([]domain.MarketCandle, n)
	for i := range out {
		out[i] = domain.MarketCandle{
			Open:  decimal.NewFromInt(100),
			High:  decimal.NewFromInt(101),
			Low:   decimal.NewFromInt(99),
			Close: decimal.NewFromInt(100),
		}
	}
	return out
}

func TestCalculateATR_ConstantRange(t *testing.T) {
	series, err := CalculateATR(flatCandles(30), 14)
	require.NoError(t, err)
	require.NotEmpty(t, series)

	last, _ := series[len(series)-1].Float64()
	assert.InDelta(t, 2.0, last, 1e-9)
}

func TestCalculateATR_NotEnoughData(t *testing.T) {
	_, err := CalculateATR(flatCandles(10), 14)
	require.Error(t, err)

	_, err = CalculateATR(flatCandles(10), 0)
	require.Error(t, err)
}

func TestATRSignal_Volatility(t *testing.T) {
	provider := &fakeProvider{candles: flatCandles(48)}
	signal, err := NewATRSignal(provider, ATRSignalConfig{QuoteAsset: "USDT", Interval: "1h", Lookback: 48, Period: 14}, nil)
	require.NoError(t, err)

	v, err := signal.Volatility(context.Background(), "sol")
	require.NoError(t, err)

	f, _ := v.Float64()
	assert.InDelta(t, 0.02, f, 1e-9)
	assert.Equal(t, "SOL", provider.gotPair.From)
	assert.Equal(t, "USDT", provider.gotPair.To)
	assert.Equal(t, "1h", provider.gotInt)
	assert.Equal(t, 48, provider.gotLim)
}

func TestATRSignal_ProviderError(t *testing.T) {
	signal, err := NewATRSignal(&fakeProvider{err: errors.New("boom")},
		ATRSignalConfig{QuoteAsset: "USDT", Interval: "1h", Lookback: 48, Period: 14}, nil)
	require.NoError(t, err)

	_, err = signal.Volatility(context.Background(), "SOL")
	require.Error(t, err)
}

func TestNewATRSignal_Validation(t *testing.T) {
	_, err := NewATRSignal(&fakeProvider{}, ATRSignalConfig{Lookback: 10, Period: 14}, nil)
	require.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewATRSignal(nil, ATRSignalConfig{Lookback: 48, Period: 14}, nil)
	require.Error(t, err)
}

func TestParseInterval(t *testing.T) {
	d, err := parseInterval("4h")
	require.NoError(t, err)
	assert.Equal(t, "4h0m0s", d.String())

	d, err = parseInterval("1d")
	require.NoError(t, err)
	assert.Equal(t, float64(24), d.Hours())

	for _, bad := range []string{"", "h", "0m", "5x", "abc"} {
		_, err := parseInterval(bad)
		assert.Error(t, err, bad)
	}
}
