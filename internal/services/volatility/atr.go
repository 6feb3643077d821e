// Package volatility derives a volatility signal for the adaptive asset.
package volatility

import (
	"context"
	"strings"

	"github.com/cinar/indicator/v2/helper"
	indicator "github.com/cinar/indicator/v2/volatility"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

// CalculateATR returns the Average True Range series for candles. The
// series is shorter than the input by the indicator warm-up.
func CalculateATR(candles []domain.MarketCandle, period int) ([]decimal.Decimal, error) {
	if period < 1 {
		return nil, errors.Errorf("ATR period must be positive, got %d", period)
	}
	if len(candles) < period+1 {
		return nil, errors.Errorf("not enough data points for ATR: need %d, got %d", period+1, len(candles))
	}

	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i], _ = c.High.Float64()
		lows[i], _ = c.Low.Float64()
		closes[i], _ = c.Close.Float64()
	}

	atr := indicator.NewAtrWithPeriod[float64](period)
	out := helper.ChanToSlice(atr.Compute(
		helper.SliceToChan(highs),
		helper.SliceToChan(lows),
		helper.SliceToChan(closes),
	))

	result := make([]decimal.Decimal, len(out))
	for i, v := range out {
		result[i] = decimal.NewFromFloat(v)
	}
	return result, nil
}

// ATRSignalConfig kline window of the signal.
type ATRSignalConfig struct {
	QuoteAsset string
	Interval   string
	Lookback   int
	Period     int
}

// ATRSignal normalized ATR: the latest ATR divided by the latest close.
// 0.03 means the typical candle range is 3% of price.
type ATRSignal struct {
	provider KlineProvider
	cfg      ATRSignalConfig
	logger   *zap.Logger
}

func NewATRSignal(provider KlineProvider, cfg ATRSignalConfig, logger *zap.Logger) (*ATRSignal, error) {
	if provider == nil {
		return nil, errors.New("kline provider is required")
	}
	if cfg.Period < 1 || cfg.Lookback <= cfg.Period {
		return nil, domain.NewConfigError("adaptive.lookback", "lookback %d must exceed period %d", cfg.Lookback, cfg.Period)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ATRSignal{provider: provider, cfg: cfg, logger: logger.With(zap.String("component", "volatility"))}, nil
}

// Volatility returns the signal for asset.
func (s *ATRSignal) Volatility(ctx context.Context, asset string) (decimal.Decimal, error) {
	pair := domain.NewPair(strings.ToUpper(asset), s.cfg.QuoteAsset)

	candles, err := s.provider.GetKlines(ctx, pair, s.cfg.Interval, s.cfg.Lookback)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to fetch klines for %s", pair.String())
	}

	series, err := CalculateATR(candles, s.cfg.Period)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "volatility of %s", pair.String())
	}
	if len(series) == 0 {
		return decimal.Zero, errors.Errorf("empty ATR series for %s", pair.String())
	}

	lastClose := candles[len(candles)-1].Close
	if !lastClose.IsPositive() {
		return decimal.Zero, errors.Errorf("non-positive close %s for %s", lastClose.String(), pair.String())
	}

	signal := series[len(series)-1].Div(lastClose)
	if signal.IsNegative() {
		signal = decimal.Zero
	}

	s.logger.Info("volatility signal",
		zap.String("pair", pair.String()),
		zap.String("interval", s.cfg.Interval),
		zap.String("atr", series[len(series)-1].String()),
		zap.String("signal", signal.String()),
	)

	return signal, nil
}
