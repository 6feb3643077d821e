package volatility

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

// KlineProvider fetches historical candles, oldest first.
type KlineProvider interface {
	GetKlines(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.MarketCandle, error)
}

// BinanceKlineProvider implements KlineProvider for Binance spot.
type BinanceKlineProvider struct {
	client *binance.Client
}

func NewBinanceKlineProvider(client *binance.Client) *BinanceKlineProvider {
	return &BinanceKlineProvider{client: client}
}

func (p *BinanceKlineProvider) GetKlines(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.MarketCandle, error) {
	klines, err := p.client.NewKlinesService().
		Symbol(pair.Symbol()).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch klines from Binance for %s", pair.String())
	}

	result := make([]domain.MarketCandle, len(klines))
	for i, k := range klines {
		c, err := parseCandle(k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			return nil, errors.Wrapf(err, "kline %d", i)
		}
		c.OpenTime = time.UnixMilli(k.OpenTime)
		c.CloseTime = time.UnixMilli(k.CloseTime)
		result[i] = c
	}
	return result, nil
}

func parseCandle(open, high, low, closeP, volume string) (domain.MarketCandle, error) {
	var c domain.MarketCandle
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"open", open, &c.Open},
		{"high", high, &c.High},
		{"low", low, &c.Low},
		{"close", closeP, &c.Close},
		{"volume", volume, &c.Volume},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return domain.MarketCandle{}, errors.Wrapf(err, "failed to parse %s price", f.name)
		}
		*f.dst = d
	}
	return c, nil
}
