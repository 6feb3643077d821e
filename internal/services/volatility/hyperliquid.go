package volatility

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	hyperliquid "github.com/sonirico/go-hyperliquid"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

// HyperliquidKlineProvider implements KlineProvider from Hyperliquid candle
// snapshots. Candles are keyed by base coin; pair.To is ignored.
type HyperliquidKlineProvider struct {
	info *hyperliquid.Info
	now  func() time.Time
}

func NewHyperliquidKlineProvider(info *hyperliquid.Info) *HyperliquidKlineProvider {
	return &HyperliquidKlineProvider{info: info, now: time.Now}
}

// parseInterval accepts 1m, 15m, 1h, 4h, 1d style intervals.
func parseInterval(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, errors.Errorf("invalid interval %q", interval)
	}
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, errors.Errorf("invalid interval number %q", interval)
	}
	switch interval[len(interval)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, errors.Errorf("unsupported interval unit in %q", interval)
	}
}

func (p *HyperliquidKlineProvider) GetKlines(ctx context.Context, pair domain.Pair, interval string, limit int) ([]domain.MarketCandle, error) {
	if p.info == nil {
		return nil, errors.New("hyperliquid info is nil")
	}
	if limit <= 0 {
		return nil, errors.New("limit must be > 0")
	}
	dur, err := parseInterval(interval)
	if err != nil {
		return nil, err
	}

	endMs := p.now().UnixMilli()
	// two extra candles absorb boundary rounding
	startMs := endMs - (int64(limit)+2)*dur.Milliseconds()
	coin := strings.ToUpper(pair.From)

	candles, err := p.info.CandlesSnapshot(ctx, coin, interval, startMs, endMs)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch candles from Hyperliquid for %s", coin)
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}

	out := make([]domain.MarketCandle, 0, len(candles))
	for i, k := range candles {
		c, err := parseCandle(k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			return nil, errors.Wrapf(err, "candle %d", i)
		}
		c.OpenTime = time.UnixMilli(k.TimeOpen)
		c.CloseTime = time.UnixMilli(k.TimeClose)
		out = append(out, c)
	}
	return out, nil
}
