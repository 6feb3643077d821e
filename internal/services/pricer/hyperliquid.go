package pricer

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

// HyperliquidPricer fetches mid prices from the Hyperliquid Info API.
// Mids are USD denominated; pair.To is not consulted.
type HyperliquidPricer struct {
	info *hyperliquid.Info
}

func NewHyperliquidPricer(info *hyperliquid.Info) *HyperliquidPricer {
	return &HyperliquidPricer{info: info}
}

func (p *HyperliquidPricer) GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error) {
	if p.info == nil {
		return decimal.Zero, errors.New("hyperliquid info client is nil")
	}

	mids, err := p.info.AllMids(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to get hyperliquid mids")
	}

	// mids are keyed by base coin, e.g. "BTC"
	mid, ok := mids[strings.ToUpper(pair.From)]
	if !ok {
		return decimal.Zero, errors.Wrapf(domain.ErrPriceUnavailable, "hyperliquid has no mid price for %s", pair.From)
	}
	return parsePrice("hyperliquid", pair, mid)
}
