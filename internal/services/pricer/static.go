package pricer

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

// StaticPricer serves prices from a fixed table keyed by base asset.
type StaticPricer struct {
	prices map[string]decimal.Decimal
}

func NewStaticPricer(prices map[string]decimal.Decimal) *StaticPricer {
	table := make(map[string]decimal.Decimal, len(prices))
	for asset, price := range prices {
		table[strings.ToUpper(asset)] = price
	}
	return &StaticPricer{prices: table}
}

func (p *StaticPricer) GetPrice(_ context.Context, pair domain.Pair) (decimal.Decimal, error) {
	price, ok := p.prices[strings.ToUpper(pair.From)]
	if !ok {
		return decimal.Zero, errors.Wrapf(domain.ErrPriceUnavailable, "no static price for %s", pair.From)
	}
	if !price.IsPositive() {
		return decimal.Zero, errors.Errorf("non-positive static price %s for %s", price.String(), pair.From)
	}
	return price, nil
}
