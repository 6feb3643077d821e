// Package pricer provides spot price sources quoted in the portfolio quote asset.
package pricer

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

// Pricer returns the last price of pair.From in pair.To.
type Pricer interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

// parsePrice converts an exchange price string, rejecting malformed and
// non-positive values.
func parsePrice(platform string, pair domain.Pair, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, errors.Wrapf(domain.ErrPriceUnavailable, "%s returned empty price for %s", platform, pair.String())
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "%s returned malformed price %q for %s", platform, raw, pair.String())
	}
	if !price.IsPositive() {
		return decimal.Zero, errors.Errorf("%s returned non-positive price %s for %s", platform, raw, pair.String())
	}
	return price, nil
}
