// Package holdings reads per-asset balances from exchanges, wallets and
// lending positions.
package holdings

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

// Source a place that holds assets.
type Source interface {
	Name() string
	Kind() domain.SourceKind
	// GetBalances returns the quantity held per asset. Zero balances may be
	// omitted.
	GetBalances(ctx context.Context) (map[string]decimal.Decimal, error)
	// IsReachable reports whether the backing endpoint answers.
	IsReachable(ctx context.Context) bool
}

// addBalance parses raw and accumulates it under the upper-cased asset.
func addBalance(out map[string]decimal.Decimal, asset, raw string) error {
	if raw == "" {
		return nil
	}
	qty, err := decimal.NewFromString(raw)
	if err != nil {
		return errors.Wrapf(err, "malformed balance %q for %s", raw, asset)
	}
	if qty.IsNegative() {
		return errors.Errorf("negative balance %s for %s", raw, asset)
	}
	if qty.IsZero() {
		return nil
	}
	asset = strings.ToUpper(asset)
	out[asset] = out[asset].Add(qty)
	return nil
}
