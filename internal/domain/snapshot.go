package domain

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// SourceEntry records how much of an asset one collaborator contributed.
type SourceEntry struct {
	Source   string          `json:"source"`
	Kind     SourceKind      `json:"kind"`
	Quantity decimal.Decimal `json:"quantity"`
	// Unavailable marks the sentinel zero entry of an optional source that failed.
	Unavailable bool `json:"unavailable,omitempty"`
}

// SourceGap an optional source that could not be read during aggregation.
type SourceGap struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// HoldingsSnapshot point-in-time view of a portfolio. It is immutable: all
// accessors return copies.
type HoldingsSnapshot struct {
	timestamp  time.Time
	quoteAsset string
	balances   map[string]decimal.Decimal
	prices     map[string]decimal.Decimal
	breakdown  map[string][]SourceEntry
	gaps       []SourceGap
}

// NewHoldingsSnapshot validates and copies the inputs into a snapshot.
// Every asset with a balance must have a positive price and the breakdown
// of every asset must sum to its balance.
func NewHoldingsSnapshot(
	timestamp time.Time,
	quoteAsset string,
	balances map[string]decimal.Decimal,
	prices map[string]decimal.Decimal,
	breakdown map[string][]SourceEntry,
	gaps []SourceGap,
) (HoldingsSnapshot, error) {
	s := HoldingsSnapshot{
		timestamp:  timestamp,
		quoteAsset: quoteAsset,
		balances:   make(map[string]decimal.Decimal, len(balances)),
		prices:     make(map[string]decimal.Decimal, len(prices)),
		breakdown:  make(map[string][]SourceEntry, len(breakdown)),
		gaps:       append([]SourceGap(nil), gaps...),
	}

	for asset, qty := range balances {
		if qty.IsNegative() {
			return HoldingsSnapshot{}, errors.Errorf("negative balance %s for %s", qty.String(), asset)
		}
		s.balances[asset] = qty
	}
	for asset, price := range prices {
		if !price.IsPositive() {
			return HoldingsSnapshot{}, errors.Errorf("non-positive price %s for %s", price.String(), asset)
		}
		s.prices[asset] = price
	}
	for asset, qty := range s.balances {
		if _, ok := s.prices[asset]; !ok && qty.IsPositive() {
			return HoldingsSnapshot{}, errors.Errorf("missing price for %s", asset)
		}
	}
	for asset, entries := range breakdown {
		sum := decimal.Zero
		for _, e := range entries {
			sum = sum.Add(e.Quantity)
		}
		if !sum.Equal(s.balances[asset]) {
			return HoldingsSnapshot{}, errors.Errorf("breakdown of %s sums to %s, balance is %s",
				asset, sum.String(), s.balances[asset].String())
		}
		s.breakdown[asset] = append([]SourceEntry(nil), entries...)
	}

	return s, nil
}

// Timestamp returns when the snapshot was taken.
func (s HoldingsSnapshot) Timestamp() time.Time { return s.timestamp }

// QuoteAsset returns the currency prices are expressed in.
func (s HoldingsSnapshot) QuoteAsset() string { return s.quoteAsset }

// Assets returns every asset with a balance or a price, sorted.
func (s HoldingsSnapshot) Assets() []string {
	seen := make(map[string]struct{}, len(s.balances)+len(s.prices))
	for a := range s.balances {
		seen[a] = struct{}{}
	}
	for a := range s.prices {
		seen[a] = struct{}{}
	}
	return sortedKeys(seen)
}

// Balance returns the merged quantity of asset.
func (s HoldingsSnapshot) Balance(asset string) decimal.Decimal {
	return s.balances[asset]
}

// Balances returns a copy of all merged quantities.
func (s HoldingsSnapshot) Balances() map[string]decimal.Decimal {
	return copyDecimals(s.balances)
}

// Price returns the price of asset and whether it is known.
func (s HoldingsSnapshot) Price(asset string) (decimal.Decimal, bool) {
	p, ok := s.prices[asset]
	return p, ok
}

// Prices returns a copy of the price table.
func (s HoldingsSnapshot) Prices() map[string]decimal.Decimal {
	return copyDecimals(s.prices)
}

// Breakdown returns the per-source contributions to asset.
func (s HoldingsSnapshot) Breakdown(asset string) []SourceEntry {
	return append([]SourceEntry(nil), s.breakdown[asset]...)
}

// Gaps returns the optional sources that were skipped.
func (s HoldingsSnapshot) Gaps() []SourceGap {
	return append([]SourceGap(nil), s.gaps...)
}

// Value returns balance x price of asset in the quote currency.
func (s HoldingsSnapshot) Value(asset string) decimal.Decimal {
	price, ok := s.prices[asset]
	if !ok {
		return decimal.Zero
	}
	return s.balances[asset].Mul(price)
}

// TotalValue returns the sum of all asset values.
func (s HoldingsSnapshot) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, asset := range sortedKeys(s.balances) {
		total = total.Add(s.Value(asset))
	}
	return total
}

// Allocation returns the fraction of total value held in asset.
// It is zero for an empty portfolio.
func (s HoldingsSnapshot) Allocation(asset string) decimal.Decimal {
	total := s.TotalValue()
	if total.IsZero() {
		return decimal.Zero
	}
	return s.Value(asset).Div(total)
}

// HasLendingPosition reports whether any lending source contributed a
// positive quantity.
func (s HoldingsSnapshot) HasLendingPosition() bool {
	for _, entries := range s.breakdown {
		for _, e := range entries {
			if e.Kind == SourceKindLending && e.Quantity.IsPositive() {
				return true
			}
		}
	}
	return false
}

// HasUnreadLendingSource reports whether a lending source failed during
// aggregation, leaving its position unknown.
func (s HoldingsSnapshot) HasUnreadLendingSource() bool {
	for _, entries := range s.breakdown {
		for _, e := range entries {
			if e.Kind == SourceKindLending && e.Unavailable {
				return true
			}
		}
	}
	return false
}

type snapshotJSON struct {
	Timestamp  time.Time                  `json:"ts"`
	QuoteAsset string                     `json:"quote_asset"`
	TotalValue decimal.Decimal            `json:"total_value"`
	Balances   map[string]decimal.Decimal `json:"asset_balances"`
	Prices     map[string]decimal.Decimal `json:"prices"`
	Breakdown  map[string][]SourceEntry   `json:"source_breakdown"`
	Gaps       []SourceGap                `json:"gaps,omitempty"`
}

// MarshalJSON encodes the snapshot for the run log.
func (s HoldingsSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		Timestamp:  s.timestamp,
		QuoteAsset: s.quoteAsset,
		TotalValue: s.TotalValue(),
		Balances:   s.balances,
		Prices:     s.prices,
		Breakdown:  s.breakdown,
		Gaps:       s.gaps,
	})
}

// UnmarshalJSON decodes a snapshot read back from the run log.
func (s *HoldingsSnapshot) UnmarshalJSON(data []byte) error {
	var raw snapshotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	decoded, err := NewHoldingsSnapshot(raw.Timestamp, raw.QuoteAsset, raw.Balances, raw.Prices, raw.Breakdown, raw.Gaps)
	if err != nil {
		return errors.Wrap(err, "decode holdings snapshot")
	}
	*s = decoded
	return nil
}

func copyDecimals(in map[string]decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
