package domain

import (
	"github.com/shopspring/decimal"
)

// AssetDrift comparison of one asset's current and target allocation.
// Percentages are in percentage points.
type AssetDrift struct {
	Asset        string          `json:"asset"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	CurrentValue decimal.Decimal `json:"current_value"`
	CurrentPct   decimal.Decimal `json:"current_pct"`
	TargetPct    decimal.Decimal `json:"target_pct"`
	DriftPct     decimal.Decimal `json:"drift_pct"`
	// DriftValue signed quote-currency amount the asset is over (+) or under (-) target.
	DriftValue decimal.Decimal `json:"drift_value"`
	Priced     bool            `json:"priced"`
}

// DriftResult output of comparing a snapshot to a target.
type DriftResult struct {
	QuoteAsset      string                     `json:"quote_asset"`
	TotalValue      decimal.Decimal            `json:"total_value"`
	DriftPct        map[string]decimal.Decimal `json:"drift_pct"`
	Assets          []AssetDrift               `json:"assets"`
	EffectiveTarget AdjustedTargetAllocation   `json:"effective_target"`
	EstimatedCost   decimal.Decimal            `json:"estimated_cost"`
}

// Asset returns the drift details of asset.
func (d DriftResult) Asset(asset string) (AssetDrift, bool) {
	for _, a := range d.Assets {
		if a.Asset == asset {
			return a, true
		}
	}
	return AssetDrift{}, false
}

// MaxAbsDrift returns the largest |drift_pct| across assets.
func (d DriftResult) MaxAbsDrift() decimal.Decimal {
	maxDrift := decimal.Zero
	for _, a := range d.Assets {
		if a.DriftPct.Abs().GreaterThan(maxDrift) {
			maxDrift = a.DriftPct.Abs()
		}
	}
	return maxDrift
}
