package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// WeightSumTolerance how far Σ weights may stray from 1.0 (±0.5%).
var WeightSumTolerance = decimal.RequireFromString("0.005")

// TargetAllocation desired long-term weights, as fractions of total value.
type TargetAllocation struct {
	weights map[string]decimal.Decimal
}

// NewTargetAllocation copies weights into a TargetAllocation. Use Validate
// to check the weight invariants.
func NewTargetAllocation(weights map[string]decimal.Decimal) TargetAllocation {
	return TargetAllocation{weights: copyDecimals(weights)}
}

// Validate checks every weight is in (0, 1] and the weights sum to 1.0
// within WeightSumTolerance.
func (t TargetAllocation) Validate() error {
	if len(t.weights) == 0 {
		return NewConfigError("targets", "no target weights configured")
	}
	for _, asset := range t.Assets() {
		w := t.weights[asset]
		if !w.IsPositive() || w.GreaterThan(decimal.NewFromInt(1)) {
			return NewConfigError("targets", "weight of %s must be in (0, 1], got %s", asset, w.String())
		}
	}
	if !t.SumWithinTolerance() {
		return NewConfigError("targets", "weights sum to %s, expected 1.0 ± %s", t.Sum().String(), WeightSumTolerance.String())
	}
	return nil
}

// SumWithinTolerance reports whether Σ weights is 1.0 ± WeightSumTolerance.
func (t TargetAllocation) SumWithinTolerance() bool {
	return t.Sum().Sub(decimal.NewFromInt(1)).Abs().LessThanOrEqual(WeightSumTolerance)
}

// Weight returns the target weight of asset, zero when absent.
func (t TargetAllocation) Weight(asset string) decimal.Decimal {
	return t.weights[asset]
}

// Has reports whether asset has a target.
func (t TargetAllocation) Has(asset string) bool {
	_, ok := t.weights[asset]
	return ok
}

// Assets returns the targeted assets, sorted.
func (t TargetAllocation) Assets() []string {
	return sortedKeys(t.weights)
}

// Weights returns a copy of the weight table.
func (t TargetAllocation) Weights() map[string]decimal.Decimal {
	return copyDecimals(t.weights)
}

// Sum returns Σ weights.
func (t TargetAllocation) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, asset := range t.Assets() {
		sum = sum.Add(t.weights[asset])
	}
	return sum
}

// MarshalJSON encodes the weights as an object.
func (t TargetAllocation) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.weights)
}

// UnmarshalJSON decodes the weights object.
func (t *TargetAllocation) UnmarshalJSON(data []byte) error {
	var weights map[string]decimal.Decimal
	if err := json.Unmarshal(data, &weights); err != nil {
		return err
	}
	t.weights = weights
	return nil
}

// AdjustedTargetAllocation effective weights after the adaptive asset has
// been re-weighted. The base allocation is never modified.
type AdjustedTargetAllocation struct {
	Weights        map[string]decimal.Decimal `json:"weights"`
	AdaptiveAsset  string                     `json:"adaptive_asset,omitempty"`
	BaseWeight     decimal.Decimal            `json:"base_weight"`
	AdjustedWeight decimal.Decimal            `json:"adjusted_weight"`
	Volatility     decimal.Decimal            `json:"volatility"`
	Adjusted       bool                       `json:"adjusted"`
}

// Weight returns the effective weight of asset, zero when absent.
func (a AdjustedTargetAllocation) Weight(asset string) decimal.Decimal {
	return a.Weights[asset]
}

// Sum returns Σ effective weights.
func (a AdjustedTargetAllocation) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, asset := range sortedKeys(a.Weights) {
		sum = sum.Add(a.Weights[asset])
	}
	return sum
}
