package drift

import (
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

var one = decimal.NewFromInt(1)

// AdaptivePolicy re-weights a single asset from a volatility signal.
// The zero value disables adaptation.
type AdaptivePolicy struct {
	Asset     string
	MinWeight decimal.Decimal
	// VolatilityThreshold signal level above which the weight is dampened.
	VolatilityThreshold decimal.Decimal
	// Sensitivity weight reduction per unit of volatility above the threshold.
	Sensitivity decimal.Decimal
}

// Enabled reports whether an adaptive asset is configured.
func (p AdaptivePolicy) Enabled() bool {
	return p.Asset != ""
}

// Validate checks the policy against the base allocation.
func (p AdaptivePolicy) Validate(base domain.TargetAllocation) error {
	if !p.Enabled() {
		return nil
	}
	if !base.Has(p.Asset) {
		return domain.NewConfigError("adaptive.asset", "%s is not present in targets", p.Asset)
	}
	if len(base.Assets()) < 2 {
		return domain.NewConfigError("adaptive.asset", "needs at least one other target asset to renormalize against")
	}
	if p.MinWeight.IsNegative() || p.MinWeight.GreaterThan(base.Weight(p.Asset)) {
		return domain.NewConfigError("adaptive.min_weight", "must be in [0, %s], got %s",
			base.Weight(p.Asset).String(), p.MinWeight.String())
	}
	if p.VolatilityThreshold.IsNegative() {
		return domain.NewConfigError("adaptive.volatility_threshold", "must not be negative")
	}
	if p.Sensitivity.IsNegative() {
		return domain.NewConfigError("adaptive.sensitivity", "must not be negative")
	}
	return nil
}

// Factor returns f(v): 1 up to the threshold, then falling linearly with
// Sensitivity. The result is never negative.
func (p AdaptivePolicy) Factor(volatility decimal.Decimal) decimal.Decimal {
	if volatility.LessThanOrEqual(p.VolatilityThreshold) {
		return one
	}
	f := one.Sub(p.Sensitivity.Mul(volatility.Sub(p.VolatilityThreshold)))
	if f.IsNegative() {
		return decimal.Zero
	}
	return f
}

// AdjustTarget derives the effective weights for a volatility signal.
//
// The adaptive weight becomes base x f(volatility) clamped to
// [MinWeight, base]; the other weights are scaled by
// (1 - adjusted) / Σ others so the effective weights sum to exactly 1.
// The last other asset in sorted order takes the remainder. base is not
// modified.
func AdjustTarget(base domain.TargetAllocation, policy AdaptivePolicy, volatility decimal.Decimal) (domain.AdjustedTargetAllocation, error) {
	if !policy.Enabled() {
		return domain.AdjustedTargetAllocation{Weights: base.Weights()}, nil
	}
	if err := policy.Validate(base); err != nil {
		return domain.AdjustedTargetAllocation{}, err
	}
	if volatility.IsNegative() {
		return domain.AdjustedTargetAllocation{}, domain.NewConfigError("volatility", "signal must not be negative, got %s", volatility.String())
	}

	baseWeight := base.Weight(policy.Asset)
	adjusted := baseWeight.Mul(policy.Factor(volatility))
	if adjusted.LessThan(policy.MinWeight) {
		adjusted = policy.MinWeight
	}
	if adjusted.GreaterThan(baseWeight) {
		adjusted = baseWeight
	}

	others := make([]string, 0, len(base.Assets())-1)
	othersSum := decimal.Zero
	for _, asset := range base.Assets() {
		if asset == policy.Asset {
			continue
		}
		others = append(others, asset)
		othersSum = othersSum.Add(base.Weight(asset))
	}

	remaining := one.Sub(adjusted)
	scale := remaining.Div(othersSum)

	weights := make(map[string]decimal.Decimal, len(others)+1)
	weights[policy.Asset] = adjusted
	allocated := decimal.Zero
	for i, asset := range others {
		if i == len(others)-1 {
			weights[asset] = remaining.Sub(allocated)
			break
		}
		w := base.Weight(asset).Mul(scale)
		weights[asset] = w
		allocated = allocated.Add(w)
	}

	return domain.AdjustedTargetAllocation{
		Weights:        weights,
		AdaptiveAsset:  policy.Asset,
		BaseWeight:     baseWeight,
		AdjustedWeight: adjusted,
		Volatility:     volatility,
		Adjusted:       !adjusted.Equal(baseWeight),
	}, nil
}
