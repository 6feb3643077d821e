// Package drift compares a holdings snapshot against target weights.
package drift

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Config cost-estimation and adaptive-weight parameters.
type Config struct {
	Adaptive AdaptivePolicy
	// FeeRate fraction of traded value paid in fees, e.g. 0.001.
	FeeRate decimal.Decimal
	// SlippageBuffer flat amount in the quote currency added to the estimate.
	SlippageBuffer decimal.Decimal
}

// Simulator computes drift. It performs no I/O and never mutates its inputs.
type Simulator struct {
	cfg Config
}

// NewSimulator validates cfg and returns a Simulator.
func NewSimulator(cfg Config) (*Simulator, error) {
	if cfg.FeeRate.IsNegative() {
		return nil, domain.NewConfigError("fee_rate", "must not be negative, got %s", cfg.FeeRate.String())
	}
	if cfg.SlippageBuffer.IsNegative() {
		return nil, domain.NewConfigError("slippage_buffer", "must not be negative, got %s", cfg.SlippageBuffer.String())
	}
	return &Simulator{cfg: cfg}, nil
}

// AdaptiveAsset returns the asset re-weighted by volatility, if any.
func (s *Simulator) AdaptiveAsset() string {
	return s.cfg.Adaptive.Asset
}

// Simulate returns the drift of every asset in the union of snapshot and
// target assets. volatility is only consulted when an adaptive asset is
// configured. An asset missing from the snapshot has a current weight of
// zero; an asset missing from the target has a target of zero.
func (s *Simulator) Simulate(snapshot domain.HoldingsSnapshot, target domain.TargetAllocation, volatility decimal.Decimal) (domain.DriftResult, error) {
	effective, err := AdjustTarget(target, s.cfg.Adaptive, volatility)
	if err != nil {
		return domain.DriftResult{}, err
	}

	total := snapshot.TotalValue()
	quote := snapshot.QuoteAsset()
	assets := unionAssets(snapshot.Assets(), target.Assets())

	result := domain.DriftResult{
		QuoteAsset:      quote,
		TotalValue:      total,
		DriftPct:        make(map[string]decimal.Decimal, len(assets)),
		Assets:          make([]domain.AssetDrift, 0, len(assets)),
		EffectiveTarget: effective,
	}

	traded := decimal.Zero
	for _, asset := range assets {
		price, priced := snapshot.Price(asset)
		value := snapshot.Value(asset)
		targetFrac := effective.Weight(asset)

		currentFrac := decimal.Zero
		if total.IsPositive() {
			currentFrac = value.Div(total)
		}

		d := domain.AssetDrift{
			Asset:        asset,
			Price:        price,
			Quantity:     snapshot.Balance(asset),
			CurrentValue: value,
			CurrentPct:   currentFrac.Mul(hundred),
			TargetPct:    targetFrac.Mul(hundred),
			DriftPct:     currentFrac.Sub(targetFrac).Mul(hundred),
			DriftValue:   value.Sub(targetFrac.Mul(total)),
			Priced:       priced,
		}

		result.DriftPct[asset] = d.DriftPct
		result.Assets = append(result.Assets, d)

		if asset != quote {
			traded = traded.Add(d.DriftValue.Abs())
		}
	}

	result.EstimatedCost = s.cfg.FeeRate.Mul(traded).Add(s.cfg.SlippageBuffer)

	return result, nil
}

func unionAssets(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, asset := range list {
			if _, ok := seen[asset]; ok {
				continue
			}
			seen[asset] = struct{}{}
			out = append(out, asset)
		}
	}
	sort.Strings(out)
	return out
}
