// Package planner turns drift into laddered orders and dispatches them.
package planner

import (
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

// Config ladder parameters.
type Config struct {
	// ToleranceBandPct drift in percentage points an asset may have before
	// it is traded.
	ToleranceBandPct decimal.Decimal
	Rungs            int
	Policy           domain.LadderPolicy
	// Ratio size of each front-loaded rung relative to the previous one.
	Ratio             decimal.Decimal
	QuantityPrecision int32
}

// Planner builds execution plans. Plan performs no I/O.
type Planner struct {
	cfg    Config
	logger *zap.Logger
}

func NewPlanner(cfg Config, logger *zap.Logger) (*Planner, error) {
	if cfg.ToleranceBandPct.IsNegative() {
		return nil, domain.NewConfigError("tolerance_band_pct", "must not be negative")
	}
	if cfg.Rungs < 1 {
		return nil, domain.NewConfigError("ladder.rungs", "must be at least 1, got %d", cfg.Rungs)
	}
	if !cfg.Policy.IsValid() {
		return nil, domain.NewConfigError("ladder.policy", "unknown policy %q", cfg.Policy)
	}
	if cfg.Policy == domain.LadderFrontLoaded && (!cfg.Ratio.IsPositive() || cfg.Ratio.GreaterThan(decimal.NewFromInt(1))) {
		return nil, domain.NewConfigError("ladder.ratio", "must be in (0, 1], got %s", cfg.Ratio.String())
	}
	if cfg.QuantityPrecision < 0 {
		return nil, domain.NewConfigError("ladder.quantity_precision", "must not be negative")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{cfg: cfg, logger: logger.With(zap.String("component", "planner"))}, nil
}

// Plan returns the orders that close every drift outside the tolerance
// band. Sells come before buys so the quote asset is raised before it is
// spent; within a side assets are in alphabetical order. The quote asset is
// never ordered.
func (p *Planner) Plan(drift domain.DriftResult) domain.ExecutionPlan {
	plan := domain.ExecutionPlan{
		QuoteAsset: drift.QuoteAsset,
		Policy:     p.cfg.Policy,
		Orders:     []domain.Order{},
	}

	var sells, buys []domain.Order
	for _, a := range drift.Assets {
		if !a.DriftPct.Abs().GreaterThan(p.cfg.ToleranceBandPct) {
			continue
		}
		if a.Asset == drift.QuoteAsset {
			continue
		}
		if !a.Priced || !a.Price.IsPositive() {
			plan.Skipped = append(plan.Skipped, domain.PlanSkip{Asset: a.Asset, Reason: "no price"})
			continue
		}

		side := domain.SideBuy
		if a.DriftValue.IsPositive() {
			side = domain.SideSell
		}

		qty := a.DriftValue.Abs().Div(a.Price)
		if side == domain.SideSell && qty.GreaterThan(a.Quantity) {
			qty = a.Quantity
		}

		rungs := p.split(qty)
		if len(rungs) == 0 {
			plan.Skipped = append(plan.Skipped, domain.PlanSkip{Asset: a.Asset, Reason: "quantity below precision"})
			continue
		}

		orders := make([]domain.Order, 0, len(rungs))
		for i, q := range rungs {
			orders = append(orders, domain.Order{
				Asset:    a.Asset,
				Side:     side,
				Quantity: q,
				Price:    a.Price,
				Rung:     i,
				Rungs:    len(rungs),
			})
		}

		if side == domain.SideSell {
			sells = append(sells, orders...)
		} else {
			buys = append(buys, orders...)
		}
	}

	sortOrders(sells)
	sortOrders(buys)
	plan.Orders = append(append(plan.Orders, sells...), buys...)

	p.logger.Info("plan built",
		zap.Int("orders", len(plan.Orders)),
		zap.Int("skipped", len(plan.Skipped)),
		zap.String("tolerance_pct", p.cfg.ToleranceBandPct.String()),
	)

	return plan
}

func sortOrders(orders []domain.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].Asset != orders[j].Asset {
			return orders[i].Asset < orders[j].Asset
		}
		return orders[i].Rung < orders[j].Rung
	})
}

// split divides qty into rung quantities rounded down to the configured
// precision. The first rung takes the rounding remainder, so rungs never
// grow along the ladder and sum to qty rounded down to precision. Rungs
// that round to zero are dropped.
func (p *Planner) split(qty decimal.Decimal) []decimal.Decimal {
	total := qty.RoundFloor(p.cfg.QuantityPrecision)
	if !total.IsPositive() {
		return nil
	}

	weights, sum := p.weights()
	parts := make([]decimal.Decimal, len(weights))
	rest := decimal.Zero
	for i := 1; i < len(weights); i++ {
		parts[i] = total.Mul(weights[i]).Div(sum).RoundFloor(p.cfg.QuantityPrecision)
		rest = rest.Add(parts[i])
	}
	parts[0] = total.Sub(rest)

	out := make([]decimal.Decimal, 0, len(parts))
	for _, q := range parts {
		if q.IsPositive() {
			out = append(out, q)
		}
	}
	return out
}

// weights returns the relative size of each rung and their sum.
func (p *Planner) weights() ([]decimal.Decimal, decimal.Decimal) {
	weights := make([]decimal.Decimal, p.cfg.Rungs)
	sum := decimal.Zero
	w := decimal.NewFromInt(1)
	for i := range weights {
		weights[i] = w
		sum = sum.Add(w)
		if p.cfg.Policy == domain.LadderFrontLoaded {
			w = w.Mul(p.cfg.Ratio)
		}
	}
	return weights, sum
}
