package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Side direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// String returns the string representation.
func (s Side) String() string {
	return string(s)
}

// IsValid checks if the Side value is valid.
func (s Side) IsValid() bool {
	return s == SideBuy || s == SideSell
}

// LadderPolicy how a required quantity is split across rungs.
type LadderPolicy string

const (
	// LadderEven splits the quantity into equal rungs.
	LadderEven LadderPolicy = "even"
	// LadderFrontLoaded gives the first rung the largest share, later rungs
	// shrink geometrically.
	LadderFrontLoaded LadderPolicy = "front_loaded"
)

// IsValid checks if the LadderPolicy value is valid.
func (p LadderPolicy) IsValid() bool {
	return p == LadderEven || p == LadderFrontLoaded
}

// FailureScope how far a failed rung stops execution.
type FailureScope string

const (
	// FailureScopeRun a failed rung stops every remaining order of the run.
	FailureScopeRun FailureScope = "run"
	// FailureScopeAsset a failed rung stops only the remaining rungs of its asset.
	FailureScopeAsset FailureScope = "asset"
)

// IsValid checks if the FailureScope value is valid.
func (f FailureScope) IsValid() bool {
	return f == FailureScopeRun || f == FailureScopeAsset
}

// Order one rung of a laddered rebalance.
type Order struct {
	Asset    string          `json:"asset"`
	Side     Side            `json:"side"`
	Quantity decimal.Decimal `json:"quantity"`
	// Price reference price the quantity was sized at.
	Price decimal.Decimal `json:"price"`
	Rung  int             `json:"rung"`
	Rungs int             `json:"rungs"`
}

// String returns a short human-readable form.
func (o Order) String() string {
	return fmt.Sprintf("%s %s %s (rung %d/%d)", o.Side, o.Quantity.String(), o.Asset, o.Rung+1, o.Rungs)
}

// Notional returns quantity x reference price.
func (o Order) Notional() decimal.Decimal {
	return o.Quantity.Mul(o.Price)
}

// PlanSkip an asset that drifted past the band but could not be planned.
type PlanSkip struct {
	Asset  string `json:"asset"`
	Reason string `json:"reason"`
}

// ExecutionPlan ordered rungs that close the drift.
type ExecutionPlan struct {
	QuoteAsset string       `json:"quote_asset"`
	Policy     LadderPolicy `json:"policy"`
	Orders     []Order      `json:"orders"`
	Skipped    []PlanSkip   `json:"skipped,omitempty"`
}

// IsEmpty reports whether the plan has no orders.
func (p ExecutionPlan) IsEmpty() bool {
	return len(p.Orders) == 0
}

// OrdersFor returns the rungs of asset in dispatch order.
func (p ExecutionPlan) OrdersFor(asset string) []Order {
	var orders []Order
	for _, o := range p.Orders {
		if o.Asset == asset {
			orders = append(orders, o)
		}
	}
	return orders
}

// TotalQuantity returns Σ rung quantities of asset.
func (p ExecutionPlan) TotalQuantity(asset string) decimal.Decimal {
	total := decimal.Zero
	for _, o := range p.OrdersFor(asset) {
		total = total.Add(o.Quantity)
	}
	return total
}

// clientOrderIDRunPrefix keeps client order IDs within exchange length limits.
const clientOrderIDRunPrefix = 8

// ClientOrderID returns the idempotency key of o within run runID:
// <run>-<asset>-<rung>, with the run ID shortened and rungs counted from 1.
func ClientOrderID(runID string, o Order) string {
	run := strings.ReplaceAll(runID, "-", "")
	if len(run) > clientOrderIDRunPrefix {
		run = run[:clientOrderIDRunPrefix]
	}
	return fmt.Sprintf("%s-%s-%d", run, o.Asset, o.Rung+1)
}
