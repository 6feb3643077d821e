package domain

import "github.com/shopspring/decimal"

// OrderResult what the order executor reports for one order.
type OrderResult struct {
	OrderID        string          `json:"order_id,omitempty"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	AveragePrice   decimal.Decimal `json:"average_price"`
	Success        bool            `json:"success"`
	ErrorDetail    string          `json:"error_detail,omitempty"`
}

// RungStatus final state of one rung.
type RungStatus string

const (
	RungFilled       RungStatus = "filled"
	RungFailed       RungStatus = "failed"
	RungNotAttempted RungStatus = "not_attempted"
)

// RungOutcome what happened to one order of the plan.
type RungOutcome struct {
	Order         Order        `json:"order"`
	ClientOrderID string       `json:"client_order_id,omitempty"`
	Status        RungStatus   `json:"status"`
	Result        *OrderResult `json:"result,omitempty"`
}

// ExecutionFailure a rung that failed. Failed rungs are never retried.
type ExecutionFailure struct {
	Asset  string `json:"asset"`
	Rung   int    `json:"rung"`
	Reason string `json:"reason"`
}

// Checkpoint how far execution proceeded, for manual follow-up.
type Checkpoint struct {
	// NextOrder index into the plan of the first order not dispatched.
	NextOrder int `json:"next_order"`
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// ExecutionOutcome full record of dispatching a plan.
type ExecutionOutcome struct {
	Rungs       []RungOutcome      `json:"rungs"`
	Failures    []ExecutionFailure `json:"failures,omitempty"`
	Checkpoint  Checkpoint         `json:"checkpoint"`
	Aborted     bool               `json:"aborted"`
	AbortReason string             `json:"abort_reason,omitempty"`
	Cancelled   bool               `json:"cancelled,omitempty"`
}

// Count returns how many rungs ended with status.
func (o ExecutionOutcome) Count(status RungStatus) int {
	n := 0
	for _, r := range o.Rungs {
		if r.Status == status {
			n++
		}
	}
	return n
}

// Complete reports whether every rung filled.
func (o ExecutionOutcome) Complete() bool {
	return o.Count(RungFilled) == len(o.Rungs)
}
