package planner

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

const defaultOrderTimeout = 30 * time.Second

// OrderExecutor places a single order.
//
// A returned error or a result with Success false marks the rung failed.
// Implementations must not retry.
type OrderExecutor interface {
	PlaceOrder(ctx context.Context, order domain.Order, clientOrderID string) (domain.OrderResult, error)
}

// HealthGuard is consulted before every rung after the first; an error
// aborts the remaining plan.
type HealthGuard func(ctx context.Context) error

// DispatchConfig dispatch parameters.
type DispatchConfig struct {
	FailureScope domain.FailureScope
	OrderTimeout time.Duration
}

// Dispatcher sends plan orders one at a time. It can only be built around
// an OrderExecutor, so code holding no Dispatcher cannot place orders.
type Dispatcher struct {
	executor OrderExecutor
	cfg      DispatchConfig
	guard    HealthGuard
	logger   *zap.Logger
}

func NewDispatcher(executor OrderExecutor, cfg DispatchConfig, guard HealthGuard, logger *zap.Logger) (*Dispatcher, error) {
	if executor == nil {
		return nil, errors.New("order executor is required")
	}
	if cfg.FailureScope == "" {
		cfg.FailureScope = domain.FailureScopeRun
	}
	if !cfg.FailureScope.IsValid() {
		return nil, domain.NewConfigError("ladder.failure_scope", "unknown scope %q", cfg.FailureScope)
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = defaultOrderTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		executor: executor,
		cfg:      cfg,
		guard:    guard,
		logger:   logger.With(zap.String("component", "dispatcher")),
	}, nil
}

// Execute dispatches the plan sequentially and records every rung.
//
// A failed rung is never retried. With FailureScopeRun it stops every
// remaining order; with FailureScopeAsset only the rest of that asset's
// ladder. Rungs that already filled stand. Cancelling ctx lets the
// in-flight rung finish and stops before the next one.
func (d *Dispatcher) Execute(ctx context.Context, runID string, plan domain.ExecutionPlan) domain.ExecutionOutcome {
	outcome := domain.ExecutionOutcome{
		Rungs:      make([]domain.RungOutcome, len(plan.Orders)),
		Checkpoint: domain.Checkpoint{Total: len(plan.Orders)},
	}
	for i, o := range plan.Orders {
		outcome.Rungs[i] = domain.RungOutcome{
			Order:         o,
			ClientOrderID: domain.ClientOrderID(runID, o),
			Status:        domain.RungNotAttempted,
		}
	}

	stoppedAssets := make(map[string]bool)
	next := len(plan.Orders)

	for i := range outcome.Rungs {
		rung := &outcome.Rungs[i]

		if err := ctx.Err(); err != nil {
			outcome.Cancelled = true
			outcome.AbortReason = "cancelled: " + err.Error()
			next = i
			d.logger.Warn("execution cancelled", zap.Int("next_order", i))
			break
		}
		if stoppedAssets[rung.Order.Asset] {
			continue
		}

		if d.guard != nil && i > 0 {
			if err := d.guard(ctx); err != nil {
				outcome.Aborted = true
				outcome.AbortReason = "health guard: " + err.Error()
				next = i
				d.logger.Warn("execution aborted by health guard", zap.Error(err), zap.Int("next_order", i))
				break
			}
		}

		result, err := d.place(ctx, rung.Order, rung.ClientOrderID)
		if err != nil || !result.Success {
			reason := result.ErrorDetail
			if err != nil {
				reason = err.Error()
			}
			if reason == "" {
				reason = "order rejected"
			}
			rung.Status = domain.RungFailed
			if err == nil {
				rung.Result = &result
			}
			outcome.Failures = append(outcome.Failures, domain.ExecutionFailure{
				Asset:  rung.Order.Asset,
				Rung:   rung.Order.Rung,
				Reason: reason,
			})
			d.logger.Error("rung failed",
				zap.String("order", rung.Order.String()),
				zap.String("client_order_id", rung.ClientOrderID),
				zap.String("reason", reason),
			)

			if d.cfg.FailureScope == domain.FailureScopeRun {
				outcome.Aborted = true
				outcome.AbortReason = "rung failed: " + reason
				next = i + 1
				break
			}
			stoppedAssets[rung.Order.Asset] = true
			continue
		}

		rung.Status = domain.RungFilled
		rung.Result = &result
		d.logger.Info("rung filled",
			zap.String("order", rung.Order.String()),
			zap.String("client_order_id", rung.ClientOrderID),
			zap.String("filled", result.FilledQuantity.String()),
			zap.String("avg_price", result.AveragePrice.String()),
		)
	}

	outcome.Checkpoint.NextOrder = next
	outcome.Checkpoint.Completed = outcome.Count(domain.RungFilled)

	return outcome
}

// place waits for the order outcome even when ctx is cancelled: an order
// already sent may still fill. Only OrderTimeout cuts the wait short.
func (d *Dispatcher) place(ctx context.Context, order domain.Order, clientOrderID string) (domain.OrderResult, error) {
	octx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.OrderTimeout)
	defer cancel()

	type placed struct {
		res domain.OrderResult
		err error
	}
	done := make(chan placed, 1)
	go func() {
		res, err := d.executor.PlaceOrder(octx, order, clientOrderID)
		done <- placed{res: res, err: err}
	}()

	select {
	case p := <-done:
		return p.res, p.err
	case <-octx.Done():
		return domain.OrderResult{}, errors.Wrap(octx.Err(), "order timed out")
	}
}
