package internal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

// ErrDeclined the operator declined the plan at the confirmation prompt.
var ErrDeclined = errors.New("execution declined")

type snapshotAggregator interface {
	Aggregate(ctx context.Context) (domain.HoldingsSnapshot, error)
}

type volatilitySignal interface {
	Volatility(ctx context.Context, asset string) (decimal.Decimal, error)
}

type driftSimulator interface {
	AdaptiveAsset() string
	Simulate(snapshot domain.HoldingsSnapshot, target domain.TargetAllocation, volatility decimal.Decimal) (domain.DriftResult, error)
}

type preflightChecker interface {
	Check(ctx context.Context, snapshot domain.HoldingsSnapshot, target domain.TargetAllocation) (domain.PreflightReport, error)
}

type orderPlanner interface {
	Plan(drift domain.DriftResult) domain.ExecutionPlan
}

type planDispatcher interface {
	Execute(ctx context.Context, runID string, plan domain.ExecutionPlan) domain.ExecutionOutcome
}

type runLog interface {
	Save(record domain.RunRecord) error
}

// SnapshotObserver is told about the snapshot a run starts from.
type SnapshotObserver interface {
	ObserveSnapshot(snapshot domain.HoldingsSnapshot)
}

// Confirmer approves a plan before any order is sent.
type Confirmer func(ctx context.Context, drift domain.DriftResult, plan domain.ExecutionPlan) (bool, error)

// Components collaborators shared by both run modes. Volatility may be nil
// when no adaptive asset is configured.
type Components struct {
	Aggregator snapshotAggregator
	Volatility volatilitySignal
	Simulator  driftSimulator
	Preflight  preflightChecker
	Planner    orderPlanner
	RunLog     runLog
	Logger     *zap.Logger
}

// Option configures a Rebalancer.
type Option func(*Rebalancer)

// WithConfirmer asks confirm before dispatching a non-empty plan.
func WithConfirmer(confirm Confirmer) Option {
	return func(r *Rebalancer) {
		r.confirm = confirm
	}
}

// WithSnapshotObserver registers o to see every aggregated snapshot.
func WithSnapshotObserver(o SnapshotObserver) Option {
	return func(r *Rebalancer) {
		r.observers = append(r.observers, o)
	}
}

// Rebalancer runs one rebalance pass: aggregate, simulate, check, plan and,
// in execute mode only, dispatch.
type Rebalancer struct {
	mode       domain.Mode
	target     domain.TargetAllocation
	c          Components
	dispatcher planDispatcher
	confirm    Confirmer
	observers  []SnapshotObserver
	logger     *zap.Logger

	newRunID func() string
	now      func() time.Time
}

// NewSimulation builds a rebalancer that never places orders; it holds no
// dispatcher.
func NewSimulation(target domain.TargetAllocation, c Components, opts ...Option) (*Rebalancer, error) {
	return newRebalancer(domain.ModeSimulate, target, c, nil, opts)
}

// NewExecution builds a rebalancer that dispatches plans through d.
func NewExecution(target domain.TargetAllocation, c Components, d planDispatcher, opts ...Option) (*Rebalancer, error) {
	if d == nil {
		return nil, errors.New("execute mode requires an order dispatcher")
	}
	return newRebalancer(domain.ModeExecute, target, c, d, opts)
}

func newRebalancer(mode domain.Mode, target domain.TargetAllocation, c Components, d planDispatcher, opts []Option) (*Rebalancer, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if c.Aggregator == nil || c.Simulator == nil || c.Preflight == nil || c.Planner == nil || c.RunLog == nil {
		return nil, errors.New("aggregator, simulator, preflight, planner and run log are required")
	}
	if c.Simulator.AdaptiveAsset() != "" && c.Volatility == nil {
		return nil, errors.New("adaptive asset configured without a volatility signal")
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}

	r := &Rebalancer{
		mode:       mode,
		target:     target,
		c:          c,
		dispatcher: d,
		logger:     c.Logger.With(zap.String("mode", mode.String())),
		newRunID:   uuid.NewString,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Mode returns the run mode.
func (r *Rebalancer) Mode() domain.Mode {
	return r.mode
}

// Run performs one rebalance pass and always appends a run record to the
// log. A failing preflight is reported in the record, not as an error.
func (r *Rebalancer) Run(ctx context.Context) (domain.RunRecord, error) {
	record := domain.RunRecord{
		RunID:     r.newRunID(),
		Mode:      r.mode,
		StartedAt: r.now().UTC(),
	}
	logger := r.logger.With(zap.String("run_id", record.RunID))
	logger.Info("rebalance run started")

	runErr := r.run(ctx, &record, logger)
	if runErr != nil {
		record.Error = runErr.Error()
		logger.Error("rebalance run failed", zap.Error(runErr))
	}
	record.FinishedAt = r.now().UTC()

	if err := r.c.RunLog.Save(record); err != nil {
		logger.Error("failed to write run record", zap.Error(err))
		if runErr == nil {
			runErr = errors.Wrap(err, "write run record")
		}
	}

	return record, runErr
}

func (r *Rebalancer) run(ctx context.Context, record *domain.RunRecord, logger *zap.Logger) error {
	snapshot, err := r.c.Aggregator.Aggregate(ctx)
	if err != nil {
		return errors.Wrap(err, "aggregate holdings")
	}
	record.Snapshot = &snapshot
	for _, o := range r.observers {
		o.ObserveSnapshot(snapshot)
	}
	logger.Info("holdings aggregated",
		zap.String("total_value", snapshot.TotalValue().StringFixed(2)),
		zap.Int("gaps", len(snapshot.Gaps())))

	volatility := decimal.Zero
	if asset := r.c.Simulator.AdaptiveAsset(); asset != "" {
		volatility, err = r.c.Volatility.Volatility(ctx, asset)
		if err != nil {
			return domain.NewInfrastructureError("volatility signal", err)
		}
		logger.Info("volatility signal", zap.String("asset", asset), zap.String("value", volatility.String()))
	}

	drift, err := r.c.Simulator.Simulate(snapshot, r.target, volatility)
	if err != nil {
		return errors.Wrap(err, "simulate drift")
	}
	record.Drift = &drift

	report, err := r.c.Preflight.Check(ctx, snapshot, r.target)
	if err != nil {
		return errors.Wrap(err, "preflight")
	}
	record.Preflight = &report
	if !report.OverallPass {
		logger.Warn("preflight failed", zap.String("checks", report.FailedNames()))
		return nil
	}

	plan := r.c.Planner.Plan(drift)
	record.Plan = &plan
	logger.Info("plan built",
		zap.Int("orders", len(plan.Orders)),
		zap.Int("skipped", len(plan.Skipped)))

	if r.dispatcher == nil || plan.IsEmpty() {
		return nil
	}

	if r.confirm != nil {
		ok, err := r.confirm(ctx, drift, plan)
		if err != nil {
			return errors.Wrap(err, "confirm plan")
		}
		if !ok {
			return ErrDeclined
		}
	}

	outcome := r.dispatcher.Execute(ctx, record.RunID, plan)
	record.Outcome = &outcome
	logger.Info("plan executed",
		zap.Int("filled", outcome.Count(domain.RungFilled)),
		zap.Int("failed", outcome.Count(domain.RungFailed)),
		zap.Int("not_attempted", outcome.Count(domain.RungNotAttempted)),
		zap.Bool("aborted", outcome.Aborted))

	return nil
}
