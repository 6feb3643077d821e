package planner

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/sovereign/internal/domain"
	executorMock "github.com/vadiminshakov/sovereign/mocks/executor"
)

const runID = "3f2a9c1e-5b7d-4e0f-8a6b-1c2d3e4f5a6b"

func ladder(asset string, side domain.Side, quantities ...string) []domain.Order {
	orders := make([]domain.Order, len(quantities))
	for i, q := range quantities {
		orders[i] = domain.Order{Asset: asset, Side: side, Quantity: dec(q), Price: dec("40000"), Rung: i, Rungs: len(quantities)}
	}
	return orders
}

func filled(qty string) domain.OrderResult {
	return domain.OrderResult{OrderID: "ord", FilledQuantity: dec(qty), AveragePrice: dec("40000"), Success: true}
}

func rungMatcher(asset string, rung int) interface{} {
	return mock.MatchedBy(func(o domain.Order) bool { return o.Asset == asset && o.Rung == rung })
}

func TestExecute_PartialFailure(t *testing.T) {
	exec := executorMock.NewOrderExecutor(t)
	exec.On("PlaceOrder", mock.Anything, rungMatcher("BTC", 0), "3f2a9c1e-BTC-1").Return(filled("0.01"), nil).Once()
	exec.On("PlaceOrder", mock.Anything, rungMatcher("BTC", 1), "3f2a9c1e-BTC-2").Return(domain.OrderResult{}, errors.New("insufficient balance")).Once()

	d, err := NewDispatcher(exec, DispatchConfig{}, nil, nil)
	require.NoError(t, err)

	plan := domain.ExecutionPlan{Orders: ladder("BTC", domain.SideBuy, "0.01", "0.01", "0.01")}
	outcome := d.Execute(context.Background(), runID, plan)

	require.Len(t, outcome.Rungs, 3)
	assert.Equal(t, domain.RungFilled, outcome.Rungs[0].Status)
	assert.Equal(t, domain.RungFailed, outcome.Rungs[1].Status)
	assert.Equal(t, domain.RungNotAttempted, outcome.Rungs[2].Status)

	require.Len(t, outcome.Failures, 1)
	assert.Equal(t, 1, outcome.Failures[0].Rung)
	assert.Contains(t, outcome.Failures[0].Reason, "insufficient balance")

	assert.Equal(t, 2, outcome.Checkpoint.NextOrder)
	assert.Equal(t, 1, outcome.Checkpoint.Completed)
	assert.Equal(t, 3, outcome.Checkpoint.Total)
	assert.True(t, outcome.Aborted)
	exec.AssertNumberOfCalls(t, "PlaceOrder", 2)
}

func TestExecute_AssetScopeContinuesOtherAssets(t *testing.T) {
	exec := executorMock.NewOrderExecutor(t)
	exec.On("PlaceOrder", mock.Anything, rungMatcher("ETH", 0), mock.Anything).
		Return(domain.OrderResult{Success: false, ErrorDetail: "rejected: lot size"}, nil).Once()
	exec.On("PlaceOrder", mock.Anything, rungMatcher("BTC", 0), mock.Anything).Return(filled("0.01"), nil).Once()
	exec.On("PlaceOrder", mock.Anything, rungMatcher("BTC", 1), mock.Anything).Return(filled("0.01"), nil).Once()

	d, err := NewDispatcher(exec, DispatchConfig{FailureScope: domain.FailureScopeAsset}, nil, nil)
	require.NoError(t, err)

	orders := append(ladder("ETH", domain.SideSell, "0.1", "0.1"), ladder("BTC", domain.SideBuy, "0.01", "0.01")...)
	outcome := d.Execute(context.Background(), runID, domain.ExecutionPlan{Orders: orders})

	assert.Equal(t, domain.RungFailed, outcome.Rungs[0].Status)
	assert.Equal(t, domain.RungNotAttempted, outcome.Rungs[1].Status)
	assert.Equal(t, domain.RungFilled, outcome.Rungs[2].Status)
	assert.Equal(t, domain.RungFilled, outcome.Rungs[3].Status)
	assert.False(t, outcome.Aborted)
	assert.Equal(t, "rejected: lot size", outcome.Failures[0].Reason)
	assert.Equal(t, 2, outcome.Checkpoint.Completed)
}

func TestExecute_HealthGuardAborts(t *testing.T) {
	exec := executorMock.NewOrderExecutor(t)
	exec.On("PlaceOrder", mock.Anything, rungMatcher("BTC", 0), mock.Anything).Return(filled("0.01"), nil).Once()

	calls := 0
	guard := func(context.Context) error {
		calls++
		return errors.New("health factor 1.1 below 1.5")
	}

	d, err := NewDispatcher(exec, DispatchConfig{}, guard, nil)
	require.NoError(t, err)

	outcome := d.Execute(context.Background(), runID, domain.ExecutionPlan{Orders: ladder("BTC", domain.SideBuy, "0.01", "0.01")})
	assert.True(t, outcome.Aborted)
	assert.Contains(t, outcome.AbortReason, "health guard")
	assert.Equal(t, domain.RungNotAttempted, outcome.Rungs[1].Status)
	assert.Equal(t, 1, outcome.Checkpoint.NextOrder)
	assert.Equal(t, 1, calls)
}

func TestExecute_CancelledContext(t *testing.T) {
	exec := executorMock.NewOrderExecutor(t)

	d, err := NewDispatcher(exec, DispatchConfig{}, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := d.Execute(ctx, runID, domain.ExecutionPlan{Orders: ladder("BTC", domain.SideBuy, "0.01")})
	assert.True(t, outcome.Cancelled)
	assert.Equal(t, domain.RungNotAttempted, outcome.Rungs[0].Status)
	assert.Equal(t, 0, outcome.Checkpoint.NextOrder)
	exec.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecute_CancelWaitsForInFlightRung(t *testing.T) {
	exec := executorMock.NewOrderExecutor(t)
	exec.On("PlaceOrder", mock.Anything, rungMatcher("BTC", 0), mock.Anything).
		Run(func(mock.Arguments) { time.Sleep(200 * time.Millisecond) }).
		Return(filled("0.01"), nil).Once()

	d, err := NewDispatcher(exec, DispatchConfig{OrderTimeout: 2 * time.Second}, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	outcome := d.Execute(ctx, runID, domain.ExecutionPlan{Orders: ladder("BTC", domain.SideBuy, "0.01", "0.01")})
	assert.Equal(t, domain.RungFilled, outcome.Rungs[0].Status)
	assert.Empty(t, outcome.Failures)
	assert.True(t, outcome.Cancelled)
	assert.Equal(t, domain.RungNotAttempted, outcome.Rungs[1].Status)
	assert.Equal(t, 1, outcome.Checkpoint.NextOrder)
	assert.Equal(t, 1, outcome.Checkpoint.Completed)
	exec.AssertNumberOfCalls(t, "PlaceOrder", 1)
}

func TestExecute_TimeoutIsRungFailure(t *testing.T) {
	exec := executorMock.NewOrderExecutor(t)
	exec.On("PlaceOrder", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { time.Sleep(300 * time.Millisecond) }).
		Return(filled("0.01"), nil).Once()

	d, err := NewDispatcher(exec, DispatchConfig{OrderTimeout: 20 * time.Millisecond}, nil, nil)
	require.NoError(t, err)

	outcome := d.Execute(context.Background(), runID, domain.ExecutionPlan{Orders: ladder("BTC", domain.SideBuy, "0.01", "0.01")})
	assert.Equal(t, domain.RungFailed, outcome.Rungs[0].Status)
	assert.Contains(t, outcome.Failures[0].Reason, "timed out")
	assert.Equal(t, domain.RungNotAttempted, outcome.Rungs[1].Status)

	// let the abandoned call finish before mock expectations are asserted
	time.Sleep(400 * time.Millisecond)
}

func TestExecute_EmptyPlan(t *testing.T) {
	d, err := NewDispatcher(executorMock.NewOrderExecutor(t), DispatchConfig{}, nil, nil)
	require.NoError(t, err)

	outcome := d.Execute(context.Background(), runID, domain.ExecutionPlan{})
	assert.Empty(t, outcome.Rungs)
	assert.True(t, outcome.Complete())
	assert.Equal(t, 0, outcome.Checkpoint.NextOrder)
}

func TestNewDispatcher_RequiresExecutor(t *testing.T) {
	_, err := NewDispatcher(nil, DispatchConfig{}, nil, nil)
	require.Error(t, err)
}
