package preflight

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

type fakeEndpoint struct {
	name string
	up   bool
}

func (f fakeEndpoint) Name() string                     { return f.name }
func (f fakeEndpoint) IsReachable(context.Context) bool { return f.up }

type fakeHealth struct {
	hf    *decimal.Decimal
	err   error
	calls int
}

func (f *fakeHealth) HealthFactor(context.Context) (*decimal.Decimal, error) {
	f.calls++
	return f.hf, f.err
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

func snapshotWith(t *testing.T, lending bool) domain.HoldingsSnapshot {
	t.Helper()
	breakdown := map[string][]domain.SourceEntry{
		"BTC": {{Source: "binance", Kind: domain.SourceKindExchange, Quantity: dec("0.1")}},
		"ETH": {{Source: "binance", Kind: domain.SourceKindExchange, Quantity: dec("1")}},
	}
	balances := map[string]decimal.Decimal{"BTC": dec("0.1"), "ETH": dec("1")}
	if lending {
		breakdown["ETH"] = append(breakdown["ETH"], domain.SourceEntry{Source: "aave", Kind: domain.SourceKindLending, Quantity: dec("2")})
		balances["ETH"] = dec("3")
	}
	snap, err := domain.NewHoldingsSnapshot(time.Unix(0, 0), "USDT", balances,
		map[string]decimal.Decimal{"BTC": dec("40000"), "ETH": dec("2000")}, breakdown, nil)
	require.NoError(t, err)
	return snap
}

func validTarget() domain.TargetAllocation {
	return domain.NewTargetAllocation(map[string]decimal.Decimal{"BTC": dec("0.5"), "ETH": dec("0.5")})
}

func newTestChecker(cfg Config, endpoints []Endpoint, health HealthFactorSource) *Checker {
	c := NewChecker(cfg, endpoints, health, nil)
	c.lookupEnv = func(name string) (string, bool) {
		if name == "PRESENT" {
			return "secret", true
		}
		return "", false
	}
	c.stat = func(path string) (os.FileInfo, error) {
		if path == "present.key" {
			return nil, nil
		}
		return nil, os.ErrNotExist
	}
	return c
}

func TestCheck_AllPass(t *testing.T) {
	c := newTestChecker(Config{
		Mode:          domain.ModeExecute,
		RequiredEnv:   []string{"PRESENT"},
		RequiredFiles: []string{"present.key"},
	}, []Endpoint{fakeEndpoint{name: "binance", up: true}}, nil)

	report, err := c.Check(context.Background(), snapshotWith(t, false), validTarget())
	require.NoError(t, err)
	assert.True(t, report.OverallPass)

	names := make([]string, 0, len(report.Checks))
	for _, check := range report.Checks {
		names = append(names, check.Name)
	}
	assert.Equal(t, []string{
		CheckWeightsSum, CheckWeightsRange, CheckModeFlag, CheckCredentials,
		CheckRequiredFiles, CheckEndpointsReachable, CheckPortfolioValue, CheckHealthFactor,
	}, names)
}

func TestCheck_HealthFactorSkippedWithoutLending(t *testing.T) {
	health := &fakeHealth{hf: ptr(dec("0.5"))}
	c := newTestChecker(Config{Mode: domain.ModeSimulate, MinHealthFactor: dec("1.5")}, nil, health)

	report, err := c.Check(context.Background(), snapshotWith(t, false), validTarget())
	require.NoError(t, err)

	hf, ok := report.Check(CheckHealthFactor)
	require.True(t, ok)
	assert.True(t, hf.Skipped)
	assert.Contains(t, hf.Detail, "skipped")
	assert.True(t, report.OverallPass)
	assert.Zero(t, health.calls)
}

func TestCheck_HealthFactor(t *testing.T) {
	tests := []struct {
		name     string
		health   *fakeHealth
		wantPass bool
		wantSkip bool
	}{
		{name: "above minimum", health: &fakeHealth{hf: ptr(dec("2.1"))}, wantPass: true},
		{name: "below minimum", health: &fakeHealth{hf: ptr(dec("1.2"))}, wantPass: false},
		{name: "no position reported", health: &fakeHealth{}, wantPass: true, wantSkip: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestChecker(Config{Mode: domain.ModeExecute, MinHealthFactor: dec("1.5")}, nil, tt.health)

			report, err := c.Check(context.Background(), snapshotWith(t, true), validTarget())
			require.NoError(t, err)

			hf, _ := report.Check(CheckHealthFactor)
			assert.Equal(t, tt.wantPass, hf.Passed)
			assert.Equal(t, tt.wantSkip, hf.Skipped)
			assert.Equal(t, tt.wantPass, report.OverallPass)
		})
	}
}

func unreadLendingSnapshot(t *testing.T) domain.HoldingsSnapshot {
	t.Helper()
	snap, err := domain.NewHoldingsSnapshot(time.Unix(0, 0), "USDT",
		map[string]decimal.Decimal{"BTC": dec("0.1"), "ETH": dec("1")},
		map[string]decimal.Decimal{"BTC": dec("40000"), "ETH": dec("2000")},
		map[string][]domain.SourceEntry{
			"BTC": {{Source: "binance", Kind: domain.SourceKindExchange, Quantity: dec("0.1")}},
			"ETH": {
				{Source: "binance", Kind: domain.SourceKindExchange, Quantity: dec("1")},
				{Source: "aave", Kind: domain.SourceKindLending, Quantity: decimal.Zero, Unavailable: true},
			},
		},
		[]domain.SourceGap{{Source: "aave", Reason: "timeout"}})
	require.NoError(t, err)
	return snap
}

func TestCheck_HealthFactorWithUnreadLendingSource(t *testing.T) {
	tests := []struct {
		name     string
		health   HealthFactorSource
		wantPass bool
	}{
		{name: "below minimum", health: &fakeHealth{hf: ptr(dec("1.05"))}},
		{name: "above minimum", health: &fakeHealth{hf: ptr(dec("2"))}, wantPass: true},
		{name: "unreadable", health: &fakeHealth{err: errors.New("rpc down")}},
		{name: "no source", health: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestChecker(Config{Mode: domain.ModeExecute, MinHealthFactor: dec("1.5")}, nil, tt.health)

			report, err := c.Check(context.Background(), unreadLendingSnapshot(t), validTarget())
			require.NoError(t, err)

			hf, ok := report.Check(CheckHealthFactor)
			require.True(t, ok)
			assert.False(t, hf.Skipped)
			assert.Equal(t, tt.wantPass, hf.Passed, hf.Detail)
			assert.Equal(t, tt.wantPass, report.OverallPass)
		})
	}
}

func TestCheck_HealthSourceMalfunction(t *testing.T) {
	c := newTestChecker(Config{Mode: domain.ModeExecute, MinHealthFactor: dec("1.5")}, nil,
		&fakeHealth{err: errors.New("execution reverted")})

	_, err := c.Check(context.Background(), snapshotWith(t, true), validTarget())
	require.ErrorIs(t, err, domain.ErrInfrastructure)
}

func TestCheck_Failures(t *testing.T) {
	c := newTestChecker(Config{
		Mode:          domain.Mode("live"),
		RequiredEnv:   []string{"PRESENT", "MISSING_KEY"},
		RequiredFiles: []string{"absent.pem"},
	}, []Endpoint{fakeEndpoint{name: "bybit", up: false}, fakeEndpoint{name: "binance", up: true}}, nil)

	target := domain.NewTargetAllocation(map[string]decimal.Decimal{"BTC": dec("0.7"), "ETH": dec("0.5")})
	report, err := c.Check(context.Background(), snapshotWith(t, false), target)
	require.NoError(t, err)
	assert.False(t, report.OverallPass)

	for _, name := range []string{CheckWeightsSum, CheckModeFlag, CheckCredentials, CheckRequiredFiles, CheckEndpointsReachable} {
		check, ok := report.Check(name)
		require.True(t, ok, name)
		assert.False(t, check.Passed, name)
	}

	creds, _ := report.Check(CheckCredentials)
	assert.Contains(t, creds.Detail, "MISSING_KEY")
	assert.NotContains(t, creds.Detail, "secret")

	endpoints, _ := report.Check(CheckEndpointsReachable)
	assert.Contains(t, endpoints.Detail, "bybit")
	assert.NotContains(t, endpoints.Detail, "binance")

	weightsRange, _ := report.Check(CheckWeightsRange)
	assert.True(t, weightsRange.Passed)
}

func TestCheck_EmptyPortfolio(t *testing.T) {
	snap, err := domain.NewHoldingsSnapshot(time.Unix(0, 0), "USDT", nil, nil, nil, nil)
	require.NoError(t, err)

	c := newTestChecker(Config{Mode: domain.ModeSimulate}, nil, nil)
	report, err := c.Check(context.Background(), snap, validTarget())
	require.NoError(t, err)

	value, _ := report.Check(CheckPortfolioValue)
	assert.False(t, value.Passed)
	assert.False(t, report.OverallPass)
}
