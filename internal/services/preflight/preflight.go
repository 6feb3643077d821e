// Package preflight runs the safety checklist that gates order execution.
package preflight

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

// Check names, in report order.
const (
	CheckWeightsSum         = "target_weights_sum"
	CheckWeightsRange       = "target_weights_range"
	CheckModeFlag           = "mode_flag"
	CheckCredentials        = "credentials"
	CheckRequiredFiles      = "required_files"
	CheckEndpointsReachable = "endpoints_reachable"
	CheckPortfolioValue     = "portfolio_value"
	CheckHealthFactor       = "health_factor"
)

const defaultCallTimeout = 5 * time.Second

// Endpoint an external dependency that must answer before trading.
type Endpoint interface {
	Name() string
	IsReachable(ctx context.Context) bool
}

// HealthFactorSource reports the health factor of a lending position, or
// nil when there is no position to report on.
type HealthFactorSource interface {
	HealthFactor(ctx context.Context) (*decimal.Decimal, error)
}

// Config checklist parameters.
type Config struct {
	Mode            domain.Mode
	RequiredEnv     []string
	RequiredFiles   []string
	MinHealthFactor decimal.Decimal
	CallTimeout     time.Duration
}

// Checker evaluates the fixed checklist. Checks only read; nothing is
// mutated.
type Checker struct {
	cfg       Config
	endpoints []Endpoint
	health    HealthFactorSource
	logger    *zap.Logger

	lookupEnv func(string) (string, bool)
	stat      func(string) (os.FileInfo, error)
}

// NewChecker returns a Checker. health may be nil when no lending source is
// configured.
func NewChecker(cfg Config, endpoints []Endpoint, health HealthFactorSource, logger *zap.Logger) *Checker {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		cfg:       cfg,
		endpoints: endpoints,
		health:    health,
		logger:    logger.With(zap.String("component", "preflight")),
		lookupEnv: os.LookupEnv,
		stat:      os.Stat,
	}
}

// Check runs every check in order and returns the report. A failing report
// is returned with a nil error; an error means a collaborator malfunctioned
// and is always a *domain.InfrastructureError.
func (c *Checker) Check(ctx context.Context, snapshot domain.HoldingsSnapshot, target domain.TargetAllocation) (domain.PreflightReport, error) {
	checks := []domain.PreflightCheck{
		c.checkWeightsSum(target),
		c.checkWeightsRange(target),
		c.checkMode(),
		c.checkCredentials(),
		c.checkFiles(),
		c.checkEndpoints(ctx),
		c.checkPortfolioValue(snapshot),
	}

	hf, err := c.checkHealthFactor(ctx, snapshot)
	if err != nil {
		c.logger.Error("health factor source malfunction", zap.Error(err))
		return domain.PreflightReport{}, err
	}
	checks = append(checks, hf)

	report := domain.NewPreflightReport(checks)
	if report.OverallPass {
		c.logger.Info("preflight passed", zap.Int("checks", len(checks)))
	} else {
		c.logger.Warn("preflight failed", zap.String("failed", report.FailedNames()))
	}
	return report, nil
}

func passed(name, detail string) domain.PreflightCheck {
	return domain.PreflightCheck{Name: name, Passed: true, Detail: detail}
}

func failed(name, detail string) domain.PreflightCheck {
	return domain.PreflightCheck{Name: name, Passed: false, Detail: detail}
}

func skipped(name, reason string) domain.PreflightCheck {
	return domain.PreflightCheck{Name: name, Passed: true, Skipped: true, Detail: "skipped: " + reason}
}

func (c *Checker) checkWeightsSum(target domain.TargetAllocation) domain.PreflightCheck {
	sum := target.Sum()
	if !target.SumWithinTolerance() {
		return failed(CheckWeightsSum, fmt.Sprintf("weights sum to %s, outside 1.0 ± %s", sum.String(), domain.WeightSumTolerance.String()))
	}
	return passed(CheckWeightsSum, "weights sum to "+sum.String())
}

func (c *Checker) checkWeightsRange(target domain.TargetAllocation) domain.PreflightCheck {
	assets := target.Assets()
	if len(assets) == 0 {
		return failed(CheckWeightsRange, "no target weights")
	}
	one := decimal.NewFromInt(1)
	var bad []string
	for _, asset := range assets {
		w := target.Weight(asset)
		if !w.IsPositive() || w.GreaterThan(one) {
			bad = append(bad, asset+"="+w.String())
		}
	}
	if len(bad) > 0 {
		return failed(CheckWeightsRange, "weights outside (0, 1]: "+strings.Join(bad, ", "))
	}
	return passed(CheckWeightsRange, fmt.Sprintf("%d weights in (0, 1]", len(assets)))
}

func (c *Checker) checkMode() domain.PreflightCheck {
	if !c.cfg.Mode.IsValid() {
		return failed(CheckModeFlag, fmt.Sprintf("mode %q is not one of simulate, execute", c.cfg.Mode))
	}
	return passed(CheckModeFlag, "mode="+c.cfg.Mode.String())
}

// checkCredentials never reports values, only variable names.
func (c *Checker) checkCredentials() domain.PreflightCheck {
	if len(c.cfg.RequiredEnv) == 0 {
		return passed(CheckCredentials, "no credentials required")
	}
	var missing []string
	for _, name := range c.cfg.RequiredEnv {
		if v, ok := c.lookupEnv(name); !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return failed(CheckCredentials, "missing: "+strings.Join(missing, ", "))
	}
	return passed(CheckCredentials, fmt.Sprintf("%d variables present", len(c.cfg.RequiredEnv)))
}

func (c *Checker) checkFiles() domain.PreflightCheck {
	if len(c.cfg.RequiredFiles) == 0 {
		return passed(CheckRequiredFiles, "no files required")
	}
	var missing []string
	for _, path := range c.cfg.RequiredFiles {
		if _, err := c.stat(path); err != nil {
			missing = append(missing, path)
		}
	}
	if len(missing) > 0 {
		return failed(CheckRequiredFiles, "missing: "+strings.Join(missing, ", "))
	}
	return passed(CheckRequiredFiles, fmt.Sprintf("%d files present", len(c.cfg.RequiredFiles)))
}

func (c *Checker) checkEndpoints(ctx context.Context) domain.PreflightCheck {
	if len(c.endpoints) == 0 {
		return passed(CheckEndpointsReachable, "no endpoints to probe")
	}

	reachable := make([]bool, len(c.endpoints))
	done := make(chan struct{}, len(c.endpoints))
	for i, ep := range c.endpoints {
		go func() {
			defer func() { done <- struct{}{} }()
			pctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
			defer cancel()
			reachable[i] = ep.IsReachable(pctx)
		}()
	}
	timeout := time.After(c.cfg.CallTimeout + 100*time.Millisecond)
	for range c.endpoints {
		select {
		case <-done:
		case <-timeout:
			// endpoints still probing count as unreachable
			return failed(CheckEndpointsReachable, "probe timed out after "+c.cfg.CallTimeout.String())
		}
	}

	var down []string
	for i, ep := range c.endpoints {
		if !reachable[i] {
			down = append(down, ep.Name())
		}
	}
	if len(down) > 0 {
		return failed(CheckEndpointsReachable, "unreachable: "+strings.Join(down, ", "))
	}
	return passed(CheckEndpointsReachable, fmt.Sprintf("%d endpoints reachable", len(c.endpoints)))
}

func (c *Checker) checkPortfolioValue(snapshot domain.HoldingsSnapshot) domain.PreflightCheck {
	total := snapshot.TotalValue()
	if !total.IsPositive() {
		return failed(CheckPortfolioValue, "portfolio value is zero")
	}
	return passed(CheckPortfolioValue, fmt.Sprintf("total %s %s", total.StringFixed(2), snapshot.QuoteAsset()))
}

// checkHealthFactor skips only when the snapshot shows no lending position.
// A lending source that could not be read leaves the position unknown, so
// the factor is still queried and an unreadable factor fails the check.
func (c *Checker) checkHealthFactor(ctx context.Context, snapshot domain.HoldingsSnapshot) (domain.PreflightCheck, error) {
	unknown := snapshot.HasUnreadLendingSource()
	if !snapshot.HasLendingPosition() && !unknown {
		return skipped(CheckHealthFactor, "no lending position"), nil
	}
	if c.health == nil {
		if unknown {
			return failed(CheckHealthFactor, "lending position unknown and no health factor source configured"), nil
		}
		return skipped(CheckHealthFactor, "no health factor source configured"), nil
	}

	hctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	hf, err := c.health.HealthFactor(hctx)
	if err != nil {
		if unknown {
			c.logger.Warn("health factor unreadable with lending source down", zap.Error(err))
			return failed(CheckHealthFactor, "lending position unknown: "+err.Error()), nil
		}
		return domain.PreflightCheck{}, domain.NewInfrastructureError("health factor source", err)
	}
	if hf == nil {
		return skipped(CheckHealthFactor, "risk source reported no position"), nil
	}
	if hf.LessThan(c.cfg.MinHealthFactor) {
		return failed(CheckHealthFactor, fmt.Sprintf("health factor %s below minimum %s", hf.StringFixed(4), c.cfg.MinHealthFactor.String())), nil
	}
	return passed(CheckHealthFactor, fmt.Sprintf("health factor %s >= %s", hf.StringFixed(4), c.cfg.MinHealthFactor.String())), nil
}
