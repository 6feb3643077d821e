// Package aggregator merges balances from every configured source into one
// priced holdings snapshot.
package aggregator

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/sovereign/internal/domain"
	"github.com/vadiminshakov/sovereign/internal/services/holdings"
	"github.com/vadiminshakov/sovereign/internal/services/pricer"
)

const (
	defaultCallTimeout = 5 * time.Second
	priceConcurrency   = 4
	pricesSourceName   = "prices"
)

// SourceSpec a balance source and whether the run depends on it.
type SourceSpec struct {
	Source   holdings.Source
	Required bool
}

// Config aggregation parameters.
type Config struct {
	QuoteAsset string
	// TargetAssets are priced even when no balance is held.
	TargetAssets []string
	// CallTimeout bounds every single source and price call.
	CallTimeout time.Duration
}

// Aggregator builds HoldingsSnapshot values. It keeps no state between calls.
type Aggregator struct {
	sources []SourceSpec
	pricer  pricer.Pricer
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

func NewAggregator(sources []SourceSpec, p pricer.Pricer, cfg Config, logger *zap.Logger) (*Aggregator, error) {
	if len(sources) == 0 {
		return nil, domain.NewConfigError("sources", "at least one balance source is required")
	}
	if p == nil {
		return nil, domain.NewConfigError("prices", "price source is required")
	}
	if cfg.QuoteAsset == "" {
		return nil, domain.NewConfigError("quote_asset", "is required")
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg.QuoteAsset = strings.ToUpper(cfg.QuoteAsset)

	return &Aggregator{
		sources: sources,
		pricer:  p,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "aggregator")),
		now:     time.Now,
	}, nil
}

// Sources returns the configured sources.
func (a *Aggregator) Sources() []SourceSpec {
	return append([]SourceSpec(nil), a.sources...)
}

type sourceResult struct {
	balances map[string]decimal.Decimal
	err      error
}

// Aggregate reads every source concurrently and prices the result.
//
// A failing required source aborts with a *domain.SourceError. A failing
// optional source is recorded as a gap and contributes unavailable zero
// entries for the target assets. Any price failure aborts the call.
func (a *Aggregator) Aggregate(ctx context.Context) (domain.HoldingsSnapshot, error) {
	results := make([]sourceResult, len(a.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range a.sources {
		g.Go(func() error {
			balances, err := callWithTimeout(gctx, a.cfg.CallTimeout, spec.Source.GetBalances)
			if err == nil {
				err = validateBalances(balances)
			}
			results[i] = sourceResult{balances: balances, err: err}
			if err != nil && spec.Required {
				return domain.NewSourceError(spec.Source.Name(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.logger.Error("required source unavailable", zap.Error(err))
		return domain.HoldingsSnapshot{}, err
	}

	balances := make(map[string]decimal.Decimal)
	breakdown := make(map[string][]domain.SourceEntry)
	var gaps []domain.SourceGap

	for i, spec := range a.sources {
		src := spec.Source
		res := results[i]

		if res.err != nil {
			a.logger.Warn("optional source unavailable, continuing without it",
				zap.String("source", src.Name()), zap.Error(res.err))
			gaps = append(gaps, domain.SourceGap{Source: src.Name(), Reason: res.err.Error()})
			for _, asset := range a.cfg.TargetAssets {
				asset = strings.ToUpper(asset)
				breakdown[asset] = append(breakdown[asset], domain.SourceEntry{
					Source:      src.Name(),
					Kind:        src.Kind(),
					Quantity:    decimal.Zero,
					Unavailable: true,
				})
				if _, ok := balances[asset]; !ok {
					balances[asset] = decimal.Zero
				}
			}
			continue
		}

		for _, asset := range sortedAssets(res.balances) {
			qty := res.balances[asset]
			balances[asset] = balances[asset].Add(qty)
			breakdown[asset] = append(breakdown[asset], domain.SourceEntry{
				Source:   src.Name(),
				Kind:     src.Kind(),
				Quantity: qty,
			})
		}
	}

	prices, err := a.fetchPrices(ctx, balances)
	if err != nil {
		a.logger.Error("price source unavailable", zap.Error(err))
		return domain.HoldingsSnapshot{}, err
	}

	snapshot, err := domain.NewHoldingsSnapshot(a.now().UTC(), a.cfg.QuoteAsset, balances, prices, breakdown, gaps)
	if err != nil {
		return domain.HoldingsSnapshot{}, errors.Wrap(err, "failed to build holdings snapshot")
	}

	a.logger.Info("holdings aggregated",
		zap.Int("assets", len(snapshot.Assets())),
		zap.Int("gaps", len(gaps)),
		zap.String("total_value", snapshot.TotalValue().String()),
		zap.String("quote", a.cfg.QuoteAsset),
	)

	return snapshot, nil
}

func (a *Aggregator) fetchPrices(ctx context.Context, balances map[string]decimal.Decimal) (map[string]decimal.Decimal, error) {
	need := make(map[string]struct{})
	for asset, qty := range balances {
		if qty.IsPositive() {
			need[asset] = struct{}{}
		}
	}
	for _, asset := range a.cfg.TargetAssets {
		need[strings.ToUpper(asset)] = struct{}{}
	}

	assets := make([]string, 0, len(need))
	for asset := range need {
		if asset != a.cfg.QuoteAsset {
			assets = append(assets, asset)
		}
	}
	sort.Strings(assets)

	fetched := make([]decimal.Decimal, len(assets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(priceConcurrency)
	for i, asset := range assets {
		g.Go(func() error {
			pair := domain.NewPair(asset, a.cfg.QuoteAsset)
			price, err := callWithTimeout(gctx, a.cfg.CallTimeout, func(ctx context.Context) (decimal.Decimal, error) {
				return a.pricer.GetPrice(ctx, pair)
			})
			if err != nil {
				return domain.NewSourceError(pricesSourceName, errors.Wrapf(err, "price of %s", pair.String()))
			}
			fetched[i] = price
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	prices := make(map[string]decimal.Decimal, len(assets)+1)
	prices[a.cfg.QuoteAsset] = decimal.NewFromInt(1)
	for i, asset := range assets {
		prices[asset] = fetched[i]
	}
	return prices, nil
}

// callWithTimeout runs fn under a deadline and returns when either fn or
// the deadline finishes first, even if fn ignores its context.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, errors.Wrap(ctx.Err(), "call timed out")
	}
}

func validateBalances(balances map[string]decimal.Decimal) error {
	for asset, qty := range balances {
		if qty.IsNegative() {
			return errors.Errorf("malformed balance: %s is negative (%s)", asset, qty.String())
		}
	}
	return nil
}

func sortedAssets(m map[string]decimal.Decimal) []string {
	out := make([]string, 0, len(m))
	for asset := range m {
		out = append(out, asset)
	}
	sort.Strings(out)
	return out
}
