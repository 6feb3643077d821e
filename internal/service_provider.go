package internal

import (
	"context"
	"fmt"
	"os"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/google/uuid"
	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/sovereign/config"
	"github.com/vadiminshakov/sovereign/internal/clients"
	"github.com/vadiminshakov/sovereign/internal/domain"
	"github.com/vadiminshakov/sovereign/internal/services/aggregator"
	"github.com/vadiminshakov/sovereign/internal/services/drift"
	"github.com/vadiminshakov/sovereign/internal/services/holdings"
	"github.com/vadiminshakov/sovereign/internal/services/planner"
	"github.com/vadiminshakov/sovereign/internal/services/preflight"
	"github.com/vadiminshakov/sovereign/internal/services/pricer"
	"github.com/vadiminshakov/sovereign/internal/services/trader"
	"github.com/vadiminshakov/sovereign/internal/services/volatility"
)

// serviceProvider creates the platform-specific services of one venue.
type serviceProvider interface {
	Source(name string) (holdings.Source, error)
	Pricer() (pricer.Pricer, error)
	KlineProvider() (volatility.KlineProvider, error)
	Executor(quote string, p pricer.Pricer) (planner.OrderExecutor, error)
}

// Deps handles owned by the caller.
type Deps struct {
	RunLog  runLogStore
	Confirm Confirmer
	Logger  *zap.Logger
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

type runLogStore interface {
	runLog
	trader.FillJournal
}

// New wires a Rebalancer for conf.Mode. Clients are created once per
// platform and shared between sources, prices, candles and orders.
//
// When wiring fails the error is still appended to the run log as a run
// record, so a run that never started leaves an audit entry.
func New(ctx context.Context, conf config.Config, deps Deps) (*Rebalancer, error) {
	if deps.RunLog == nil {
		return nil, errors.New("run log is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Getenv == nil {
		deps.Getenv = os.Getenv
	}

	r, err := build(ctx, conf, deps)
	if err != nil {
		now := time.Now().UTC()
		record := domain.RunRecord{
			RunID:      uuid.NewString(),
			Mode:       conf.Mode,
			StartedAt:  now,
			FinishedAt: now,
			Error:      errors.Wrap(err, "build rebalancer").Error(),
		}
		if serr := deps.RunLog.Save(record); serr != nil {
			deps.Logger.Error("failed to write run record", zap.Error(serr))
		}
		return nil, err
	}
	return r, nil
}

func build(ctx context.Context, conf config.Config, deps Deps) (*Rebalancer, error) {
	reg := &providerRegistry{conf: conf, getenv: deps.Getenv, logger: deps.Logger, providers: make(map[string]serviceProvider)}

	specs, endpoints, health, err := buildSources(ctx, conf, reg)
	if err != nil {
		return nil, err
	}

	prices, err := buildPricer(conf, reg)
	if err != nil {
		return nil, err
	}

	agg, err := aggregator.NewAggregator(specs, prices, aggregator.Config{
		QuoteAsset:   conf.QuoteAsset,
		TargetAssets: conf.Targets.Assets(),
		CallTimeout:  conf.CallTimeout,
	}, deps.Logger)
	if err != nil {
		return nil, err
	}

	sim, err := drift.NewSimulator(drift.Config{
		Adaptive: drift.AdaptivePolicy{
			Asset:               conf.Adaptive.Asset,
			MinWeight:           conf.Adaptive.MinWeight,
			VolatilityThreshold: conf.Adaptive.VolatilityThreshold,
			Sensitivity:         conf.Adaptive.Sensitivity,
		},
		FeeRate:        conf.FeeRate,
		SlippageBuffer: conf.SlippageBuffer,
	})
	if err != nil {
		return nil, err
	}

	var signal volatilitySignal
	if conf.Adaptive.Enabled() {
		provider, err := reg.get(conf.Adaptive.Platform)
		if err != nil {
			return nil, err
		}
		klines, err := provider.KlineProvider()
		if err != nil {
			return nil, err
		}
		signal, err = volatility.NewATRSignal(klines, volatility.ATRSignalConfig{
			QuoteAsset: conf.QuoteAsset,
			Interval:   conf.Adaptive.Interval,
			Lookback:   conf.Adaptive.Lookback,
			Period:     conf.Adaptive.Period,
		}, deps.Logger)
		if err != nil {
			return nil, err
		}
	}

	var healthSource preflight.HealthFactorSource
	if health != nil {
		healthSource = health
	}
	checker := preflight.NewChecker(preflight.Config{
		Mode:            conf.Mode,
		RequiredEnv:     conf.CredentialEnv(),
		RequiredFiles:   conf.RequiredFiles,
		MinHealthFactor: conf.MinHealthFactor,
		CallTimeout:     conf.CallTimeout,
	}, endpoints, healthSource, deps.Logger)

	plan, err := planner.NewPlanner(planner.Config{
		ToleranceBandPct:  conf.ToleranceBandPct,
		Rungs:             conf.Ladder.Rungs,
		Policy:            conf.Ladder.Policy,
		Ratio:             conf.Ladder.Ratio,
		QuantityPrecision: conf.Ladder.QuantityPrecision,
	}, deps.Logger)
	if err != nil {
		return nil, err
	}

	components := Components{
		Aggregator: agg,
		Volatility: signal,
		Simulator:  sim,
		Preflight:  checker,
		Planner:    plan,
		RunLog:     deps.RunLog,
		Logger:     deps.Logger,
	}

	var opts []Option
	if deps.Confirm != nil {
		opts = append(opts, WithConfirmer(deps.Confirm))
	}

	switch conf.Mode {
	case domain.ModeSimulate:
		return NewSimulation(conf.Targets, components, opts...)
	case domain.ModeExecute:
		executor, err := buildExecutor(conf, reg, prices, deps)
		if err != nil {
			return nil, err
		}
		if observer, ok := executor.(SnapshotObserver); ok {
			opts = append(opts, WithSnapshotObserver(observer))
		}

		var guard planner.HealthGuard
		if health != nil {
			guard = preflight.NewHealthGuard(health, conf.MinHealthFactor, conf.CallTimeout)
		}
		dispatcher, err := planner.NewDispatcher(executor, planner.DispatchConfig{
			FailureScope: conf.Ladder.FailureScope,
		}, guard, deps.Logger)
		if err != nil {
			return nil, err
		}
		return NewExecution(conf.Targets, components, dispatcher, opts...)
	default:
		return nil, domain.NewConfigError("mode", "unknown mode %q", conf.Mode)
	}
}

func buildSources(ctx context.Context, conf config.Config, reg *providerRegistry) ([]aggregator.SourceSpec, []preflight.Endpoint, *holdings.LendingSource, error) {
	var (
		specs     []aggregator.SourceSpec
		endpoints []preflight.Endpoint
		health    *holdings.LendingSource
	)

	for _, sc := range conf.Sources {
		var (
			src holdings.Source
			err error
		)
		switch sc.Kind {
		case domain.SourceKindExchange:
			provider, perr := reg.get(sc.Platform)
			if perr != nil {
				return nil, nil, nil, perr
			}
			src, err = provider.Source(sc.Name)
		case domain.SourceKindCustody:
			src, err = custodySource(ctx, sc)
		case domain.SourceKindLending:
			var lending *holdings.LendingSource
			lending, err = lendingSource(ctx, sc)
			if err == nil {
				src = lending
				if health == nil {
					health = lending
				}
			}
		case domain.SourceKindManual:
			src = holdings.NewStaticSource(sc.Name, sc.Holdings)
		default:
			err = domain.NewConfigError("sources["+sc.Name+"].kind", "unsupported kind %q", sc.Kind)
		}
		if err != nil {
			return nil, nil, nil, errors.Wrapf(err, "build source %s", sc.Name)
		}

		specs = append(specs, aggregator.SourceSpec{Source: src, Required: sc.Required})
		endpoints = append(endpoints, src)
	}

	return specs, endpoints, health, nil
}

func custodySource(ctx context.Context, sc config.SourceConfig) (*holdings.CustodySource, error) {
	chain, err := clients.DialEVM(ctx, sc.RPCURL)
	if err != nil {
		return nil, err
	}
	tokens := make([]holdings.Token, 0, len(sc.Tokens))
	for _, t := range sc.Tokens {
		tokens = append(tokens, holdings.Token{Symbol: t.Symbol, Address: t.Address, Decimals: t.Decimals})
	}
	return holdings.NewCustodySource(chain, holdings.CustodyConfig{
		Name:           sc.Name,
		Address:        sc.Address,
		NativeSymbol:   sc.NativeSymbol,
		NativeDecimals: sc.NativeDecimals,
		Tokens:         tokens,
	})
}

func lendingSource(ctx context.Context, sc config.SourceConfig) (*holdings.LendingSource, error) {
	chain, err := clients.DialEVM(ctx, sc.RPCURL)
	if err != nil {
		return nil, err
	}
	reserves := make([]holdings.Reserve, 0, len(sc.Reserves))
	for _, r := range sc.Reserves {
		reserves = append(reserves, holdings.Reserve{Symbol: r.Symbol, AToken: r.AToken, DebtToken: r.DebtToken, Decimals: r.Decimals})
	}
	return holdings.NewLendingSource(chain, holdings.LendingConfig{
		Name:     sc.Name,
		Address:  sc.Address,
		Pool:     sc.Pool,
		Reserves: reserves,
	})
}

func buildPricer(conf config.Config, reg *providerRegistry) (pricer.Pricer, error) {
	if conf.Prices.Platform == config.PlatformStatic {
		return pricer.NewStaticPricer(conf.Prices.Static), nil
	}
	provider, err := reg.get(conf.Prices.Platform)
	if err != nil {
		return nil, err
	}
	return provider.Pricer()
}

func buildExecutor(conf config.Config, reg *providerRegistry, prices pricer.Pricer, deps Deps) (planner.OrderExecutor, error) {
	if conf.Executor.Platform == config.PlatformPaper {
		return trader.NewPaperExecutor(prices, deps.RunLog, conf.QuoteAsset, nil, deps.Logger)
	}
	provider, err := reg.get(conf.Executor.Platform)
	if err != nil {
		return nil, err
	}
	return provider.Executor(conf.QuoteAsset, prices)
}

// providerRegistry creates one serviceProvider per platform on first use.
type providerRegistry struct {
	conf      config.Config
	getenv    func(string) string
	logger    *zap.Logger
	providers map[string]serviceProvider
}

func (r *providerRegistry) get(platform string) (serviceProvider, error) {
	if p, ok := r.providers[platform]; ok {
		return p, nil
	}

	var p serviceProvider
	switch platform {
	case config.PlatformBinance:
		p = &binanceProvider{client: clients.NewBinanceClient(r.getenv("BINANCE_API_KEY"), r.getenv("BINANCE_API_SECRET"))}
	case config.PlatformBybit:
		p = &bybitProvider{client: clients.NewBybitClient(r.getenv("BYBIT_API_KEY"), r.getenv("BYBIT_API_SECRET"))}
	case config.PlatformHyperliquid:
		client, err := clients.NewHyperliquidClient(r.getenv("HYPERLIQUID_PRIVATE_KEY"), r.hyperliquidAccount(), r.getenv("HYPERLIQUID_API_URL"))
		if err != nil {
			return nil, err
		}
		p = &hyperliquidProvider{client: client}
	default:
		return nil, fmt.Errorf("unsupported platform: %s", platform)
	}

	r.providers[platform] = p
	return p, nil
}

func (r *providerRegistry) hyperliquidAccount() string {
	for _, s := range r.conf.Sources {
		if s.Platform == config.PlatformHyperliquid && s.AccountAddress != "" {
			return s.AccountAddress
		}
	}
	return ""
}

type binanceProvider struct {
	client *binance.Client
}

func (p *binanceProvider) Source(name string) (holdings.Source, error) {
	return holdings.NewBinanceSource(name, p.client), nil
}
func (p *binanceProvider) Pricer() (pricer.Pricer, error) {
	return pricer.NewBinancePricer(p.client), nil
}
func (p *binanceProvider) KlineProvider() (volatility.KlineProvider, error) {
	return volatility.NewBinanceKlineProvider(p.client), nil
}
func (p *binanceProvider) Executor(quote string, _ pricer.Pricer) (planner.OrderExecutor, error) {
	return trader.NewBinanceExecutor(p.client, quote)
}

type bybitProvider struct {
	client *bybit.Client
}

func (p *bybitProvider) Source(name string) (holdings.Source, error) {
	return holdings.NewBybitSource(name, p.client), nil
}
func (p *bybitProvider) Pricer() (pricer.Pricer, error) {
	return pricer.NewBybitPricer(p.client), nil
}
func (p *bybitProvider) KlineProvider() (volatility.KlineProvider, error) {
	return nil, errors.New("bybit klines are not supported")
}
func (p *bybitProvider) Executor(quote string, prices pricer.Pricer) (planner.OrderExecutor, error) {
	return trader.NewBybitExecutor(p.client, prices, quote)
}

type hyperliquidProvider struct {
	client *clients.HyperliquidClient
}

func (p *hyperliquidProvider) Source(name string) (holdings.Source, error) {
	return holdings.NewHyperliquidSource(name, p.client.Info(), p.client.AccountAddress())
}
func (p *hyperliquidProvider) Pricer() (pricer.Pricer, error) {
	return pricer.NewHyperliquidPricer(p.client.Info()), nil
}
func (p *hyperliquidProvider) KlineProvider() (volatility.KlineProvider, error) {
	return volatility.NewHyperliquidKlineProvider(p.client.Info()), nil
}
func (p *hyperliquidProvider) Executor(string, pricer.Pricer) (planner.OrderExecutor, error) {
	if !p.client.CanTrade() {
		return nil, errors.New("hyperliquid executor needs HYPERLIQUID_PRIVATE_KEY")
	}
	return trader.NewHyperliquidExecutor(p.client.Exchange(), p.client.AccountAddress())
}
