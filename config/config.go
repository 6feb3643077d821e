// Package config loads the rebalancer YAML document.
package config

import (
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

const (
	PlatformBinance     = "binance"
	PlatformBybit       = "bybit"
	PlatformHyperliquid = "hyperliquid"
	PlatformStatic      = "static"
	PlatformPaper       = "paper"
)

const (
	defaultQuoteAsset        = "USDT"
	defaultRungs             = 3
	defaultQuantityPrecision = 8
	defaultCallTimeout       = 5 * time.Second
	defaultLogDir            = "runlog"
	defaultLogSegmentEntries = 1000
	defaultLogMaxSegments    = 10000
	defaultInterval          = "1h"
	defaultLookback          = 48
	defaultATRPeriod         = 14
)

var defaultLadderRatio = decimal.RequireFromString("0.5")

// Config validated rebalancer configuration.
type Config struct {
	Mode             domain.Mode
	QuoteAsset       string
	Targets          domain.TargetAllocation
	Adaptive         AdaptiveConfig
	ToleranceBandPct decimal.Decimal
	FeeRate          decimal.Decimal
	SlippageBuffer   decimal.Decimal
	Ladder           LadderConfig
	// MinHealthFactor zero when no lending source is configured.
	MinHealthFactor decimal.Decimal
	CallTimeout     time.Duration
	LogDir          string
	RunLog          RunLogConfig
	RequiredEnv     []string
	RequiredFiles   []string
	Sources         []SourceConfig
	Prices          PriceConfig
	Executor        ExecutorConfig
}

// AdaptiveConfig volatility-driven weight of a single asset.
type AdaptiveConfig struct {
	Asset               string
	MinWeight           decimal.Decimal
	VolatilityThreshold decimal.Decimal
	Sensitivity         decimal.Decimal
	// Interval kline size used for the volatility signal, e.g. 1h.
	Interval string
	Lookback int
	Period   int
	// Platform kline provider.
	Platform string
}

// Enabled reports whether an adaptive asset is configured.
func (a AdaptiveConfig) Enabled() bool {
	return a.Asset != ""
}

// LadderConfig how orders are split into rungs.
type LadderConfig struct {
	Rungs             int
	Policy            domain.LadderPolicy
	Ratio             decimal.Decimal
	QuantityPrecision int32
	FailureScope      domain.FailureScope
}

// RunLogConfig sizes the run log WAL. The log keeps at most
// SegmentEntries x MaxSegments entries before the oldest segment is dropped.
type RunLogConfig struct {
	SegmentEntries int
	MaxSegments    int
}

// TokenConfig ERC-20 token held in a custody wallet.
type TokenConfig struct {
	Symbol   string
	Address  string
	Decimals int32
}

// ReserveConfig lending reserve: the deposit receipt token and the variable
// debt token of one asset.
type ReserveConfig struct {
	Symbol    string
	AToken    string
	DebtToken string
	Decimals  int32
}

// SourceConfig one balance source.
type SourceConfig struct {
	Name     string
	Kind     domain.SourceKind
	Platform string
	Required bool

	// custody and lending
	RPCURL         string
	Address        string
	NativeSymbol   string
	NativeDecimals int32
	Tokens         []TokenConfig
	Pool           string
	Reserves       []ReserveConfig

	// hyperliquid
	AccountAddress string

	// manual
	Holdings map[string]decimal.Decimal
}

// PriceConfig price source.
type PriceConfig struct {
	Platform string
	Static   map[string]decimal.Decimal
}

// ExecutorConfig order executor used in execute mode.
type ExecutorConfig struct {
	Platform string
}

// HasLendingSource reports whether any source is a lending position.
func (c Config) HasLendingSource() bool {
	for _, s := range c.Sources {
		if s.Kind == domain.SourceKindLending {
			return true
		}
	}
	return false
}

// CredentialEnv returns the environment variables the configured platforms
// need plus required_env, sorted and deduplicated.
func (c Config) CredentialEnv() []string {
	set := make(map[string]struct{})
	add := func(platform string) {
		for _, name := range platformCredentials[platform] {
			set[name] = struct{}{}
		}
	}

	for _, s := range c.Sources {
		if s.Kind == domain.SourceKindExchange {
			add(s.Platform)
		}
	}
	if c.Mode == domain.ModeExecute {
		add(c.Executor.Platform)
	}
	for _, name := range c.RequiredEnv {
		set[name] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

var platformCredentials = map[string][]string{
	PlatformBinance:     {"BINANCE_API_KEY", "BINANCE_API_SECRET"},
	PlatformBybit:       {"BYBIT_API_KEY", "BYBIT_API_SECRET"},
	PlatformHyperliquid: {"HYPERLIQUID_PRIVATE_KEY"},
}

type rawConfig struct {
	Mode             string            `yaml:"mode"`
	QuoteAsset       string            `yaml:"quote_asset,omitempty"`
	Targets          map[string]string `yaml:"targets"`
	Adaptive         *rawAdaptive      `yaml:"adaptive,omitempty"`
	ToleranceBandPct string            `yaml:"tolerance_band_pct"`
	FeeRate          string            `yaml:"fee_rate"`
	SlippageBuffer   string            `yaml:"slippage_buffer,omitempty"`
	Ladder           rawLadder         `yaml:"ladder,omitempty"`
	MinHealthFactor  string            `yaml:"min_health_factor,omitempty"`
	CallTimeout      time.Duration     `yaml:"call_timeout,omitempty"`
	LogDir           string            `yaml:"log_dir,omitempty"`
	RunLog           rawRunLog         `yaml:"run_log,omitempty"`
	RequiredEnv      []string          `yaml:"required_env,omitempty"`
	RequiredFiles    []string          `yaml:"required_files,omitempty"`
	Sources          []rawSource       `yaml:"sources"`
	Prices           rawPrices         `yaml:"prices"`
	Executor         rawExecutor       `yaml:"executor,omitempty"`
}

type rawAdaptive struct {
	Asset               string `yaml:"asset"`
	MinWeight           string `yaml:"min_weight"`
	VolatilityThreshold string `yaml:"volatility_threshold"`
	Sensitivity         string `yaml:"sensitivity"`
	Interval            string `yaml:"interval,omitempty"`
	Lookback            int    `yaml:"lookback,omitempty"`
	Period              int    `yaml:"period,omitempty"`
	Platform            string `yaml:"platform,omitempty"`
}

type rawLadder struct {
	Rungs             int    `yaml:"rungs,omitempty"`
	Policy            string `yaml:"policy,omitempty"`
	Ratio             string `yaml:"ratio,omitempty"`
	QuantityPrecision *int32 `yaml:"quantity_precision,omitempty"`
	FailureScope      string `yaml:"failure_scope,omitempty"`
}

type rawRunLog struct {
	SegmentEntries int `yaml:"segment_entries,omitempty"`
	MaxSegments    int `yaml:"max_segments,omitempty"`
}

type rawToken struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals int32  `yaml:"decimals"`
}

type rawReserve struct {
	Symbol    string `yaml:"symbol"`
	AToken    string `yaml:"a_token"`
	DebtToken string `yaml:"debt_token,omitempty"`
	Decimals  int32  `yaml:"decimals"`
}

type rawSource struct {
	Name           string            `yaml:"name"`
	Kind           string            `yaml:"kind"`
	Platform       string            `yaml:"platform,omitempty"`
	Required       bool              `yaml:"required"`
	RPCURL         string            `yaml:"rpc_url,omitempty"`
	Address        string            `yaml:"address,omitempty"`
	NativeSymbol   string            `yaml:"native_symbol,omitempty"`
	NativeDecimals int32             `yaml:"native_decimals,omitempty"`
	Tokens         []rawToken        `yaml:"tokens,omitempty"`
	Pool           string            `yaml:"pool,omitempty"`
	Reserves       []rawReserve      `yaml:"reserves,omitempty"`
	AccountAddress string            `yaml:"account_address,omitempty"`
	Holdings       map[string]string `yaml:"holdings,omitempty"`
}

type rawPrices struct {
	Platform string            `yaml:"platform"`
	Static   map[string]string `yaml:"static,omitempty"`
}

type rawExecutor struct {
	Platform string `yaml:"platform"`
}

// Load reads and validates the YAML document at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to read config %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, domain.NewConfigError("document", "invalid yaml: %v", err)
	}

	conf, err := raw.toConfig()
	if err != nil {
		return Config{}, err
	}
	if err := conf.Validate(); err != nil {
		return Config{}, err
	}
	return conf, nil
}

func (r rawConfig) toConfig() (Config, error) {
	mode, err := domain.ParseMode(r.Mode)
	if err != nil {
		return Config{}, err
	}

	conf := Config{
		Mode:          mode,
		QuoteAsset:    strings.ToUpper(r.QuoteAsset),
		CallTimeout:   r.CallTimeout,
		LogDir:        r.LogDir,
		RunLog:        RunLogConfig{SegmentEntries: r.RunLog.SegmentEntries, MaxSegments: r.RunLog.MaxSegments},
		RequiredEnv:   r.RequiredEnv,
		RequiredFiles: r.RequiredFiles,
		Prices:        PriceConfig{Platform: strings.ToLower(r.Prices.Platform)},
		Executor:      ExecutorConfig{Platform: strings.ToLower(r.Executor.Platform)},
	}
	if conf.QuoteAsset == "" {
		conf.QuoteAsset = defaultQuoteAsset
	}
	if conf.CallTimeout == 0 {
		conf.CallTimeout = defaultCallTimeout
	}
	if conf.LogDir == "" {
		conf.LogDir = defaultLogDir
	}
	if conf.RunLog.SegmentEntries == 0 {
		conf.RunLog.SegmentEntries = defaultLogSegmentEntries
	}
	if conf.RunLog.MaxSegments == 0 {
		conf.RunLog.MaxSegments = defaultLogMaxSegments
	}

	targets, err := parseDecimalMap("targets", r.Targets)
	if err != nil {
		return Config{}, err
	}
	conf.Targets = domain.NewTargetAllocation(targets)

	if r.ToleranceBandPct == "" {
		return Config{}, domain.NewConfigError("tolerance_band_pct", "is required")
	}
	if conf.ToleranceBandPct, err = parseDecimal("tolerance_band_pct", r.ToleranceBandPct); err != nil {
		return Config{}, err
	}
	if r.FeeRate == "" {
		return Config{}, domain.NewConfigError("fee_rate", "is required")
	}
	if conf.FeeRate, err = parseDecimal("fee_rate", r.FeeRate); err != nil {
		return Config{}, err
	}
	if r.SlippageBuffer != "" {
		if conf.SlippageBuffer, err = parseDecimal("slippage_buffer", r.SlippageBuffer); err != nil {
			return Config{}, err
		}
	}
	if r.MinHealthFactor != "" {
		if conf.MinHealthFactor, err = parseDecimal("min_health_factor", r.MinHealthFactor); err != nil {
			return Config{}, err
		}
	}

	if conf.Adaptive, err = r.Adaptive.toConfig(); err != nil {
		return Config{}, err
	}
	if conf.Ladder, err = r.Ladder.toConfig(); err != nil {
		return Config{}, err
	}

	for _, rs := range r.Sources {
		s, err := rs.toConfig()
		if err != nil {
			return Config{}, err
		}
		conf.Sources = append(conf.Sources, s)
	}

	if conf.Prices.Static, err = parseDecimalMap("prices.static", r.Prices.Static); err != nil {
		return Config{}, err
	}

	return conf, nil
}

func (r *rawAdaptive) toConfig() (AdaptiveConfig, error) {
	if r == nil || r.Asset == "" {
		return AdaptiveConfig{}, nil
	}

	a := AdaptiveConfig{
		Asset:    strings.ToUpper(r.Asset),
		Interval: r.Interval,
		Lookback: r.Lookback,
		Period:   r.Period,
		Platform: strings.ToLower(r.Platform),
	}
	if a.Interval == "" {
		a.Interval = defaultInterval
	}
	if a.Lookback == 0 {
		a.Lookback = defaultLookback
	}
	if a.Period == 0 {
		a.Period = defaultATRPeriod
	}

	var err error
	if a.MinWeight, err = parseDecimal("adaptive.min_weight", r.MinWeight); err != nil {
		return AdaptiveConfig{}, err
	}
	if a.VolatilityThreshold, err = parseDecimal("adaptive.volatility_threshold", r.VolatilityThreshold); err != nil {
		return AdaptiveConfig{}, err
	}
	if a.Sensitivity, err = parseDecimal("adaptive.sensitivity", r.Sensitivity); err != nil {
		return AdaptiveConfig{}, err
	}
	return a, nil
}

func (r rawLadder) toConfig() (LadderConfig, error) {
	l := LadderConfig{
		Rungs:             r.Rungs,
		Policy:            domain.LadderPolicy(strings.ToLower(r.Policy)),
		Ratio:             defaultLadderRatio,
		QuantityPrecision: defaultQuantityPrecision,
		FailureScope:      domain.FailureScope(strings.ToLower(r.FailureScope)),
	}
	if l.Rungs == 0 {
		l.Rungs = defaultRungs
	}
	if l.Policy == "" {
		l.Policy = domain.LadderFrontLoaded
	}
	if l.FailureScope == "" {
		l.FailureScope = domain.FailureScopeRun
	}
	if r.QuantityPrecision != nil {
		l.QuantityPrecision = *r.QuantityPrecision
	}
	if r.Ratio != "" {
		ratio, err := parseDecimal("ladder.ratio", r.Ratio)
		if err != nil {
			return LadderConfig{}, err
		}
		l.Ratio = ratio
	}
	return l, nil
}

func (r rawSource) toConfig() (SourceConfig, error) {
	s := SourceConfig{
		Name:           r.Name,
		Kind:           domain.SourceKind(strings.ToLower(r.Kind)),
		Platform:       strings.ToLower(r.Platform),
		Required:       r.Required,
		RPCURL:         r.RPCURL,
		Address:        r.Address,
		NativeSymbol:   strings.ToUpper(r.NativeSymbol),
		NativeDecimals: r.NativeDecimals,
		Pool:           r.Pool,
		AccountAddress: r.AccountAddress,
	}
	if s.Name == "" {
		s.Name = s.Kind.String()
		if s.Platform != "" {
			s.Name = s.Platform
		}
	}
	if s.NativeSymbol != "" && s.NativeDecimals == 0 {
		s.NativeDecimals = 18
	}
	for _, t := range r.Tokens {
		s.Tokens = append(s.Tokens, TokenConfig{Symbol: strings.ToUpper(t.Symbol), Address: t.Address, Decimals: t.Decimals})
	}
	for _, rv := range r.Reserves {
		s.Reserves = append(s.Reserves, ReserveConfig{
			Symbol:    strings.ToUpper(rv.Symbol),
			AToken:    rv.AToken,
			DebtToken: rv.DebtToken,
			Decimals:  rv.Decimals,
		})
	}

	holdings, err := parseDecimalMap("sources["+s.Name+"].holdings", r.Holdings)
	if err != nil {
		return SourceConfig{}, err
	}
	s.Holdings = holdings

	return s, nil
}

// Validate checks the configuration invariants. It performs no I/O.
func (c Config) Validate() error {
	if !c.Mode.IsValid() {
		return domain.NewConfigError("mode", "must be %q or %q, got %q", domain.ModeSimulate, domain.ModeExecute, c.Mode)
	}
	if err := c.Targets.Validate(); err != nil {
		return err
	}
	if c.ToleranceBandPct.IsNegative() {
		return domain.NewConfigError("tolerance_band_pct", "must not be negative")
	}
	if c.FeeRate.IsNegative() || c.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return domain.NewConfigError("fee_rate", "must be in [0, 1), got %s", c.FeeRate.String())
	}
	if c.SlippageBuffer.IsNegative() {
		return domain.NewConfigError("slippage_buffer", "must not be negative")
	}
	if c.CallTimeout < 0 {
		return domain.NewConfigError("call_timeout", "must not be negative")
	}
	if c.RunLog.SegmentEntries < 0 || c.RunLog.MaxSegments < 0 {
		return domain.NewConfigError("run_log", "segment sizes must not be negative")
	}

	if err := c.validateAdaptive(); err != nil {
		return err
	}
	if err := c.validateLadder(); err != nil {
		return err
	}
	if err := c.validateSources(); err != nil {
		return err
	}

	if c.HasLendingSource() && !c.MinHealthFactor.IsPositive() {
		return domain.NewConfigError("min_health_factor", "is required with a lending source")
	}

	switch c.Prices.Platform {
	case PlatformBinance, PlatformBybit, PlatformHyperliquid:
	case PlatformStatic:
		if len(c.Prices.Static) == 0 {
			return domain.NewConfigError("prices.static", "static price table is empty")
		}
	default:
		return domain.NewConfigError("prices.platform", "unsupported platform %q", c.Prices.Platform)
	}

	if c.Mode == domain.ModeExecute {
		switch c.Executor.Platform {
		case PlatformBinance, PlatformBybit, PlatformHyperliquid, PlatformPaper:
		default:
			return domain.NewConfigError("executor.platform", "unsupported platform %q", c.Executor.Platform)
		}
	}

	return nil
}

func (c Config) validateAdaptive() error {
	a := c.Adaptive
	if !a.Enabled() {
		return nil
	}
	if !c.Targets.Has(a.Asset) {
		return domain.NewConfigError("adaptive.asset", "%s is not present in targets", a.Asset)
	}
	if len(c.Targets.Assets()) < 2 {
		return domain.NewConfigError("adaptive.asset", "needs at least one other target asset")
	}
	if a.MinWeight.IsNegative() || a.MinWeight.GreaterThan(c.Targets.Weight(a.Asset)) {
		return domain.NewConfigError("adaptive.min_weight", "must be in [0, %s]", c.Targets.Weight(a.Asset).String())
	}
	if a.VolatilityThreshold.IsNegative() {
		return domain.NewConfigError("adaptive.volatility_threshold", "must not be negative")
	}
	if a.Sensitivity.IsNegative() {
		return domain.NewConfigError("adaptive.sensitivity", "must not be negative")
	}
	if a.Lookback <= a.Period {
		return domain.NewConfigError("adaptive.lookback", "must exceed period %d", a.Period)
	}
	if _, err := time.ParseDuration(a.Interval); err != nil && !strings.HasSuffix(a.Interval, "d") {
		return domain.NewConfigError("adaptive.interval", "invalid interval %q", a.Interval)
	}
	switch a.Platform {
	case PlatformBinance, PlatformHyperliquid:
	default:
		return domain.NewConfigError("adaptive.platform", "klines are not available from %q", a.Platform)
	}
	return nil
}

func (c Config) validateLadder() error {
	l := c.Ladder
	if l.Rungs < 1 {
		return domain.NewConfigError("ladder.rungs", "must be at least 1, got %d", l.Rungs)
	}
	if !l.Policy.IsValid() {
		return domain.NewConfigError("ladder.policy", "must be %q or %q, got %q", domain.LadderEven, domain.LadderFrontLoaded, l.Policy)
	}
	if !l.Ratio.IsPositive() || l.Ratio.GreaterThan(decimal.NewFromInt(1)) {
		return domain.NewConfigError("ladder.ratio", "must be in (0, 1], got %s", l.Ratio.String())
	}
	if l.QuantityPrecision < 0 || l.QuantityPrecision > 18 {
		return domain.NewConfigError("ladder.quantity_precision", "must be in [0, 18], got %d", l.QuantityPrecision)
	}
	if !l.FailureScope.IsValid() {
		return domain.NewConfigError("ladder.failure_scope", "must be %q or %q, got %q", domain.FailureScopeRun, domain.FailureScopeAsset, l.FailureScope)
	}
	return nil
}

func (c Config) validateSources() error {
	if len(c.Sources) == 0 {
		return domain.NewConfigError("sources", "at least one balance source is required")
	}

	names := make(map[string]struct{}, len(c.Sources))
	for _, s := range c.Sources {
		field := "sources[" + s.Name + "]"
		if _, dup := names[s.Name]; dup {
			return domain.NewConfigError(field, "duplicate source name")
		}
		names[s.Name] = struct{}{}

		switch s.Kind {
		case domain.SourceKindExchange:
			switch s.Platform {
			case PlatformBinance, PlatformBybit:
			case PlatformHyperliquid:
				if s.AccountAddress == "" {
					return domain.NewConfigError(field+".account_address", "is required for hyperliquid")
				}
			default:
				return domain.NewConfigError(field+".platform", "unsupported exchange %q", s.Platform)
			}
		case domain.SourceKindCustody:
			if s.RPCURL == "" || s.Address == "" {
				return domain.NewConfigError(field, "rpc_url and address are required")
			}
			if s.NativeSymbol == "" && len(s.Tokens) == 0 {
				return domain.NewConfigError(field, "no native_symbol or tokens to read")
			}
		case domain.SourceKindLending:
			if s.RPCURL == "" || s.Address == "" || s.Pool == "" {
				return domain.NewConfigError(field, "rpc_url, address and pool are required")
			}
			if len(s.Reserves) == 0 {
				return domain.NewConfigError(field+".reserves", "at least one reserve is required")
			}
		case domain.SourceKindManual:
			for asset, qty := range s.Holdings {
				if qty.IsNegative() {
					return domain.NewConfigError(field+".holdings", "negative quantity for %s", asset)
				}
			}
		default:
			return domain.NewConfigError(field+".kind", "unsupported kind %q", s.Kind)
		}
	}
	return nil
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Zero, domain.NewConfigError(field, "must be a decimal, got %q", value)
	}
	return d, nil
}

func parseDecimalMap(field string, in map[string]string) (map[string]decimal.Decimal, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]decimal.Decimal, len(in))
	for key, value := range in {
		d, err := parseDecimal(field+"."+key, value)
		if err != nil {
			return nil, err
		}
		out[strings.ToUpper(key)] = d
	}
	return out, nil
}
