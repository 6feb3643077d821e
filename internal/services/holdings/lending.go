package holdings

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

// Reserve one asset of a lending market. DebtToken may be empty for
// supply-only reserves.
type Reserve struct {
	Symbol    string
	AToken    string
	DebtToken string
	Decimals  int32
}

// LendingConfig Aave-style lending position.
type LendingConfig struct {
	Name     string
	Address  string
	Pool     string
	Reserves []Reserve
}

// LendingSource reports supplied minus borrowed quantity per reserve and
// the position health factor.
type LendingSource struct {
	name     string
	chain    ChainReader
	holder   common.Address
	pool     common.Address
	reserves []resolvedReserve
}

type resolvedReserve struct {
	Reserve
	aToken    common.Address
	debtToken *common.Address
}

func NewLendingSource(chain ChainReader, cfg LendingConfig) (*LendingSource, error) {
	holder, err := validAddress("account", cfg.Address)
	if err != nil {
		return nil, err
	}
	pool, err := validAddress("pool", cfg.Pool)
	if err != nil {
		return nil, err
	}

	s := &LendingSource{name: cfg.Name, chain: chain, holder: holder, pool: pool}
	for _, r := range cfg.Reserves {
		aToken, err := validAddress("a_token "+r.Symbol, r.AToken)
		if err != nil {
			return nil, err
		}
		rr := resolvedReserve{Reserve: r, aToken: aToken}
		if r.DebtToken != "" {
			debt, err := validAddress("debt_token "+r.Symbol, r.DebtToken)
			if err != nil {
				return nil, err
			}
			rr.debtToken = &debt
		}
		s.reserves = append(s.reserves, rr)
	}
	return s, nil
}

func (s *LendingSource) Name() string            { return s.name }
func (s *LendingSource) Kind() domain.SourceKind { return domain.SourceKindLending }

// GetBalances returns the net supplied quantity per reserve. A reserve whose
// debt exceeds its supply is reported as malformed rather than negative.
func (s *LendingSource) GetBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	for _, r := range s.reserves {
		supplied, err := tokenBalance(ctx, s.chain, r.aToken, s.holder)
		if err != nil {
			return nil, err
		}
		net := new(big.Int).Set(supplied)
		if r.debtToken != nil {
			borrowed, err := tokenBalance(ctx, s.chain, *r.debtToken, s.holder)
			if err != nil {
				return nil, err
			}
			net.Sub(net, borrowed)
		}
		if net.Sign() < 0 {
			return nil, errors.Errorf("net lending balance of %s is negative (%s)", r.Symbol, scaled(net, r.Decimals).String())
		}
		if err := addBalance(out, r.Symbol, scaled(net, r.Decimals).String()); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *LendingSource) IsReachable(ctx context.Context) bool {
	_, err := s.chain.BlockNumber(ctx)
	return err == nil
}

// HealthFactor returns the position's health factor, or nil when the
// account has no collateral in the pool.
func (s *LendingSource) HealthFactor(ctx context.Context) (*decimal.Decimal, error) {
	data, err := lendingPoolABI.Pack("getUserAccountData", s.holder)
	if err != nil {
		return nil, errors.Wrap(err, "pack getUserAccountData")
	}

	raw, err := s.chain.CallContract(ctx, ethereum.CallMsg{To: &s.pool, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "getUserAccountData")
	}

	values, err := lendingPoolABI.Unpack("getUserAccountData", raw)
	if err != nil {
		return nil, errors.Wrap(err, "unpack getUserAccountData")
	}
	if len(values) != 6 {
		return nil, errors.Errorf("getUserAccountData returned %d values", len(values))
	}

	collateral, ok := values[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("unexpected collateral type %T", values[0])
	}
	if collateral.Sign() == 0 {
		return nil, nil
	}

	hf, ok := values[5].(*big.Int)
	if !ok {
		return nil, errors.Errorf("unexpected health factor type %T", values[5])
	}
	v := scaled(hf, healthFactorDecimals)
	return &v, nil
}
