package holdings

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

// Token ERC-20 token to read from a wallet.
type Token struct {
	Symbol   string
	Address  string
	Decimals int32
}

// CustodyConfig self-custodied EVM wallet.
type CustodyConfig struct {
	Name    string
	Address string
	// NativeSymbol reports the chain's native coin under this symbol when set.
	NativeSymbol   string
	NativeDecimals int32
	Tokens         []Token
}

// CustodySource reads native and ERC-20 balances of one wallet.
type CustodySource struct {
	name           string
	chain          ChainReader
	holder         common.Address
	nativeSymbol   string
	nativeDecimals int32
	tokens         []resolvedToken
}

type resolvedToken struct {
	Token
	addr common.Address
}

func NewCustodySource(chain ChainReader, cfg CustodyConfig) (*CustodySource, error) {
	holder, err := validAddress("wallet", cfg.Address)
	if err != nil {
		return nil, err
	}

	s := &CustodySource{
		name:           cfg.Name,
		chain:          chain,
		holder:         holder,
		nativeSymbol:   cfg.NativeSymbol,
		nativeDecimals: cfg.NativeDecimals,
	}
	for _, t := range cfg.Tokens {
		addr, err := validAddress("token "+t.Symbol, t.Address)
		if err != nil {
			return nil, err
		}
		s.tokens = append(s.tokens, resolvedToken{Token: t, addr: addr})
	}
	return s, nil
}

func (s *CustodySource) Name() string            { return s.name }
func (s *CustodySource) Kind() domain.SourceKind { return domain.SourceKindCustody }

func (s *CustodySource) GetBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)

	if s.nativeSymbol != "" {
		wei, err := s.chain.BalanceAt(ctx, s.holder, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "native balance of %s", s.holder.Hex())
		}
		if err := addBalance(out, s.nativeSymbol, scaled(wei, s.nativeDecimals).String()); err != nil {
			return nil, err
		}
	}

	for _, t := range s.tokens {
		raw, err := tokenBalance(ctx, s.chain, t.addr, s.holder)
		if err != nil {
			return nil, err
		}
		if err := addBalance(out, t.Symbol, scaled(raw, t.Decimals).String()); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *CustodySource) IsReachable(ctx context.Context) bool {
	_, err := s.chain.BlockNumber(ctx)
	return err == nil
}
