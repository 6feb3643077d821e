package holdings

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

// HyperliquidSource spot balances of an account; Total includes holds.
type HyperliquidSource struct {
	name        string
	info        *hyperliquid.Info
	accountAddr string
}

func NewHyperliquidSource(name string, info *hyperliquid.Info, accountAddr string) (*HyperliquidSource, error) {
	if info == nil {
		return nil, errors.New("hyperliquid info client is nil")
	}
	return &HyperliquidSource{name: name, info: info, accountAddr: accountAddr}, nil
}

func (s *HyperliquidSource) Name() string            { return s.name }
func (s *HyperliquidSource) Kind() domain.SourceKind { return domain.SourceKindExchange }

func (s *HyperliquidSource) GetBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	st, err := s.info.SpotUserState(ctx, s.accountAddr)
	if err != nil {
		return nil, errors.Wrap(err, "get spot user state")
	}

	out := make(map[string]decimal.Decimal)
	for _, b := range st.Balances {
		if err := addBalance(out, b.Coin, b.Total); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *HyperliquidSource) IsReachable(ctx context.Context) bool {
	_, err := s.info.AllMids(ctx)
	return err == nil
}
