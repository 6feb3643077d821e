package holdings

import (
	"context"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

// BybitSource unified trading account wallet balances.
type BybitSource struct {
	name   string
	client *bybit.Client
}

func NewBybitSource(name string, client *bybit.Client) *BybitSource {
	return &BybitSource{name: name, client: client}
}

func (s *BybitSource) Name() string            { return s.name }
func (s *BybitSource) Kind() domain.SourceKind { return domain.SourceKindExchange }

func (s *BybitSource) GetBalances(_ context.Context) (map[string]decimal.Decimal, error) {
	res, err := s.client.V5().Account().GetWalletBalance(bybit.AccountTypeV5("UNIFIED"), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get bybit wallet balance")
	}

	out := make(map[string]decimal.Decimal)
	if len(res.Result.List) == 0 {
		return out, nil
	}
	for _, coin := range res.Result.List[0].Coin {
		if err := addBalance(out, string(coin.Coin), coin.WalletBalance); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *BybitSource) IsReachable(ctx context.Context) bool {
	_, err := s.GetBalances(ctx)
	return err == nil
}
