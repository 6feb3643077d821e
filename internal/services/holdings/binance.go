package holdings

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

// BinanceSource spot wallet balances, free plus locked.
type BinanceSource struct {
	name   string
	client *binance.Client
}

func NewBinanceSource(name string, client *binance.Client) *BinanceSource {
	return &BinanceSource{name: name, client: client}
}

func (s *BinanceSource) Name() string            { return s.name }
func (s *BinanceSource) Kind() domain.SourceKind { return domain.SourceKindExchange }

func (s *BinanceSource) GetBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	account, err := s.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get binance account balance")
	}

	out := make(map[string]decimal.Decimal)
	for _, b := range account.Balances {
		if err := addBalance(out, b.Asset, b.Free); err != nil {
			return nil, err
		}
		if err := addBalance(out, b.Asset, b.Locked); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *BinanceSource) IsReachable(ctx context.Context) bool {
	return s.client.NewPingService().Do(ctx) == nil
}
