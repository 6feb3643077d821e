package trader

import (
	"context"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"

	"github.com/vadiminshakov/sovereign/internal/domain"
	"github.com/vadiminshakov/sovereign/internal/services/pricer"
)

// BybitExecutor places spot market orders on Bybit.
//
// The create endpoint only acknowledges the order, so the fill is reported
// at the requested quantity and the last ticker price.
type BybitExecutor struct {
	client *bybit.Client
	pricer pricer.Pricer
	quote  string
}

func NewBybitExecutor(client *bybit.Client, p pricer.Pricer, quote string) (*BybitExecutor, error) {
	if client == nil {
		return nil, errors.New("bybit client is nil")
	}
	if p == nil {
		return nil, errors.New("pricer is nil")
	}
	return &BybitExecutor{client: client, pricer: p, quote: quote}, nil
}

func (t *BybitExecutor) PlaceOrder(ctx context.Context, order domain.Order, clientOrderID string) (domain.OrderResult, error) {
	pair := domain.NewPair(order.Asset, t.quote)

	side := bybit.SideBuy
	if order.Side == domain.SideSell {
		side = bybit.SideSell
	}

	linkID := clientOrderID
	resp, err := t.client.V5().Order().CreateOrder(bybit.V5CreateOrderParam{
		Category:    bybit.CategoryV5Spot,
		Symbol:      bybit.SymbolV5(pair.Symbol()),
		Side:        side,
		OrderType:   bybit.OrderTypeMarket,
		Qty:         order.Quantity.String(),
		OrderLinkID: &linkID,
	})
	if err != nil {
		return domain.OrderResult{}, errors.Wrapf(err, "failed to create bybit %s order for %s", order.Side, pair.Symbol())
	}

	price, err := t.pricer.GetPrice(ctx, pair)
	if err != nil {
		// the order is live, only the reported price is missing
		price = order.Price
	}

	return domain.OrderResult{
		OrderID:        resp.Result.OrderID,
		FilledQuantity: order.Quantity,
		AveragePrice:   price,
		Success:        true,
	}, nil
}
