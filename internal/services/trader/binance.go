package trader

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

// BinanceExecutor places spot market orders on Binance.
type BinanceExecutor struct {
	client *binance.Client
	quote  string
}

func NewBinanceExecutor(client *binance.Client, quote string) (*BinanceExecutor, error) {
	if client == nil {
		return nil, errors.New("binance client is nil")
	}
	return &BinanceExecutor{client: client, quote: quote}, nil
}

func (t *BinanceExecutor) PlaceOrder(ctx context.Context, order domain.Order, clientOrderID string) (domain.OrderResult, error) {
	pair := domain.NewPair(order.Asset, t.quote)

	resp, err := t.client.NewCreateOrderService().Symbol(pair.Symbol()).
		Side(binanceSide(order.Side)).Type(binance.OrderTypeMarket).
		Quantity(order.Quantity.String()).
		NewClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		return domain.OrderResult{}, errors.Wrapf(err, "failed to create binance %s order for %s", order.Side, pair.Symbol())
	}

	executedQty, err := decimal.NewFromString(resp.ExecutedQuantity)
	if err != nil {
		return domain.OrderResult{}, errors.Wrap(err, "failed to parse executed quantity")
	}
	quoteQty, err := decimal.NewFromString(resp.CummulativeQuoteQuantity)
	if err != nil {
		return domain.OrderResult{}, errors.Wrap(err, "failed to parse cumulative quote quantity")
	}

	result := domain.OrderResult{
		OrderID:        resp.ClientOrderID,
		FilledQuantity: executedQty,
		Success:        resp.Status == binance.OrderStatusTypeFilled,
	}
	if executedQty.IsPositive() {
		result.AveragePrice = quoteQty.Div(executedQty)
	}
	if !result.Success {
		result.ErrorDetail = "order status " + string(resp.Status)
	}

	return result, nil
}

func binanceSide(side domain.Side) binance.SideType {
	if side == domain.SideSell {
		return binance.SideTypeSell
	}
	return binance.SideTypeBuy
}
