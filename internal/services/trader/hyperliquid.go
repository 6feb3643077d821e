package trader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	hyperliquid "github.com/sonirico/go-hyperliquid"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

// slippage limit price offset used to emulate a market order with IOC.
const hyperliquidSlippage = 0.005

// HyperliquidExecutor places IOC limit orders on Hyperliquid spot.
type HyperliquidExecutor struct {
	ex          *hyperliquid.Exchange
	info        *hyperliquid.Info
	accountAddr string
}

func NewHyperliquidExecutor(ex *hyperliquid.Exchange, accountAddr string) (*HyperliquidExecutor, error) {
	if ex == nil {
		return nil, errors.New("hyperliquid exchange is nil")
	}
	return &HyperliquidExecutor{ex: ex, info: ex.Info(), accountAddr: accountAddr}, nil
}

// cloid converts a free-form client ID into a valid Hyperliquid cloid (0x + 32 hex chars).
func cloid(id string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(id)))
	return "0x" + hex.EncodeToString(sum[:16])
}

func (t *HyperliquidExecutor) PlaceOrder(ctx context.Context, order domain.Order, clientOrderID string) (domain.OrderResult, error) {
	isBuy := order.Side == domain.SideBuy
	size, _ := order.Quantity.Float64()

	px, err := t.ex.SlippagePrice(ctx, order.Asset, isBuy, hyperliquidSlippage, nil)
	if err != nil {
		return domain.OrderResult{}, errors.Wrap(err, "slippage price")
	}

	id := cloid(clientOrderID)
	req := hyperliquid.CreateOrderRequest{
		Coin:          order.Asset,
		IsBuy:         isBuy,
		Price:         px,
		Size:          size,
		ClientOrderID: &id,
		OrderType: hyperliquid.OrderType{
			Limit: &hyperliquid.LimitOrderType{Tif: hyperliquid.TifIoc},
		},
	}
	if _, err := t.ex.Order(ctx, req, nil); err != nil {
		return domain.OrderResult{}, errors.Wrapf(err, "failed to place hyperliquid order for %s", order.Asset)
	}

	res, err := t.info.QueryOrderByCloid(ctx, t.accountAddr, id)
	if err != nil {
		return domain.OrderResult{}, errors.Wrap(err, "query order by cloid")
	}

	result := domain.OrderResult{OrderID: id, AveragePrice: decimal.NewFromFloat(px)}
	if res == nil || res.Status != hyperliquid.OrderQueryStatusSuccess {
		result.ErrorDetail = "order not found after placement"
		return result, nil
	}

	if res.Order.Status != hyperliquid.OrderStatusValueFilled {
		result.ErrorDetail = "order status " + string(res.Order.Status)
		return result, nil
	}

	filled := order.Quantity
	if res.Order.Order.OrigSz != "" {
		if d, err := decimal.NewFromString(res.Order.Order.OrigSz); err == nil {
			filled = d
		}
	}
	result.FilledQuantity = filled
	result.Success = true

	return result, nil
}
