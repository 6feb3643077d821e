package trader

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/sovereign/internal/domain"
	"github.com/vadiminshakov/sovereign/internal/services/pricer"
)

// FillJournal records paper fills.
type FillJournal interface {
	SaveFill(fill domain.PaperFill) error
}

// PaperExecutor fills orders against an in-memory wallet at the current
// price. No capital is touched.
type PaperExecutor struct {
	mu      sync.Mutex
	pricer  pricer.Pricer
	journal FillJournal
	quote   string
	wallet  map[string]decimal.Decimal
	seen    map[string]struct{}
	logger  *zap.Logger
	now     func() time.Time
}

// NewPaperExecutor creates a paper executor whose wallet starts at balances.
func NewPaperExecutor(p pricer.Pricer, journal FillJournal, quote string, balances map[string]decimal.Decimal, logger *zap.Logger) (*PaperExecutor, error) {
	if p == nil {
		return nil, errors.New("pricer is nil")
	}
	if journal == nil {
		return nil, errors.New("fill journal is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	wallet := make(map[string]decimal.Decimal, len(balances))
	for asset, qty := range balances {
		wallet[asset] = qty
	}

	return &PaperExecutor{
		pricer:  p,
		journal: journal,
		quote:   quote,
		wallet:  wallet,
		seen:    make(map[string]struct{}),
		logger:  logger.With(zap.String("component", "paper-executor")),
		now:     time.Now,
	}, nil
}

// PlaceOrder fills the order in full at the current price. A wallet that
// cannot cover the order yields an unsuccessful result.
func (t *PaperExecutor) PlaceOrder(ctx context.Context, order domain.Order, clientOrderID string) (domain.OrderResult, error) {
	price, err := t.pricer.GetPrice(ctx, domain.NewPair(order.Asset, t.quote))
	if err != nil {
		return domain.OrderResult{}, errors.Wrapf(err, "failed to price %s", order.Asset)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	result := domain.OrderResult{OrderID: clientOrderID}
	if _, dup := t.seen[clientOrderID]; dup {
		result.ErrorDetail = "duplicate client order id " + clientOrderID
		return result, nil
	}

	notional := order.Quantity.Mul(price)
	quoteDelta := notional
	switch order.Side {
	case domain.SideBuy:
		if t.wallet[t.quote].LessThan(notional) {
			result.ErrorDetail = "insufficient " + t.quote + " balance"
			return result, nil
		}
		quoteDelta = notional.Neg()
	case domain.SideSell:
		if t.wallet[order.Asset].LessThan(order.Quantity) {
			result.ErrorDetail = "insufficient " + order.Asset + " balance"
			return result, nil
		}
	default:
		return domain.OrderResult{}, errors.Errorf("unknown side %q", order.Side)
	}

	fill := domain.PaperFill{
		ClientOrderID: clientOrderID,
		Asset:         order.Asset,
		Side:          order.Side,
		Quantity:      order.Quantity,
		Price:         price,
		QuoteAsset:    t.quote,
		QuoteDelta:    quoteDelta,
		FilledAt:      t.now().UTC(),
	}
	if err := t.journal.SaveFill(fill); err != nil {
		return domain.OrderResult{}, errors.Wrap(err, "journal paper fill")
	}

	if order.Side == domain.SideBuy {
		t.wallet[order.Asset] = t.wallet[order.Asset].Add(order.Quantity)
	} else {
		t.wallet[order.Asset] = t.wallet[order.Asset].Sub(order.Quantity)
	}
	t.wallet[t.quote] = t.wallet[t.quote].Add(quoteDelta)
	t.seen[clientOrderID] = struct{}{}

	t.logger.Info("paper order filled",
		zap.String("client_order_id", clientOrderID),
		zap.String("side", order.Side.String()),
		zap.String("asset", order.Asset),
		zap.String("quantity", order.Quantity.String()),
		zap.String("price", price.String()))

	result.FilledQuantity = order.Quantity
	result.AveragePrice = price
	result.Success = true
	return result, nil
}

// ObserveSnapshot reseeds the wallet from the holdings the run starts with.
func (t *PaperExecutor) ObserveSnapshot(snapshot domain.HoldingsSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.wallet = snapshot.Balances()
}

// Balance returns the paper wallet balance of asset.
func (t *PaperExecutor) Balance(asset string) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wallet[asset]
}
