package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaperFill journal entry of an order filled by the paper executor.
type PaperFill struct {
	ClientOrderID string          `json:"client_order_id"`
	Asset         string          `json:"asset"`
	Side          Side            `json:"side"`
	Quantity      decimal.Decimal `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	QuoteAsset    string          `json:"quote_asset"`
	// QuoteDelta signed change of the quote balance caused by the fill.
	QuoteDelta decimal.Decimal `json:"quote_delta"`
	FilledAt   time.Time       `json:"filled_at"`
}

// PaperFillEntry a journaled fill with its position in the log.
type PaperFillEntry struct {
	Index uint64
	Fill  PaperFill
}
