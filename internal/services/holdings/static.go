package holdings

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/sovereign/internal/domain"
)

// StaticSource manually declared holdings, e.g. a hardware wallet that has
// no queryable endpoint.
type StaticSource struct {
	name     string
	holdings map[string]decimal.Decimal
}

func NewStaticSource(name string, holdings map[string]decimal.Decimal) *StaticSource {
	h := make(map[string]decimal.Decimal, len(holdings))
	for asset, qty := range holdings {
		h[strings.ToUpper(asset)] = qty
	}
	return &StaticSource{name: name, holdings: h}
}

func (s *StaticSource) Name() string            { return s.name }
func (s *StaticSource) Kind() domain.SourceKind { return domain.SourceKindManual }

func (s *StaticSource) GetBalances(context.Context) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(s.holdings))
	for asset, qty := range s.holdings {
		out[asset] = qty
	}
	return out, nil
}

func (s *StaticSource) IsReachable(context.Context) bool { return true }
