package preflight

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrHealthFactorBreach the lending position fell below the configured floor.
var ErrHealthFactorBreach = errors.New("health factor below minimum")

// NewHealthGuard returns a check run between ladder rungs. It fails when
// the health factor drops under minimum or cannot be read.
func NewHealthGuard(source HealthFactorSource, minimum decimal.Decimal, timeout time.Duration) func(ctx context.Context) error {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		hf, err := source.HealthFactor(hctx)
		if err != nil {
			return errors.Wrap(err, "read health factor")
		}
		if hf == nil {
			return nil
		}
		if hf.LessThan(minimum) {
			return errors.Wrapf(ErrHealthFactorBreach, "%s < %s", hf.StringFixed(4), minimum.String())
		}
		return nil
	}
}
