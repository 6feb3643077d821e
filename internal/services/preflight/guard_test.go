package preflight

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthGuard(t *testing.T) {
	minimum := dec("1.5")

	t.Run("healthy", func(t *testing.T) {
		guard := NewHealthGuard(&fakeHealth{hf: ptr(dec("2"))}, minimum, time.Second)
		assert.NoError(t, guard(context.Background()))
	})

	t.Run("breach", func(t *testing.T) {
		guard := NewHealthGuard(&fakeHealth{hf: ptr(dec("1.1"))}, minimum, time.Second)
		err := guard(context.Background())
		require.ErrorIs(t, err, ErrHealthFactorBreach)
	})

	t.Run("no position", func(t *testing.T) {
		guard := NewHealthGuard(&fakeHealth{}, minimum, time.Second)
		assert.NoError(t, guard(context.Background()))
	})

	t.Run("read failure", func(t *testing.T) {
		guard := NewHealthGuard(&fakeHealth{err: errors.New("rpc down")}, minimum, 0)
		assert.Error(t, guard(context.Background()))
	})
}
