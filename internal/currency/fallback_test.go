package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticRate(t *testing.T) {
	t.Run("direct", func(t *testing.T) {
		r, ok := staticRate("AED", "USD")
		require.True(t, ok)
		assert.True(t, r.Equal(d("0.2723")))
	})

	t.Run("reciprocal", func(t *testing.T) {
		r, ok := staticRate("USD", "AED")
		require.True(t, ok)
		want := decimal.NewFromInt(1).Div(d("0.2723")).Round(8)
		assert.True(t, r.Equal(want))
	})

	t.Run("identity", func(t *testing.T) {
		r, ok := staticRate("SAR", "SAR")
		require.True(t, ok)
		assert.True(t, r.Equal(d("1")))
	})

	t.Run("crossed through base", func(t *testing.T) {
		r, ok := staticRate("SAR", "USD")
		require.True(t, ok)
		sarToAED := decimal.NewFromInt(1).Div(d("1.0210")).Round(8)
		want := sarToAED.Mul(d("0.2723")).Round(8)
		assert.True(t, r.Equal(want), "got %s want %s", r, want)
	})

	t.Run("unknown pair", func(t *testing.T) {
		_, ok := staticRate("XXX", "USD")
		assert.False(t, ok)
		_, ok = staticRate("AED", "XXX")
		assert.False(t, ok)
	})
}
