package currency

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/oudhouse/pricing-engine/internal/domain/cart"
	"github.com/oudhouse/pricing-engine/internal/domain/money"
)

// Customer-type price multipliers, applied to the base price BEFORE
// conversion. Table-driven so commercial policy changes need no code.
var (
	multiplierMu sync.RWMutex
	multipliers  = map[string]decimal.Decimal{
		cart.CustomerRetail:    decimal.RequireFromString("1"),
		cart.CustomerWholesale: decimal.RequireFromString("0.85"),
		cart.CustomerVIP:       decimal.RequireFromString("0.90"),
		cart.CustomerExport:    decimal.RequireFromString("0.95"),
		cart.CustomerStaff:     decimal.RequireFromString("0.80"),
	}
)

// SetMultiplier registers or replaces the price multiplier for a customer
// type.
func SetMultiplier(customerType string, m decimal.Decimal) {
	multiplierMu.Lock()
	defer multiplierMu.Unlock()
	multipliers[customerType] = m
}

// Multiplier returns the price multiplier for a customer type, defaulting to
// 1 for unknown types.
func Multiplier(customerType string) decimal.Decimal {
	multiplierMu.RLock()
	defer multiplierMu.RUnlock()
	if m, ok := multipliers[customerType]; ok {
		return m
	}
	return decimal.NewFromInt(1)
}

// PriceFor computes the customer-facing price of a base amount: the
// customer-type multiplier is applied first, then the amount is converted to
// the display currency and snapped to its cash increment.
func (s *Service) PriceFor(ctx context.Context, base decimal.Decimal, customerType, from, to string) (decimal.Decimal, Rate, error) {
	adjusted := base.Mul(Multiplier(customerType))
	converted, rate, err := s.Convert(ctx, adjusted, from, to)
	if err != nil {
		return decimal.Zero, Rate{}, err
	}
	return money.RoundCash(converted, to), rate, nil
}
