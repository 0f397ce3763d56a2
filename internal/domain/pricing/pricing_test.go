package pricing

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oudhouse/pricing-engine/internal/currency"
	"github.com/oudhouse/pricing-engine/internal/domain/cart"
	"github.com/oudhouse/pricing-engine/internal/domain/money"
	"github.com/oudhouse/pricing-engine/internal/domain/promotion"
	"github.com/oudhouse/pricing-engine/internal/domain/tax"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// fakeRepo is an in-memory promotion.Repository.
type fakeRepo struct {
	rules map[uuid.UUID]*promotion.Rule
}

func newFakeRepo(rules ...*promotion.Rule) *fakeRepo {
	f := &fakeRepo{rules: make(map[uuid.UUID]*promotion.Rule)}
	for _, r := range rules {
		f.rules[r.ID] = r
	}
	return f
}

func (f *fakeRepo) Active(_ context.Context, storeID string) ([]promotion.Rule, error) {
	var out []promotion.Rule
	for _, r := range f.rules {
		if r.StoreID == "" || r.StoreID == storeID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetByIDs(_ context.Context, ids []uuid.UUID) ([]promotion.Rule, error) {
	var out []promotion.Rule
	for _, id := range ids {
		if r, ok := f.rules[id]; ok {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRepo) ConsumeUse(_ context.Context, id uuid.UUID) error {
	r, ok := f.rules[id]
	if !ok {
		return promotion.ErrNotFound
	}
	if r.UsageLimit > 0 && r.UsageCount >= r.UsageLimit {
		return promotion.ErrExhausted
	}
	r.UsageCount++
	return nil
}

// fakeConverter converts at one fixed rate.
type fakeConverter struct {
	rate     decimal.Decimal
	degraded bool
}

func (f *fakeConverter) Convert(_ context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, currency.Rate, error) {
	r := currency.Rate{Base: from, Target: to, Value: f.rate, Source: "provider:test", Degraded: f.degraded}
	if f.degraded {
		r.Source = currency.SourceFallback
	}
	return money.Round(amount.Mul(f.rate), to), r, nil
}

func newTestService(repo promotion.Repository, fx Converter) *Service {
	lg := zap.NewNop()
	return NewService(
		promotion.NewEngine(repo, lg),
		tax.NewResolver(tax.DefaultResolverConfig()),
		fx,
		lg,
	)
}

func pctRule(percent string, priority int) *promotion.Rule {
	return &promotion.Rule{
		ID:         uuid.New(),
		Name:       percent + " percent off",
		Kind:       promotion.KindPercentage,
		Priority:   priority,
		Percentage: &promotion.PercentagePayload{Percent: d(percent)},
	}
}

func oudCart(qty int, unitPrice string) cart.Cart {
	return cart.Cart{
		Currency: "AED",
		Items: []cart.Item{
			{ProductID: "oud-royal-12ml", Category: "fragrance", Quantity: qty, UnitPrice: d(unitPrice)},
		},
	}
}

func TestQuoteStandardRate(t *testing.T) {
	s := newTestService(newFakeRepo(), nil)

	res, err := s.Quote(context.Background(), QuoteRequest{
		Cart:    oudCart(2, "1000"),
		Country: "AE",
	})
	require.NoError(t, err)
	assert.True(t, res.Subtotal.Equal(d("2000")), "subtotal %s", res.Subtotal)
	assert.True(t, res.TotalDiscount.IsZero())
	assert.True(t, res.TotalVAT.Equal(d("100")), "vat %s", res.TotalVAT)
	assert.True(t, res.GrandTotal.Equal(d("2100")), "grand %s", res.GrandTotal)
	require.Len(t, res.Lines, 1)
	assert.Equal(t, tax.TreatmentStandard, res.Lines[0].Treatment)
	assert.Equal(t, tax.TreatmentStandard, res.Treatment())
}

func TestQuoteWithPromotion(t *testing.T) {
	rule := pctRule("10", 10)
	s := newTestService(newFakeRepo(rule), nil)

	res, err := s.Quote(context.Background(), QuoteRequest{
		Cart:         oudCart(2, "1000"),
		Country:      "AE",
		PromotionIDs: []uuid.UUID{rule.ID},
	})
	require.NoError(t, err)
	assert.True(t, res.TotalDiscount.Equal(d("200")))
	assert.True(t, res.TotalVAT.Equal(d("90")), "vat on the discounted base, got %s", res.TotalVAT)
	assert.True(t, res.GrandTotal.Equal(d("1890")))
	// grand = subtotal - discount + vat
	identity := res.Subtotal.Sub(res.TotalDiscount).Add(res.TotalVAT)
	assert.True(t, res.GrandTotal.Equal(identity))
	require.Len(t, res.Promotions, 1)
	assert.Equal(t, rule.ID, res.Promotions[0].RuleID)
}

func TestQuoteAutoApplyIsAdditive(t *testing.T) {
	a := pctRule("10", 10)
	b := pctRule("5", 5)
	s := newTestService(newFakeRepo(a, b), nil)

	res, err := s.Quote(context.Background(), QuoteRequest{
		Cart:      oudCart(1, "1000"),
		Country:   "AE",
		AutoApply: true,
	})
	require.NoError(t, err)
	// 10% and 5% of the ORIGINAL subtotal, never compounded.
	assert.True(t, res.TotalDiscount.Equal(d("150")), "discount %s", res.TotalDiscount)
	assert.True(t, res.TotalVAT.Equal(d("42.5")), "vat %s", res.TotalVAT)
	assert.True(t, res.GrandTotal.Equal(d("892.5")))
}

func TestQuoteUnknownPromotion(t *testing.T) {
	s := newTestService(newFakeRepo(), nil)
	_, err := s.Quote(context.Background(), QuoteRequest{
		Cart:         oudCart(1, "100"),
		Country:      "AE",
		PromotionIDs: []uuid.UUID{uuid.New()},
	})
	assert.ErrorIs(t, err, promotion.ErrNotFound)
}

func TestQuoteRejectsBadInput(t *testing.T) {
	s := newTestService(newFakeRepo(), nil)
	ctx := context.Background()

	_, err := s.Quote(ctx, QuoteRequest{Cart: cart.Cart{Currency: "AED"}})
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = s.Quote(ctx, QuoteRequest{Cart: cart.Cart{
		Currency: "???",
		Items:    []cart.Item{{ProductID: "p", Quantity: 1, UnitPrice: d("1")}},
	}})
	assert.ErrorIs(t, err, money.ErrUnknownCurrency)

	_, err = s.Quote(ctx, QuoteRequest{Cart: cart.Cart{
		Currency: "AED",
		Items:    []cart.Item{{ProductID: "p", Quantity: 0, UnitPrice: d("1")}},
	}})
	var invalid *cart.InvalidItemError
	assert.ErrorAs(t, err, &invalid)
}

func TestQuoteExplicitRateOverride(t *testing.T) {
	s := newTestService(newFakeRepo(), nil)
	rate := d("15")
	res, err := s.Quote(context.Background(), QuoteRequest{
		Cart: cart.Cart{
			Currency: "AED",
			Items: []cart.Item{
				{ProductID: "p", Quantity: 1, UnitPrice: d("100"), TaxRate: &rate},
			},
		},
		Country: "AE", // resolver would say 5; the explicit rate wins
	})
	require.NoError(t, err)
	assert.True(t, res.TotalVAT.Equal(d("15")))
	assert.True(t, res.GrandTotal.Equal(d("115")))
}

func TestQuoteInclusivePrices(t *testing.T) {
	s := newTestService(newFakeRepo(), nil)
	res, err := s.Quote(context.Background(), QuoteRequest{
		Cart: cart.Cart{
			Currency: "AED",
			Items: []cart.Item{
				{ProductID: "p", Quantity: 1, UnitPrice: d("105"), TaxInclusive: true},
			},
		},
		Country: "AE",
	})
	require.NoError(t, err)
	assert.True(t, res.Subtotal.Equal(d("100")), "net subtotal %s", res.Subtotal)
	assert.True(t, res.TotalVAT.Equal(d("5")))
	assert.True(t, res.GrandTotal.Equal(d("105")))
}

func TestQuoteReverseCharge(t *testing.T) {
	s := newTestService(newFakeRepo(), nil)
	res, err := s.Quote(context.Background(), QuoteRequest{
		Cart:     oudCart(1, "500"),
		Customer: &cart.Customer{ID: "c1", Type: cart.CustomerExport, TRN: "100123456789012"},
		Country:  "DE",
	})
	require.NoError(t, err)
	assert.True(t, res.TotalVAT.IsZero())
	assert.True(t, res.GrandTotal.Equal(d("500")))
	assert.Equal(t, tax.TreatmentReverseCharge, res.Treatment())
}

func TestQuoteCashRounding(t *testing.T) {
	s := newTestService(newFakeRepo(), nil)
	res, err := s.Quote(context.Background(), QuoteRequest{
		Cart:         oudCart(1, "99.98"),
		Country:      "AE",
		CashRounding: true,
	})
	require.NoError(t, err)
	// 99.98 + 5.00 VAT = 104.98, snapped to the 0.05 fils increment.
	assert.True(t, res.GrandTotal.Equal(d("105")), "grand %s", res.GrandTotal)
}

func TestQuoteConverted(t *testing.T) {
	s := newTestService(newFakeRepo(), &fakeConverter{rate: d("0.2723")})
	res, err := s.Quote(context.Background(), QuoteRequest{
		Cart:            oudCart(2, "1000"),
		Country:         "AE",
		DisplayCurrency: "USD",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Converted)
	assert.Equal(t, "USD", res.Converted.Currency)
	assert.True(t, res.Converted.GrandTotal.Equal(d("571.83")), "got %s", res.Converted.GrandTotal)
	assert.True(t, res.Converted.Subtotal.Equal(d("544.6")))
	assert.False(t, res.Converted.Degraded)

	// AED totals are untouched by conversion.
	assert.True(t, res.GrandTotal.Equal(d("2100")))
}

func TestQuoteConvertedDegraded(t *testing.T) {
	s := newTestService(newFakeRepo(), &fakeConverter{rate: d("0.27"), degraded: true})
	res, err := s.Quote(context.Background(), QuoteRequest{
		Cart:            oudCart(1, "100"),
		Country:         "AE",
		DisplayCurrency: "USD",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Converted)
	assert.True(t, res.Converted.Degraded)
	assert.Equal(t, currency.SourceFallback, res.Converted.RateSource)
}

func TestQuoteNoConverterConfigured(t *testing.T) {
	s := newTestService(newFakeRepo(), nil)
	_, err := s.Quote(context.Background(), QuoteRequest{
		Cart:            oudCart(1, "100"),
		Country:         "AE",
		DisplayCurrency: "USD",
	})
	assert.ErrorIs(t, err, currency.ErrRateUnavailable)
}
