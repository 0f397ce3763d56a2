// Package pricing is the orchestrator: one Quote call runs validation,
// promotions, tax, and currency conversion in the fixed order the accounting
// identity depends on.
package pricing

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/oudhouse/pricing-engine/internal/currency"
	"github.com/oudhouse/pricing-engine/internal/domain/cart"
	"github.com/oudhouse/pricing-engine/internal/domain/money"
	"github.com/oudhouse/pricing-engine/internal/domain/promotion"
	"github.com/oudhouse/pricing-engine/internal/domain/tax"
)

// ErrEmptyCart rejects quote requests with no line items.
var ErrEmptyCart = errors.New("cart has no items")

// Converter turns amounts from one currency into another. Implemented by
// currency.Service; a fixed-rate fake in tests.
type Converter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, currency.Rate, error)
}

// QuoteRequest is the full input of one pricing pass.
type QuoteRequest struct {
	Cart     cart.Cart
	Customer *cart.Customer
	// Country is the ISO country code of the place of supply.
	Country string
	StoreID string
	// PromotionIDs are explicitly selected promotions. Unknown ids fail the
	// quote before any usage is consumed.
	PromotionIDs []uuid.UUID
	// AutoApply selects every eligible active promotion instead of an
	// explicit list.
	AutoApply bool
	// DisplayCurrency, when set and different from the cart currency,
	// attaches converted totals to the result.
	DisplayCurrency string
	// CashRounding snaps the grand total to the currency's smallest
	// physical denomination.
	CashRounding bool
}

// LineQuote is the priced view of one cart line.
type LineQuote struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
	Rate      decimal.Decimal
	Treatment tax.Treatment
}

// ConvertedTotals mirrors the headline totals in the display currency.
type ConvertedTotals struct {
	Currency      string
	Rate          decimal.Decimal
	RateSource    string
	Subtotal      decimal.Decimal
	TotalDiscount decimal.Decimal
	TotalVAT      decimal.Decimal
	GrandTotal    decimal.Decimal
	// Degraded marks rates served from the static fallback table.
	Degraded bool
}

// Result is the complete outcome of one quote: per-line detail, applied
// promotions, the VAT breakdown, and totals satisfying
// grand = subtotal - discount + vat within one minor unit.
type Result struct {
	Currency      string
	Lines         []LineQuote
	Subtotal      decimal.Decimal
	Promotions    []promotion.Allocation
	TotalDiscount decimal.Decimal
	Breakdown     []tax.BreakdownEntry
	TotalVAT      decimal.Decimal
	GrandTotal    decimal.Decimal
	Converted     *ConvertedTotals
	IssuedAt      time.Time
}

// Treatment reports the transaction-level tax treatment for reporting:
// reverse charge if any line is reverse charged, otherwise the treatment
// shared by all lines, defaulting to standard for mixed carts.
func (r *Result) Treatment() tax.Treatment {
	if len(r.Lines) == 0 {
		return tax.TreatmentStandard
	}
	first := r.Lines[0].Treatment
	uniform := true
	for _, l := range r.Lines {
		if l.Treatment == tax.TreatmentReverseCharge {
			return tax.TreatmentReverseCharge
		}
		if l.Treatment != first {
			uniform = false
		}
	}
	if uniform {
		return first
	}
	return tax.TreatmentStandard
}

// Service wires the domain engines into the quote pipeline.
type Service struct {
	promos   *promotion.Engine
	resolver *tax.Resolver
	fx       Converter
	lg       *zap.Logger
	now      func() time.Time
}

// NewService creates the orchestrator. fx may be nil when currency
// conversion is not wired; quotes requesting a display currency then fail.
func NewService(promos *promotion.Engine, resolver *tax.Resolver, fx Converter, lg *zap.Logger) *Service {
	return &Service{promos: promos, resolver: resolver, fx: fx, lg: lg, now: time.Now}
}

// Quote prices one cart end to end. The stages run in a fixed order:
// validation, promotion application against the original cart, per-line rate
// resolution, transaction tax with the promotion totals as transaction-level
// discounts, and finally optional display-currency conversion.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*Result, error) {
	if len(req.Cart.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if !money.Known(req.Cart.Currency) {
		return nil, errors.Wrap(money.ErrUnknownCurrency, req.Cart.Currency)
	}
	if err := req.Cart.Validate(); err != nil {
		return nil, err
	}

	applied, err := s.applyPromotions(ctx, req)
	if err != nil {
		return nil, err
	}

	lines := make([]LineQuote, len(req.Cart.Items))
	rates := make([]decimal.Decimal, len(req.Cart.Items))
	netSubtotal := decimal.Zero
	for i, item := range req.Cart.Items {
		dec := s.resolve(item, req.Customer, req.Country)
		rates[i] = dec.Rate
		calc, err := tax.ComputeLine(item, dec.Rate)
		if err != nil {
			return nil, err
		}
		netSubtotal = netSubtotal.Add(calc.Net)
		lines[i] = LineQuote{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal(),
			Rate:      dec.Rate,
			Treatment: dec.Treatment,
		}
	}

	discounts := make([]decimal.Decimal, 0, len(applied.Allocations))
	for _, a := range applied.Allocations {
		discounts = append(discounts, a.Total)
	}

	code := req.Cart.Currency
	txn, err := tax.ComputeTransaction(req.Cart.Items, rates, discounts, code)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Currency:      code,
		Lines:         lines,
		Subtotal:      money.Round(netSubtotal, code),
		Promotions:    applied.Allocations,
		TotalDiscount: money.Round(applied.Total, code),
		Breakdown:     txn.Breakdown,
		TotalVAT:      txn.VAT,
		GrandTotal:    txn.Gross,
		IssuedAt:      s.now(),
	}

	// Cross-check the headline identity against the independently bucketed
	// transaction computation.
	expected := res.Subtotal.Sub(res.TotalDiscount).Add(res.TotalVAT)
	if !money.WithinTolerance(res.GrandTotal, expected, code) {
		return nil, &tax.ConsistencyError{
			Expected:  expected,
			Actual:    res.GrandTotal,
			Tolerance: money.Tolerance(code),
		}
	}

	if req.CashRounding {
		res.GrandTotal = money.RoundCash(res.GrandTotal, code)
	}

	if req.DisplayCurrency != "" && req.DisplayCurrency != code {
		conv, err := s.convert(ctx, res, req.DisplayCurrency)
		if err != nil {
			return nil, err
		}
		res.Converted = conv
	}
	return res, nil
}

func (s *Service) applyPromotions(ctx context.Context, req QuoteRequest) (promotion.Applied, error) {
	switch {
	case len(req.PromotionIDs) > 0:
		applied, err := s.promos.ApplyByIDs(ctx, req.Cart, req.PromotionIDs, req.Customer)
		if err != nil {
			return promotion.Applied{}, errors.Wrap(err, "apply promotions")
		}
		return applied, nil
	case req.AutoApply:
		candidates, err := s.promos.Applicable(ctx, req.Cart, req.Customer, req.StoreID)
		if err != nil {
			return promotion.Applied{}, errors.Wrap(err, "find promotions")
		}
		rules := make([]promotion.Rule, len(candidates))
		for i, c := range candidates {
			rules[i] = c.Rule
		}
		applied, err := s.promos.Apply(ctx, req.Cart, rules, req.Customer)
		if err != nil {
			return promotion.Applied{}, errors.Wrap(err, "apply promotions")
		}
		return applied, nil
	default:
		return promotion.Applied{}, nil
	}
}

// resolve decides the rate for one line: the caller's explicit rate wins,
// otherwise the jurisdiction resolver.
func (s *Service) resolve(item cart.Item, customer *cart.Customer, country string) tax.Decision {
	if item.TaxRate != nil {
		t := tax.TreatmentStandard
		if item.TaxRate.IsZero() {
			t = tax.TreatmentZeroRated
		}
		return tax.Decision{Rate: *item.TaxRate, Treatment: t}
	}
	return s.resolver.Resolve(item.Category, customer, country)
}

func (s *Service) convert(ctx context.Context, res *Result, target string) (*ConvertedTotals, error) {
	if s.fx == nil {
		return nil, errors.Wrap(currency.ErrRateUnavailable, "conversion not configured")
	}
	grand, rate, err := s.fx.Convert(ctx, res.GrandTotal, res.Currency, target)
	if err != nil {
		return nil, errors.Wrapf(err, "convert to %s", target)
	}
	if rate.Degraded {
		s.lg.Warn("quote converted on a degraded rate",
			zap.String("from", res.Currency), zap.String("to", target))
	}
	conv := &ConvertedTotals{
		Currency:      target,
		Rate:          rate.Value,
		RateSource:    rate.Source,
		GrandTotal:    grand,
		Subtotal:      money.Round(res.Subtotal.Mul(rate.Value), target),
		TotalDiscount: money.Round(res.TotalDiscount.Mul(rate.Value), target),
		TotalVAT:      money.Round(res.TotalVAT.Mul(rate.Value), target),
		Degraded:      rate.Degraded,
	}
	return conv, nil
}
