package tax

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/oudhouse/pricing-engine/internal/domain/cart"
	"github.com/oudhouse/pricing-engine/internal/domain/money"
)

// BreakdownEntry aggregates taxable base and VAT at one rate.
type BreakdownEntry struct {
	Rate    decimal.Decimal
	Taxable decimal.Decimal
	VAT     decimal.Decimal
}

// TransactionTax is the tax result of one whole transaction: totals plus the
// rate-keyed breakdown downstream invoices print.
type TransactionTax struct {
	Net       decimal.Decimal
	VAT       decimal.Decimal
	Gross     decimal.Decimal
	Discount  decimal.Decimal
	Breakdown []BreakdownEntry
}

// ComputeLine applies Compute to one cart item's discounted base
// (quantity*unitPrice - lineDiscount) at the item's rate.
func ComputeLine(item cart.Item, rate decimal.Decimal) (Calculation, error) {
	base := item.LineTotal()
	if base.IsNegative() {
		return Calculation{}, &ValidationError{Field: "line total", Reason: "must not be negative"}
	}
	return Compute(base, rate, item.TaxInclusive)
}

// ComputeTransaction sums per-line VAT into a rate-keyed breakdown, then
// apportions transaction-level discounts across the rate buckets pro-rata to
// each bucket's taxable share and restates the VAT on the reduced bases.
//
// The order — compute line VAT first, then adjust for the transaction
// discount — changes the legal tax base if reversed and must not be.
//
// The returned totals satisfy gross = net + vat within one minor unit of the
// currency; a larger deviation aborts with a ConsistencyError.
func ComputeTransaction(items []cart.Item, rates []decimal.Decimal, txnDiscounts []decimal.Decimal, currencyCode string) (*TransactionTax, error) {
	if len(items) != len(rates) {
		return nil, &ValidationError{Field: "rates", Reason: "one rate per item required"}
	}

	buckets := make(map[string]*BreakdownEntry)
	order := make([]string, 0, 4)
	for i, item := range items {
		calc, err := ComputeLine(item, rates[i])
		if err != nil {
			return nil, err
		}
		key := rates[i].String()
		b, ok := buckets[key]
		if !ok {
			b = &BreakdownEntry{Rate: rates[i]}
			buckets[key] = b
			order = append(order, key)
		}
		b.Taxable = b.Taxable.Add(calc.Net)
		b.VAT = b.VAT.Add(calc.VAT)
	}

	totalDiscount := decimal.Zero
	for _, d := range txnDiscounts {
		if d.IsNegative() {
			return nil, &ValidationError{Field: "discount", Reason: "must not be negative"}
		}
		totalDiscount = totalDiscount.Add(d)
	}

	netBefore := decimal.Zero
	for _, key := range order {
		netBefore = netBefore.Add(buckets[key].Taxable)
	}
	if totalDiscount.GreaterThan(netBefore) {
		return nil, &ValidationError{Field: "discount", Reason: "exceeds transaction subtotal"}
	}

	// Apportion the discount across buckets by taxable share. The last
	// bucket absorbs the rounding remainder so the shares sum exactly.
	if totalDiscount.IsPositive() && netBefore.IsPositive() {
		allocated := decimal.Zero
		for i, key := range order {
			b := buckets[key]
			var share decimal.Decimal
			if i == len(order)-1 {
				share = totalDiscount.Sub(allocated)
			} else {
				share = totalDiscount.Mul(b.Taxable).Div(netBefore).Round(4)
				allocated = allocated.Add(share)
			}
			b.Taxable = b.Taxable.Sub(share)
			b.VAT = b.Taxable.Mul(b.Rate).Div(hundred).Round(4)
		}
	}

	result := &TransactionTax{Discount: totalDiscount}
	for _, key := range order {
		b := buckets[key]
		b.Taxable = money.Round(b.Taxable, currencyCode)
		b.VAT = money.Round(b.VAT, currencyCode)
		result.Net = result.Net.Add(b.Taxable)
		result.VAT = result.VAT.Add(b.VAT)
		result.Breakdown = append(result.Breakdown, *b)
	}
	sort.Slice(result.Breakdown, func(i, j int) bool {
		return result.Breakdown[i].Rate.LessThan(result.Breakdown[j].Rate)
	})
	result.Gross = result.Net.Add(result.VAT)

	expected := money.Round(netBefore.Sub(totalDiscount), currencyCode)
	if !money.WithinTolerance(result.Net, expected, currencyCode) {
		return nil, &ConsistencyError{
			Expected:  expected,
			Actual:    result.Net,
			Tolerance: money.Tolerance(currencyCode),
		}
	}
	return result, nil
}
