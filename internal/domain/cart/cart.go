// Package cart defines the immutable inputs of one pricing pass: the cart
// snapshot, its line items, and the customer placing it.
package cart

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Customer types used for rate resolution and dynamic pricing multipliers.
const (
	CustomerRetail    = "retail"
	CustomerWholesale = "wholesale"
	CustomerVIP       = "vip"
	CustomerExport    = "export"
	CustomerStaff     = "staff"
)

// Item is one cart row. Quantity and prices are validated at the engine
// boundary; LineTotal is never negative for a valid item.
type Item struct {
	ProductID    string
	Category     string
	Quantity     int
	UnitPrice    decimal.Decimal
	LineDiscount decimal.Decimal

	// TaxRate overrides rate resolution when set (the caller already knows
	// the applicable rate). When nil the tax resolver decides.
	TaxRate *decimal.Decimal
	// TaxInclusive marks UnitPrice as already containing VAT.
	TaxInclusive bool
}

// LineTotal returns quantity*unitPrice - lineDiscount.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity))).Sub(i.LineDiscount)
}

// Cart is an ordered collection of items, immutable during one pricing pass.
type Cart struct {
	Items    []Item
	Currency string
}

// Subtotal returns the sum of line totals before any transaction-level
// discount.
func (c Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range c.Items {
		sum = sum.Add(it.LineTotal())
	}
	return sum
}

// TotalQuantity returns the sum of quantities across all items.
func (c Cart) TotalQuantity() int {
	total := 0
	for _, it := range c.Items {
		total += it.Quantity
	}
	return total
}

// Customer carries the attributes the engine needs for eligibility and rate
// resolution. A nil *Customer means an anonymous retail sale.
type Customer struct {
	ID    string
	Group string
	// Type is one of the Customer* constants.
	Type string
	// TRN is the customer's tax registration number, when known. Export
	// customers with a TRN fall under the reverse-charge mechanism.
	TRN string
}

// InvalidItemError indicates a line item that fails boundary validation.
type InvalidItemError struct {
	ProductID string
	Reason    string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("invalid item %s: %s", e.ProductID, e.Reason)
}

// Validate checks the cart invariants: positive quantities, non-negative
// prices, and line discounts that do not push a line total negative.
func (c Cart) Validate() error {
	for _, it := range c.Items {
		switch {
		case it.Quantity <= 0:
			return &InvalidItemError{ProductID: it.ProductID, Reason: "quantity must be greater than 0"}
		case it.UnitPrice.IsNegative():
			return &InvalidItemError{ProductID: it.ProductID, Reason: "unit price must not be negative"}
		case it.LineDiscount.IsNegative():
			return &InvalidItemError{ProductID: it.ProductID, Reason: "line discount must not be negative"}
		case it.LineTotal().IsNegative():
			return &InvalidItemError{ProductID: it.ProductID, Reason: "line discount exceeds line amount"}
		}
	}
	return nil
}
