// Package tax computes VAT at the line and transaction level, resolves
// applicable rates from a table-driven jurisdiction config, validates tax
// registration numbers, and aggregates priced transactions into VAT-return
// reports.
package tax

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Treatment classifies how a supply is taxed.
type Treatment string

const (
	// TreatmentStandard is a supply taxed at the jurisdiction's standard rate.
	TreatmentStandard Treatment = "standard"
	// TreatmentZeroRated is a taxable supply at 0% (exports, zero-rated
	// categories). Distinct from exempt: it still appears on the return.
	TreatmentZeroRated Treatment = "zero_rated"
	// TreatmentExempt is not a taxable supply at all.
	TreatmentExempt Treatment = "exempt"
	// TreatmentReverseCharge shifts VAT accounting to the buyer. The seller
	// charges 0% and the buyer self-assesses.
	TreatmentReverseCharge Treatment = "reverse_charge"
)

// Calculation is the result of one VAT computation: net + vat = gross.
type Calculation struct {
	Net   decimal.Decimal
	VAT   decimal.Decimal
	Gross decimal.Decimal
	Rate  decimal.Decimal
}

// ValidationError indicates malformed input rejected before computation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tax: invalid %s: %s", e.Field, e.Reason)
}

// ConsistencyError indicates the accounting identity net + vat = gross was
// violated beyond the currency tolerance. It is a defect, never returned to
// a caller as a priced result.
type ConsistencyError struct {
	Expected  decimal.Decimal
	Actual    decimal.Decimal
	Tolerance decimal.Decimal
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("tax: net+vat=gross violated: expected %s, got %s (tolerance %s)",
		e.Expected, e.Actual, e.Tolerance)
}

// Compute calculates VAT for a single amount at the given percentage rate.
//
// When inclusive is true the amount already contains VAT: the net is backed
// out as amount/(1+rate/100). Otherwise VAT is added on top. A zero rate
// short-circuits to net=gross=amount, vat=0.
func Compute(amount, rate decimal.Decimal, inclusive bool) (Calculation, error) {
	if amount.IsNegative() {
		return Calculation{}, &ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return Calculation{}, &ValidationError{Field: "rate", Reason: "must be between 0 and 100"}
	}

	if rate.IsZero() {
		return Calculation{Net: amount, VAT: decimal.Zero, Gross: amount, Rate: rate}, nil
	}

	if inclusive {
		net := amount.Div(decimal.NewFromInt(1).Add(rate.Div(hundred))).Round(4)
		return Calculation{
			Net:   net,
			VAT:   amount.Sub(net),
			Gross: amount,
			Rate:  rate,
		}, nil
	}

	vat := amount.Mul(rate).Div(hundred).Round(4)
	return Calculation{
		Net:   amount,
		VAT:   vat,
		Gross: amount.Add(vat),
		Rate:  rate,
	}, nil
}
