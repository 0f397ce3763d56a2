package tax

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Period is a VAT filing period, inclusive of From and exclusive of To.
type Period struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.From) && t.Before(p.To)
}

// PricedTransaction is the slice of an already-priced transaction the VAT
// return needs: when it happened, how each supply was treated, and the
// rate-keyed breakdown that was charged.
type PricedTransaction struct {
	ID        string
	IssuedAt  time.Time
	Treatment Treatment
	Breakdown []BreakdownEntry
}

// ReturnBucket is the per-rate aggregate on the filing.
type ReturnBucket struct {
	Rate    decimal.Decimal
	Taxable decimal.Decimal
	VAT     decimal.Decimal
}

// Return is a period VAT-return report with standard, zero-rated, and exempt
// sales segregated the way the filing form wants them.
type Return struct {
	Period         Period
	Buckets        []ReturnBucket
	StandardSales  decimal.Decimal
	ZeroRatedSales decimal.Decimal
	ExemptSales    decimal.Decimal
	// ReverseCharged is the value of supplies where the buyer accounts for
	// the VAT; reported separately, no output VAT due from the seller.
	ReverseCharged decimal.Decimal
	TotalOutputVAT decimal.Decimal
	Transactions   int
}

// BuildReturn aggregates priced transactions falling inside the period into
// a VAT return. Transactions outside the window are skipped.
func BuildReturn(period Period, txns []PricedTransaction) (*Return, error) {
	if !period.From.Before(period.To) {
		return nil, &ValidationError{Field: "period", Reason: "start must precede end"}
	}

	out := &Return{Period: period}
	buckets := make(map[string]*ReturnBucket)
	for _, txn := range txns {
		if !period.Contains(txn.IssuedAt) {
			continue
		}
		out.Transactions++
		for _, entry := range txn.Breakdown {
			switch txn.Treatment {
			case TreatmentExempt:
				out.ExemptSales = out.ExemptSales.Add(entry.Taxable)
				continue
			case TreatmentReverseCharge:
				out.ReverseCharged = out.ReverseCharged.Add(entry.Taxable)
				continue
			case TreatmentZeroRated:
				out.ZeroRatedSales = out.ZeroRatedSales.Add(entry.Taxable)
			default:
				if entry.Rate.IsZero() {
					out.ZeroRatedSales = out.ZeroRatedSales.Add(entry.Taxable)
				} else {
					out.StandardSales = out.StandardSales.Add(entry.Taxable)
				}
			}

			key := entry.Rate.String()
			b, ok := buckets[key]
			if !ok {
				b = &ReturnBucket{Rate: entry.Rate}
				buckets[key] = b
			}
			b.Taxable = b.Taxable.Add(entry.Taxable)
			b.VAT = b.VAT.Add(entry.VAT)
			out.TotalOutputVAT = out.TotalOutputVAT.Add(entry.VAT)
		}
	}

	for _, b := range buckets {
		out.Buckets = append(out.Buckets, *b)
	}
	sort.Slice(out.Buckets, func(i, j int) bool {
		return out.Buckets[i].Rate.LessThan(out.Buckets[j].Rate)
	})
	return out, nil
}
