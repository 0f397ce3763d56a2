package tax

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildReturn(t *testing.T) {
	period := Period{
		From: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	inPeriod := time.Date(2026, 2, 14, 12, 0, 0, 0, time.UTC)
	outside := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)

	txns := []PricedTransaction{
		{
			ID: "t1", IssuedAt: inPeriod, Treatment: TreatmentStandard,
			Breakdown: []BreakdownEntry{
				{Rate: d("5"), Taxable: d("1000"), VAT: d("50")},
				{Rate: d("0"), Taxable: d("200"), VAT: d("0")},
			},
		},
		{
			ID: "t2", IssuedAt: inPeriod, Treatment: TreatmentStandard,
			Breakdown: []BreakdownEntry{
				{Rate: d("5"), Taxable: d("500"), VAT: d("25")},
			},
		},
		{
			ID: "t3", IssuedAt: inPeriod, Treatment: TreatmentExempt,
			Breakdown: []BreakdownEntry{
				{Rate: d("0"), Taxable: d("300"), VAT: d("0")},
			},
		},
		{
			ID: "t4", IssuedAt: inPeriod, Treatment: TreatmentReverseCharge,
			Breakdown: []BreakdownEntry{
				{Rate: d("0"), Taxable: d("900"), VAT: d("0")},
			},
		},
		{
			ID: "t5", IssuedAt: outside, Treatment: TreatmentStandard,
			Breakdown: []BreakdownEntry{
				{Rate: d("5"), Taxable: d("9999"), VAT: d("499.95")},
			},
		},
	}

	report, err := BuildReturn(period, txns)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Transactions)
	assert.True(t, report.StandardSales.Equal(d("1500")), "standard %s", report.StandardSales)
	assert.True(t, report.ZeroRatedSales.Equal(d("200")), "zero rated %s", report.ZeroRatedSales)
	assert.True(t, report.ExemptSales.Equal(d("300")), "exempt %s", report.ExemptSales)
	assert.True(t, report.ReverseCharged.Equal(d("900")), "reverse charged %s", report.ReverseCharged)
	assert.True(t, report.TotalOutputVAT.Equal(d("75")), "output vat %s", report.TotalOutputVAT)

	require.Len(t, report.Buckets, 2)
	assert.True(t, report.Buckets[0].Rate.IsZero())
	assert.True(t, report.Buckets[1].Rate.Equal(d("5")))
	assert.True(t, report.Buckets[1].Taxable.Equal(d("1500")))
	assert.True(t, report.Buckets[1].VAT.Equal(d("75")))
}

func TestBuildReturnInvalidPeriod(t *testing.T) {
	now := time.Now()
	_, err := BuildReturn(Period{From: now, To: now}, nil)
	require.Error(t, err)
}
