package currency

import "github.com/shopspring/decimal"

// staticRates is the last-resort fallback table: approximate AED-based rates
// used only when the cache, store, and every provider have failed. Results
// from this table are flagged degraded.
var staticRates = map[string]decimal.Decimal{
	"AED/USD": decimal.RequireFromString("0.2723"),
	"AED/EUR": decimal.RequireFromString("0.2495"),
	"AED/GBP": decimal.RequireFromString("0.2145"),
	"AED/SAR": decimal.RequireFromString("1.0210"),
	"AED/OMR": decimal.RequireFromString("0.1048"),
	"AED/BHD": decimal.RequireFromString("0.1026"),
	"AED/KWD": decimal.RequireFromString("0.0836"),
	"AED/QAR": decimal.RequireFromString("0.9913"),
	"AED/INR": decimal.RequireFromString("22.65"),
	"AED/JPY": decimal.RequireFromString("40.82"),
}

// staticRate resolves a pair from the fallback table: direct, reciprocal, or
// crossed through AED.
func staticRate(base, target string) (decimal.Decimal, bool) {
	if base == target {
		return decimal.NewFromInt(1), true
	}
	if r, ok := directStatic(base, target); ok {
		return r, true
	}
	if base == "AED" || target == "AED" {
		return decimal.Zero, false
	}
	toAED, ok := directStatic(base, "AED")
	if !ok {
		return decimal.Zero, false
	}
	fromAED, ok := directStatic("AED", target)
	if !ok {
		return decimal.Zero, false
	}
	return toAED.Mul(fromAED).Round(8), true
}

// directStatic looks the pair up directly, then as the reciprocal of the
// reverse pair.
func directStatic(base, target string) (decimal.Decimal, bool) {
	if r, ok := staticRates[pairKey(base, target)]; ok {
		return r, true
	}
	if r, ok := staticRates[pairKey(target, base)]; ok {
		return decimal.NewFromInt(1).Div(r).Round(8), true
	}
	return decimal.Zero, false
}
