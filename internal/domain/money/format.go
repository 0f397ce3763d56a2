package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Format renders an amount with the currency symbol and thousands grouping,
// e.g. Format(1234567.5, "AED") == "د.إ 1,234,567.50". It is a presentation
// helper for rendering consumers and plays no part in computation.
func Format(amount decimal.Decimal, code string) string {
	c, ok := Lookup(code)
	if !ok {
		return amount.Round(2).StringFixed(2)
	}
	s := amount.Round(c.Decimals).StringFixed(c.Decimals)

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, fracPart, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(c.Symbol)
	b.WriteByte(' ')
	b.WriteString(group(intPart))
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(fracPart)
	}
	return b.String()
}

// group inserts a comma every three digits from the right.
func group(digits string) string {
	n := len(digits)
	if n <= 3 {
		return digits
	}
	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// MinorUnitName returns the name of the currency's smallest denomination,
// e.g. "fils" for AED. Unknown currencies return an empty string.
func MinorUnitName(code string) string {
	c, ok := Lookup(code)
	if !ok {
		return ""
	}
	return c.MinorUnit
}
