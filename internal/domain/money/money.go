// Package money is the currency-aware arithmetic kernel shared by the tax,
// promotion, and currency-conversion packages. All monetary values are
// shopspring decimals; rounding behaviour is driven by a per-currency
// metadata table so new jurisdictions can be registered without code change.
package money

import (
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Currency describes the denominational and presentation properties of one
// ISO 4217 currency.
type Currency struct {
	// Code is the ISO 4217 alphabetic code, e.g. "AED".
	Code string
	// Symbol is the presentation symbol, e.g. "د.إ" or "$".
	Symbol string
	// MinorUnit is the name of the smallest denomination, e.g. "fils".
	MinorUnit string
	// Decimals is the number of decimal places carried on invoices.
	Decimals int32
	// CashIncrement is the smallest physical denomination amounts are
	// snapped to when settled in cash (0.05 for AED, 1 for JPY).
	CashIncrement decimal.Decimal
	// Locale is the BCP 47 tag used by presentation consumers.
	Locale string
}

// ErrUnknownCurrency is returned when a currency code has not been registered.
var ErrUnknownCurrency = errors.New("unknown currency")

var (
	mu       sync.RWMutex
	registry = map[string]Currency{}
)

func init() {
	for _, c := range []Currency{
		{Code: "AED", Symbol: "د.إ", MinorUnit: "fils", Decimals: 2, CashIncrement: dec("0.05"), Locale: "ar-AE"},
		{Code: "SAR", Symbol: "ر.س", MinorUnit: "halala", Decimals: 2, CashIncrement: dec("0.05"), Locale: "ar-SA"},
		{Code: "OMR", Symbol: "ر.ع.", MinorUnit: "baisa", Decimals: 3, CashIncrement: dec("0.005"), Locale: "ar-OM"},
		{Code: "BHD", Symbol: ".د.ب", MinorUnit: "fils", Decimals: 3, CashIncrement: dec("0.005"), Locale: "ar-BH"},
		{Code: "KWD", Symbol: "د.ك", MinorUnit: "fils", Decimals: 3, CashIncrement: dec("0.005"), Locale: "ar-KW"},
		{Code: "QAR", Symbol: "ر.ق", MinorUnit: "dirham", Decimals: 2, CashIncrement: dec("0.25"), Locale: "ar-QA"},
		{Code: "USD", Symbol: "$", MinorUnit: "cent", Decimals: 2, CashIncrement: dec("0.01"), Locale: "en-US"},
		{Code: "EUR", Symbol: "€", MinorUnit: "cent", Decimals: 2, CashIncrement: dec("0.01"), Locale: "de-DE"},
		{Code: "GBP", Symbol: "£", MinorUnit: "penny", Decimals: 2, CashIncrement: dec("0.01"), Locale: "en-GB"},
		{Code: "INR", Symbol: "₹", MinorUnit: "paisa", Decimals: 2, CashIncrement: dec("0.50"), Locale: "en-IN"},
		{Code: "JPY", Symbol: "¥", MinorUnit: "sen", Decimals: 0, CashIncrement: dec("1"), Locale: "ja-JP"},
	} {
		registry[c.Code] = c
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Register adds or replaces a currency in the table. The code must be
// non-empty and the cash increment positive.
func Register(c Currency) error {
	if c.Code == "" {
		return errors.New("currency code required")
	}
	if !c.CashIncrement.IsPositive() {
		return errors.Errorf("currency %s: cash increment must be positive", c.Code)
	}
	mu.Lock()
	defer mu.Unlock()
	registry[c.Code] = c
	return nil
}

// Lookup returns the metadata for the given currency code.
func Lookup(code string) (Currency, bool) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := registry[code]
	return c, ok
}

// Known reports whether the currency code has been registered.
func Known(code string) bool {
	_, ok := Lookup(code)
	return ok
}

// Round rounds an amount to the currency's invoice precision, half away
// from zero. Unknown currencies round to two decimal places.
func Round(amount decimal.Decimal, code string) decimal.Decimal {
	c, ok := Lookup(code)
	if !ok {
		return amount.Round(2)
	}
	return amount.Round(c.Decimals)
}

// RoundCash snaps an amount to the nearest cash denomination increment of
// the currency, e.g. 10.98 AED becomes 11.00 with a 0.05 increment.
func RoundCash(amount decimal.Decimal, code string) decimal.Decimal {
	c, ok := Lookup(code)
	if !ok || !c.CashIncrement.IsPositive() {
		return Round(amount, code)
	}
	return amount.Div(c.CashIncrement).Round(0).Mul(c.CashIncrement)
}

// Tolerance returns one minor unit of the currency. It bounds the
// accounting identity net + tax = gross throughout the engine.
func Tolerance(code string) decimal.Decimal {
	c, ok := Lookup(code)
	if !ok {
		return decimal.New(1, -2)
	}
	return decimal.New(1, -c.Decimals)
}

// WithinTolerance reports whether two amounts differ by at most one minor
// unit of the currency.
func WithinTolerance(a, b decimal.Decimal, code string) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance(code))
}
