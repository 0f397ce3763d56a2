package tax

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/oudhouse/pricing-engine/internal/domain/cart"
)

// Decision is the outcome of rate resolution for one supply.
type Decision struct {
	Rate      decimal.Decimal
	Treatment Treatment
}

// ResolverConfig is the table-driven jurisdiction configuration. Everything
// here is data: new countries, exemptions, and zero-ratings are added
// without code change.
type ResolverConfig struct {
	// CountryRates maps ISO country codes to standard VAT rates in percent.
	CountryRates map[string]decimal.Decimal
	// DefaultRate applies when a country has no entry. The home
	// jurisdiction's 5% when unset.
	DefaultRate decimal.Decimal
	// ExemptCategories lists product category tags outside the scope of VAT.
	ExemptCategories []string
	// ZeroRatedCategories lists category tags taxed at 0% but still taxable.
	ZeroRatedCategories []string
}

// DefaultResolverConfig returns the GCC-centric rate table the engine ships
// with.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		CountryRates: map[string]decimal.Decimal{
			"AE": decimal.NewFromInt(5),
			"SA": decimal.NewFromInt(15),
			"BH": decimal.NewFromInt(10),
			"OM": decimal.NewFromInt(5),
			"QA": decimal.Zero,
			"KW": decimal.Zero,
			"GB": decimal.NewFromInt(20),
			"DE": decimal.NewFromInt(19),
			"FR": decimal.NewFromInt(20),
			"IN": decimal.NewFromInt(18),
		},
		DefaultRate:         decimal.NewFromInt(5),
		ExemptCategories:    []string{"financial-services", "residential-lease", "bare-land"},
		ZeroRatedCategories: []string{"education", "healthcare", "international-transport"},
	}
}

// Resolver resolves the applicable VAT rate for a product category, customer
// type, and destination country.
type Resolver struct {
	rates       map[string]decimal.Decimal
	defaultRate decimal.Decimal
	exempt      map[string]struct{}
	zeroRated   map[string]struct{}
}

// NewResolver builds a Resolver from the given config.
func NewResolver(cfg ResolverConfig) *Resolver {
	r := &Resolver{
		rates:       make(map[string]decimal.Decimal, len(cfg.CountryRates)),
		defaultRate: cfg.DefaultRate,
		exempt:      make(map[string]struct{}, len(cfg.ExemptCategories)),
		zeroRated:   make(map[string]struct{}, len(cfg.ZeroRatedCategories)),
	}
	for country, rate := range cfg.CountryRates {
		r.rates[strings.ToUpper(country)] = rate
	}
	if r.defaultRate.IsZero() && len(cfg.CountryRates) == 0 {
		r.defaultRate = decimal.NewFromInt(5)
	}
	for _, c := range cfg.ExemptCategories {
		r.exempt[c] = struct{}{}
	}
	for _, c := range cfg.ZeroRatedCategories {
		r.zeroRated[c] = struct{}{}
	}
	return r
}

// Resolve applies the precedence rules: exempt category, then zero-rating
// (category or export sale), then the country's standard rate. Export
// customers carrying a TRN fall under reverse charge: the seller still
// charges 0% but the treatment is flagged so the invoice can state it.
func (r *Resolver) Resolve(category string, customer *cart.Customer, country string) Decision {
	if _, ok := r.exempt[category]; ok {
		return Decision{Rate: decimal.Zero, Treatment: TreatmentExempt}
	}
	if customer != nil && customer.Type == cart.CustomerExport {
		if customer.TRN != "" {
			return Decision{Rate: decimal.Zero, Treatment: TreatmentReverseCharge}
		}
		return Decision{Rate: decimal.Zero, Treatment: TreatmentZeroRated}
	}
	if _, ok := r.zeroRated[category]; ok {
		return Decision{Rate: decimal.Zero, Treatment: TreatmentZeroRated}
	}
	if rate, ok := r.rates[strings.ToUpper(country)]; ok {
		if rate.IsZero() {
			return Decision{Rate: rate, Treatment: TreatmentZeroRated}
		}
		return Decision{Rate: rate, Treatment: TreatmentStandard}
	}
	return Decision{Rate: r.defaultRate, Treatment: TreatmentStandard}
}
