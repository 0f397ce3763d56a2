// Package promotion evaluates promotion rules against a cart: eligibility
// filtering, per-type discount computation with per-line allocation, and the
// application of a selected rule set into one aggregate discount.
package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported promotion types. The payload field matching
// the kind must be set; all others must be nil.
type Kind string

const (
	KindPercentage        Kind = "percentage"
	KindFixedAmount       Kind = "fixed_amount"
	KindBuyXGetY          Kind = "buy_x_get_y"
	KindBundle            Kind = "bundle"
	KindTiered            Kind = "tiered"
	KindQuantityThreshold Kind = "quantity_threshold"
)

// Sentinel errors for rule application.
var (
	// ErrExhausted is returned when a rule's usage limit has been reached,
	// including the case where a concurrent transaction consumed the last
	// use first.
	ErrExhausted = errors.New("promotion usage limit reached")
	// ErrNotFound is returned when a referenced rule does not exist.
	ErrNotFound = errors.New("promotion not found")
)

// PercentagePayload discounts each eligible line by a percentage, capped per
// line at MaxDiscount when set.
type PercentagePayload struct {
	Percent decimal.Decimal `json:"percent"`
	// MaxDiscount caps the discount of each eligible line. Zero means no cap.
	MaxDiscount decimal.Decimal `json:"max_discount"`
}

// FixedAmountPayload distributes one absolute amount across eligible lines
// proportionally to their share of the eligible subtotal.
type FixedAmountPayload struct {
	Amount decimal.Decimal `json:"amount"`
}

// BuyXGetYPayload gives GetQty free units for every BuyQty purchased of the
// same product.
type BuyXGetYPayload struct {
	BuyQty int `json:"buy_qty"`
	GetQty int `json:"get_qty"`
}

// BundlePayload prices a fixed set of distinct products together. Every
// product in Products must be in the cart for the bundle to apply.
type BundlePayload struct {
	Products    []string        `json:"products"`
	BundlePrice decimal.Decimal `json:"bundle_price"`
}

// Tier is one step of a tiered promotion. Exactly one of Percent or Amount
// is positive.
type Tier struct {
	MinQuantity int             `json:"min_quantity"`
	Percent     decimal.Decimal `json:"percent"`
	Amount      decimal.Decimal `json:"amount"`
}

// TieredPayload applies the highest tier whose MinQuantity the eligible
// quantity reaches.
type TieredPayload struct {
	Tiers []Tier `json:"tiers"`
}

// QuantityThresholdPayload applies a percentage or fixed value once the
// eligible quantity reaches MinQuantity.
type QuantityThresholdPayload struct {
	MinQuantity int             `json:"min_quantity"`
	Percent     decimal.Decimal `json:"percent"`
	Amount      decimal.Decimal `json:"amount"`
}

// Rule is one promotion policy. Long-lived, administrator-managed; the
// engine only reads it, except for the usage counter which the repository
// increments atomically on application.
type Rule struct {
	ID       uuid.UUID
	Name     string
	Kind     Kind
	Priority int

	// Eligibility filters. Empty slices mean no restriction.
	CustomerGroups []string
	MinPurchase    decimal.Decimal
	ProductIDs     []string
	Categories     []string
	StoreID        string

	ValidFrom  *time.Time
	ValidUntil *time.Time

	// UsageLimit of 0 means unlimited.
	UsageLimit int
	UsageCount int

	// Exactly one payload is set, matching Kind.
	Percentage *PercentagePayload
	Fixed      *FixedAmountPayload
	BuyXGetY   *BuyXGetYPayload
	Bundle     *BundlePayload
	Tiered     *TieredPayload
	Threshold  *QuantityThresholdPayload
}

// RuleError reports a rule that fails structural validation at creation or
// edit time.
type RuleError struct {
	Rule   string
	Reason string
}

func (e *RuleError) Error() string {
	return "invalid promotion rule " + e.Rule + ": " + e.Reason
}

func (r *Rule) fail(reason string) error {
	name := r.Name
	if name == "" {
		name = r.ID.String()
	}
	return &RuleError{Rule: name, Reason: reason}
}

// Validate checks the rule's structural invariants: recognised kind, ordered
// validity window, sane usage limit, and an internally consistent payload
// matching the kind.
func (r *Rule) Validate() error {
	if r.ValidFrom != nil && r.ValidUntil != nil && !r.ValidFrom.Before(*r.ValidUntil) {
		return r.fail("validity window start must precede end")
	}
	if r.UsageLimit < 0 {
		return r.fail("usage limit must be at least 1 when set")
	}
	if r.MinPurchase.IsNegative() {
		return r.fail("minimum purchase must not be negative")
	}

	if n := r.payloadCount(); n != 1 {
		return r.fail("exactly one payload must be set")
	}

	switch r.Kind {
	case KindPercentage:
		p := r.Percentage
		if p == nil {
			return r.fail("percentage payload required")
		}
		if !p.Percent.IsPositive() || p.Percent.GreaterThan(decimal.NewFromInt(100)) {
			return r.fail("percent must be in (0, 100]")
		}
		if p.MaxDiscount.IsNegative() {
			return r.fail("max discount must not be negative")
		}
	case KindFixedAmount:
		if r.Fixed == nil {
			return r.fail("fixed amount payload required")
		}
		if !r.Fixed.Amount.IsPositive() {
			return r.fail("fixed amount must be positive")
		}
	case KindBuyXGetY:
		p := r.BuyXGetY
		if p == nil {
			return r.fail("buy-x-get-y payload required")
		}
		if p.BuyQty < 1 || p.GetQty < 1 {
			return r.fail("buy and get quantities must be at least 1")
		}
	case KindBundle:
		p := r.Bundle
		if p == nil {
			return r.fail("bundle payload required")
		}
		if len(p.Products) < 2 {
			return r.fail("bundle requires at least 2 products")
		}
		if !p.BundlePrice.IsPositive() {
			return r.fail("bundle price must be positive")
		}
	case KindTiered:
		p := r.Tiered
		if p == nil {
			return r.fail("tiered payload required")
		}
		if len(p.Tiers) == 0 {
			return r.fail("at least one tier required")
		}
		prev := 0
		for _, tier := range p.Tiers {
			if tier.MinQuantity < 1 {
				return r.fail("tier minimum quantity must be at least 1")
			}
			if tier.MinQuantity <= prev {
				return r.fail("tier thresholds must be strictly ascending")
			}
			if err := validateTierValue(tier.Percent, tier.Amount); err != nil {
				return r.fail(err.Error())
			}
			prev = tier.MinQuantity
		}
	case KindQuantityThreshold:
		p := r.Threshold
		if p == nil {
			return r.fail("quantity threshold payload required")
		}
		if p.MinQuantity < 1 {
			return r.fail("minimum quantity must be at least 1")
		}
		if err := validateTierValue(p.Percent, p.Amount); err != nil {
			return r.fail(err.Error())
		}
	default:
		return r.fail("unrecognised kind " + string(r.Kind))
	}
	return nil
}

func validateTierValue(percent, amount decimal.Decimal) error {
	switch {
	case percent.IsPositive() && amount.IsPositive():
		return errors.New("percent and amount are mutually exclusive")
	case percent.IsPositive():
		if percent.GreaterThan(decimal.NewFromInt(100)) {
			return errors.New("percent must be in (0, 100]")
		}
	case amount.IsPositive():
	default:
		return errors.New("either percent or amount must be positive")
	}
	return nil
}

func (r *Rule) payloadCount() int {
	n := 0
	if r.Percentage != nil {
		n++
	}
	if r.Fixed != nil {
		n++
	}
	if r.BuyXGetY != nil {
		n++
	}
	if r.Bundle != nil {
		n++
	}
	if r.Tiered != nil {
		n++
	}
	if r.Threshold != nil {
		n++
	}
	return n
}

// Repository is the persistence surface the engine needs: active rules for a
// store, rules by id, and an atomic usage-counter consume.
type Repository interface {
	// Active returns rules valid for the store (or global rules) that have
	// not been disabled.
	Active(ctx context.Context, storeID string) ([]Rule, error)
	// GetByIDs returns the rules for the given ids. Missing ids are not an
	// error; callers detect absence by the result length.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]Rule, error)
	// ConsumeUse atomically increments the rule's usage counter, failing
	// with ErrExhausted when the limit has already been reached. Losers of
	// a concurrent race on the last use receive ErrExhausted, never a lost
	// update.
	ConsumeUse(ctx context.Context, id uuid.UUID) error
}
