package promotion

import (
	"slices"
	"time"

	"github.com/go-faster/errors"

	"github.com/oudhouse/pricing-engine/internal/domain/cart"
)

// Eligibility failure sentinels, one per check so callers can explain why a
// rule did not apply.
var (
	ErrCustomerGroup   = errors.New("customer group not eligible")
	ErrBelowMinimum    = errors.New("cart below minimum purchase amount")
	ErrNoEligibleItems = errors.New("no cart items match promotion scope")
	ErrNotStarted      = errors.New("promotion not started")
	ErrEnded           = errors.New("promotion ended")
)

// CheckEligibility evaluates the rule's eligibility filters against the cart
// in a fixed order, short-circuiting on the first failure: customer group,
// minimum purchase, item scope, validity window, usage limit.
func CheckEligibility(r Rule, c cart.Cart, customer *cart.Customer, now time.Time) error {
	if len(r.CustomerGroups) > 0 {
		if customer == nil || !slices.Contains(r.CustomerGroups, customer.Group) {
			return ErrCustomerGroup
		}
	}
	if r.MinPurchase.IsPositive() && c.Subtotal().LessThan(r.MinPurchase) {
		return ErrBelowMinimum
	}
	if len(EligibleItems(r, c)) == 0 {
		return ErrNoEligibleItems
	}
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return ErrNotStarted
	}
	if r.ValidUntil != nil && now.After(*r.ValidUntil) {
		return ErrEnded
	}
	if r.UsageLimit > 0 && r.UsageCount >= r.UsageLimit {
		return ErrExhausted
	}
	return nil
}

// EligibleItems returns the cart items inside the rule's product/category
// scope. A rule with no scope restriction matches every item.
func EligibleItems(r Rule, c cart.Cart) []cart.Item {
	if len(r.ProductIDs) == 0 && len(r.Categories) == 0 {
		return c.Items
	}
	var out []cart.Item
	for _, it := range c.Items {
		if slices.Contains(r.ProductIDs, it.ProductID) || slices.Contains(r.Categories, it.Category) {
			out = append(out, it)
		}
	}
	return out
}
