package promotion

import (
	"sort"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oudhouse/pricing-engine/internal/domain/cart"
)

var hundred = decimal.NewFromInt(100)

// LineAllocation is the share of a promotion's discount carried by one
// eligible line.
type LineAllocation struct {
	ProductID string
	Amount    decimal.Decimal
}

// Allocation is the result of applying one rule to a cart: per-line amounts
// and their exact sum.
type Allocation struct {
	RuleID   uuid.UUID
	RuleName string
	Lines    []LineAllocation
	Total    decimal.Decimal
}

// Compute dispatches on the rule kind and calculates the discount allocation
// over the eligible items. Promotions with nothing to discount return a zero
// allocation, not an error.
func Compute(r Rule, eligible []cart.Item) (Allocation, error) {
	alloc := Allocation{RuleID: r.ID, RuleName: r.Name}

	var lines []LineAllocation
	switch r.Kind {
	case KindPercentage:
		lines = computePercentage(r.Percentage.Percent, r.Percentage.MaxDiscount, eligible)
	case KindFixedAmount:
		lines = computeFixed(r.Fixed.Amount, eligible)
	case KindBuyXGetY:
		lines = computeBuyXGetY(r.BuyXGetY.BuyQty, r.BuyXGetY.GetQty, eligible)
	case KindBundle:
		lines = computeBundle(r.Bundle.Products, r.Bundle.BundlePrice, eligible)
	case KindTiered:
		lines = computeTiered(r.Tiered.Tiers, eligible)
	case KindQuantityThreshold:
		lines = computeThreshold(*r.Threshold, eligible)
	default:
		return Allocation{}, errors.Errorf("unsupported promotion kind: %q", r.Kind)
	}

	for _, l := range lines {
		if l.Amount.IsPositive() {
			alloc.Lines = append(alloc.Lines, l)
			alloc.Total = alloc.Total.Add(l.Amount)
		}
	}
	return alloc, nil
}

// computePercentage discounts each eligible line by pct, capping each line
// individually at maxDiscount when set.
func computePercentage(pct, maxDiscount decimal.Decimal, items []cart.Item) []LineAllocation {
	out := make([]LineAllocation, 0, len(items))
	for _, it := range items {
		amount := it.LineTotal().Mul(pct).Div(hundred).Round(2)
		if maxDiscount.IsPositive() && amount.GreaterThan(maxDiscount) {
			amount = maxDiscount
		}
		out = append(out, LineAllocation{ProductID: it.ProductID, Amount: amount})
	}
	return out
}

// computeFixed distributes one absolute amount across eligible lines in
// proportion to each line's share of the eligible subtotal. The last line
// absorbs the rounding remainder so the shares sum exactly to the amount.
func computeFixed(amount decimal.Decimal, items []cart.Item) []LineAllocation {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.LineTotal())
	}
	if !subtotal.IsPositive() {
		return nil
	}
	if amount.GreaterThan(subtotal) {
		amount = subtotal
	}

	out := make([]LineAllocation, 0, len(items))
	allocated := decimal.Zero
	for i, it := range items {
		var share decimal.Decimal
		if i == len(items)-1 {
			share = amount.Sub(allocated)
		} else {
			share = amount.Mul(it.LineTotal()).Div(subtotal).Round(2)
			allocated = allocated.Add(share)
		}
		out = append(out, LineAllocation{ProductID: it.ProductID, Amount: share})
	}
	return out
}

// computeBuyXGetY groups eligible lines by product, works out how many full
// buy+get sets the quantity covers, and zeroes out set*getQty units starting
// from the cheapest lines.
func computeBuyXGetY(buyQty, getQty int, items []cart.Item) []LineAllocation {
	groups := make(map[string][]int)
	order := make([]string, 0, len(items))
	for i, it := range items {
		if _, seen := groups[it.ProductID]; !seen {
			order = append(order, it.ProductID)
		}
		groups[it.ProductID] = append(groups[it.ProductID], i)
	}

	var out []LineAllocation
	setSize := buyQty + getQty
	for _, productID := range order {
		idxs := groups[productID]
		total := 0
		for _, i := range idxs {
			total += items[i].Quantity
		}
		free := (total / setSize) * getQty
		if free == 0 {
			continue
		}

		// Cheapest units first.
		sort.SliceStable(idxs, func(a, b int) bool {
			return items[idxs[a]].UnitPrice.LessThan(items[idxs[b]].UnitPrice)
		})
		for _, i := range idxs {
			if free == 0 {
				break
			}
			units := min(free, items[i].Quantity)
			free -= units
			out = append(out, LineAllocation{
				ProductID: productID,
				Amount:    items[i].UnitPrice.Mul(decimal.NewFromInt(int64(units))).Round(2),
			})
		}
	}
	return out
}

// computeBundle requires every bundle product to be present; the bundle
// count is the minimum available quantity across them. The discount is the
// gap between the regular price of the set and the bundle price, split
// evenly across the constituent lines.
func computeBundle(products []string, bundlePrice decimal.Decimal, items []cart.Item) []LineAllocation {
	qty := make(map[string]int, len(products))
	price := make(map[string]decimal.Decimal, len(products))
	var memberLines []cart.Item
	required := make(map[string]struct{}, len(products))
	for _, p := range products {
		required[p] = struct{}{}
	}
	for _, it := range items {
		if _, ok := required[it.ProductID]; !ok {
			continue
		}
		qty[it.ProductID] += it.Quantity
		if _, ok := price[it.ProductID]; !ok {
			price[it.ProductID] = it.UnitPrice
		}
		memberLines = append(memberLines, it)
	}

	bundleCount := 0
	regular := decimal.Zero
	for i, p := range products {
		q, ok := qty[p]
		if !ok || q == 0 {
			return nil
		}
		if i == 0 || q < bundleCount {
			bundleCount = q
		}
		regular = regular.Add(price[p])
	}

	count := decimal.NewFromInt(int64(bundleCount))
	discount := regular.Mul(count).Sub(bundlePrice.Mul(count))
	if !discount.IsPositive() {
		return nil
	}

	// Even split; the last line absorbs the rounding remainder.
	out := make([]LineAllocation, 0, len(memberLines))
	per := discount.Div(decimal.NewFromInt(int64(len(memberLines)))).Round(2)
	allocated := decimal.Zero
	for i, it := range memberLines {
		share := per
		if i == len(memberLines)-1 {
			share = discount.Sub(allocated)
		}
		allocated = allocated.Add(share)
		out = append(out, LineAllocation{ProductID: it.ProductID, Amount: share})
	}
	return out
}

// computeTiered picks the highest tier whose quantity threshold the eligible
// quantity reaches and applies its value like a percentage or fixed rule.
func computeTiered(tiers []Tier, items []cart.Item) []LineAllocation {
	qty := 0
	for _, it := range items {
		qty += it.Quantity
	}

	var selected *Tier
	for i := range tiers {
		if qty >= tiers[i].MinQuantity && (selected == nil || tiers[i].MinQuantity > selected.MinQuantity) {
			selected = &tiers[i]
		}
	}
	if selected == nil {
		return nil
	}
	if selected.Percent.IsPositive() {
		return computePercentage(selected.Percent, decimal.Zero, items)
	}
	return computeFixed(selected.Amount, items)
}

// computeThreshold gates a percentage or fixed value on a minimum eligible
// quantity.
func computeThreshold(p QuantityThresholdPayload, items []cart.Item) []LineAllocation {
	qty := 0
	for _, it := range items {
		qty += it.Quantity
	}
	if qty < p.MinQuantity {
		return nil
	}
	if p.Percent.IsPositive() {
		return computePercentage(p.Percent, decimal.Zero, items)
	}
	return computeFixed(p.Amount, items)
}
