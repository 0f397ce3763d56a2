package promotion

import (
	"context"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/oudhouse/pricing-engine/internal/domain/cart"
)

// Candidate pairs an eligible rule with the discount it would produce on the
// cart as it stands.
type Candidate struct {
	Rule      Rule
	Estimated decimal.Decimal
}

// Applied is the aggregate outcome of applying a set of rules: each rule's
// independent allocation plus the capped total.
type Applied struct {
	Allocations []Allocation
	Total       decimal.Decimal
}

// Engine filters, estimates, and applies promotion rules.
type Engine struct {
	repo Repository
	lg   *zap.Logger
	now  func() time.Time
}

// NewEngine creates an Engine backed by the given repository.
func NewEngine(repo Repository, lg *zap.Logger) *Engine {
	return &Engine{repo: repo, lg: lg, now: time.Now}
}

// Applicable returns the store's active rules that pass eligibility for the
// cart, each with its estimated discount, sorted by priority descending and
// then estimated discount descending.
func (e *Engine) Applicable(ctx context.Context, c cart.Cart, customer *cart.Customer, storeID string) ([]Candidate, error) {
	rules, err := e.repo.Active(ctx, storeID)
	if err != nil {
		return nil, errors.Wrap(err, "load active promotions")
	}

	now := e.now()
	candidates := make([]Candidate, 0, len(rules))
	for _, r := range rules {
		if err := CheckEligibility(r, c, customer, now); err != nil {
			continue
		}
		alloc, err := Compute(r, EligibleItems(r, c))
		if err != nil {
			e.lg.Warn("skipping malformed promotion",
				zap.String("rule", r.ID.String()), zap.Error(err))
			continue
		}
		if !alloc.Total.IsPositive() {
			continue
		}
		candidates = append(candidates, Candidate{Rule: r, Estimated: alloc.Total})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Rule.Priority != candidates[j].Rule.Priority {
			return candidates[i].Rule.Priority > candidates[j].Rule.Priority
		}
		return candidates[i].Estimated.GreaterThan(candidates[j].Estimated)
	})
	return candidates, nil
}

// Apply evaluates the selected rules in priority order, each against the
// ORIGINAL cart — promotions are additive, never compounding — and records a
// use of every rule that contributed. Rules that lose the usage-counter race
// are skipped as exhausted rather than failing the whole application. The
// aggregate discount is capped at the cart subtotal.
func (e *Engine) Apply(ctx context.Context, c cart.Cart, rules []Rule, customer *cart.Customer) (Applied, error) {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})

	subtotal := c.Subtotal()
	now := e.now()

	var out Applied
	for _, r := range ordered {
		if err := CheckEligibility(r, c, customer, now); err != nil {
			if errors.Is(err, ErrExhausted) {
				e.lg.Info("promotion exhausted", zap.String("rule", r.ID.String()))
				continue
			}
			return Applied{}, errors.Wrapf(err, "promotion %s not applicable", r.ID)
		}

		alloc, err := Compute(r, EligibleItems(r, c))
		if err != nil {
			return Applied{}, errors.Wrapf(err, "compute promotion %s", r.ID)
		}
		if !alloc.Total.IsPositive() {
			continue
		}

		if err := e.repo.ConsumeUse(ctx, r.ID); err != nil {
			// A concurrent transaction took the last use. This rule sits
			// out; the rest still apply.
			if errors.Is(err, ErrExhausted) {
				e.lg.Info("promotion lost usage race", zap.String("rule", r.ID.String()))
				continue
			}
			return Applied{}, errors.Wrapf(err, "consume use of promotion %s", r.ID)
		}

		remaining := subtotal.Sub(out.Total)
		if alloc.Total.GreaterThan(remaining) {
			alloc = trimAllocation(alloc, remaining)
			if !alloc.Total.IsPositive() {
				continue
			}
		}
		out.Allocations = append(out.Allocations, alloc)
		out.Total = out.Total.Add(alloc.Total)
	}
	return out, nil
}

// ApplyByIDs loads the referenced rules and applies them. Unknown ids fail
// with ErrNotFound before anything is consumed.
func (e *Engine) ApplyByIDs(ctx context.Context, c cart.Cart, ids []uuid.UUID, customer *cart.Customer) (Applied, error) {
	if len(ids) == 0 {
		return Applied{}, nil
	}
	rules, err := e.repo.GetByIDs(ctx, ids)
	if err != nil {
		return Applied{}, errors.Wrap(err, "load promotions")
	}
	if len(rules) != len(ids) {
		return Applied{}, ErrNotFound
	}
	return e.Apply(ctx, c, rules, customer)
}

// trimAllocation reduces an allocation to the given budget, dropping amounts
// from the last lines first so the per-line split still sums exactly.
func trimAllocation(a Allocation, budget decimal.Decimal) Allocation {
	if budget.IsNegative() {
		budget = decimal.Zero
	}
	overflow := a.Total.Sub(budget)
	trimmed := Allocation{RuleID: a.RuleID, RuleName: a.RuleName, Total: budget}
	for i := len(a.Lines) - 1; i >= 0; i-- {
		line := a.Lines[i]
		if overflow.IsPositive() {
			cut := decimal.Min(line.Amount, overflow)
			line.Amount = line.Amount.Sub(cut)
			overflow = overflow.Sub(cut)
		}
		if line.Amount.IsPositive() {
			trimmed.Lines = append([]LineAllocation{line}, trimmed.Lines...)
		}
	}
	return trimmed
}
