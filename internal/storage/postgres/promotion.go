package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oudhouse/pricing-engine/internal/domain/promotion"
)

const (
	selectPromotionColumns = `SELECT id, name, kind, priority, customer_groups,
		min_purchase, product_ids, categories, store_id,
		valid_from, valid_until, usage_limit, usage_count, payload
		FROM promotions`

	activePromotionsSQL = selectPromotionColumns +
		` WHERE active AND (store_id = '' OR store_id = $1)
		ORDER BY priority DESC, created_at`

	promotionsByIDsSQL = selectPromotionColumns +
		` WHERE active AND id = ANY($1)`

	// The WHERE clause makes the increment conditional: a transaction that
	// would exceed the limit updates zero rows instead.
	consumeUseSQL = `UPDATE promotions SET usage_count = usage_count + 1, updated_at = now()
		WHERE id = $1 AND active AND (usage_limit = 0 OR usage_count < usage_limit)`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// Active returns the active rules visible to the store: global rules plus
// rules scoped to it.
func (r *PromotionRepository) Active(ctx context.Context, storeID string) ([]promotion.Rule, error) {
	rows, err := r.pool.Query(ctx, activePromotionsSQL, storeID)
	if err != nil {
		return nil, fmt.Errorf("listing active promotions: %w", err)
	}

	rules, err := pgx.CollectRows(rows, scanPromotionRule)
	if err != nil {
		return nil, fmt.Errorf("listing active promotions: %w", err)
	}
	return rules, nil
}

// GetByIDs returns the active rules among the given ids. Callers detect
// missing ids by comparing lengths.
func (r *PromotionRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]promotion.Rule, error) {
	rows, err := r.pool.Query(ctx, promotionsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("loading promotions by ids: %w", err)
	}

	rules, err := pgx.CollectRows(rows, scanPromotionRule)
	if err != nil {
		return nil, fmt.Errorf("loading promotions by ids: %w", err)
	}
	return rules, nil
}

// ConsumeUse atomically takes one use of the rule. Returns
// promotion.ErrExhausted when the usage limit has been reached, including
// when a concurrent transaction took the last use first.
func (r *PromotionRepository) ConsumeUse(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, consumeUseSQL, id)
	if err != nil {
		return fmt.Errorf("consuming use of promotion %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return promotion.ErrExhausted
	}
	return nil
}

func scanPromotionRule(row pgx.CollectableRow) (promotion.Rule, error) {
	var (
		rule    promotion.Rule
		kind    string
		payload []byte
	)
	err := row.Scan(
		&rule.ID, &rule.Name, &kind, &rule.Priority, &rule.CustomerGroups,
		&rule.MinPurchase, &rule.ProductIDs, &rule.Categories, &rule.StoreID,
		&rule.ValidFrom, &rule.ValidUntil, &rule.UsageLimit, &rule.UsageCount, &payload,
	)
	if err != nil {
		return promotion.Rule{}, err
	}
	rule.Kind = promotion.Kind(kind)
	if err := decodePayload(&rule, payload); err != nil {
		return promotion.Rule{}, fmt.Errorf("promotion %q: %w", rule.ID, err)
	}
	return rule, nil
}

// decodePayload unmarshals the JSONB payload into the field matching the
// rule's kind.
func decodePayload(rule *promotion.Rule, payload []byte) error {
	var dst any
	switch rule.Kind {
	case promotion.KindPercentage:
		rule.Percentage = &promotion.PercentagePayload{}
		dst = rule.Percentage
	case promotion.KindFixedAmount:
		rule.Fixed = &promotion.FixedAmountPayload{}
		dst = rule.Fixed
	case promotion.KindBuyXGetY:
		rule.BuyXGetY = &promotion.BuyXGetYPayload{}
		dst = rule.BuyXGetY
	case promotion.KindBundle:
		rule.Bundle = &promotion.BundlePayload{}
		dst = rule.Bundle
	case promotion.KindTiered:
		rule.Tiered = &promotion.TieredPayload{}
		dst = rule.Tiered
	case promotion.KindQuantityThreshold:
		rule.Threshold = &promotion.QuantityThresholdPayload{}
		dst = rule.Threshold
	default:
		return errors.Errorf("unrecognised promotion kind %q", rule.Kind)
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return errors.Wrap(err, "decode payload")
	}
	return nil
}
