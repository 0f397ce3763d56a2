package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oudhouse/pricing-engine/internal/currency"
)

const (
	latestRateSQL = `SELECT base_currency, target_currency, rate, source, valid_from, valid_until
		FROM exchange_rates
		WHERE base_currency = $1 AND target_currency = $2 AND active AND valid_until > now()
		ORDER BY valid_from DESC
		LIMIT 1`

	deactivateRatesSQL = `UPDATE exchange_rates SET active = FALSE
		WHERE base_currency = $1 AND target_currency = $2 AND active`

	insertRateSQL = `INSERT INTO exchange_rates
		(base_currency, target_currency, rate, source, valid_from, valid_until)
		VALUES ($1, $2, $3, $4, $5, $6)`
)

var _ currency.Store = (*RateRepository)(nil)

// RateRepository implements currency.Store backed by PostgreSQL.
type RateRepository struct {
	pool *pgxpool.Pool
}

// NewRateRepository returns a RateRepository that uses the given pool.
func NewRateRepository(pool *pgxpool.Pool) *RateRepository {
	return &RateRepository{pool: pool}
}

// Latest returns the newest active, unexpired rate for the pair. Returns
// currency.ErrNoStoredRate when none exists.
func (r *RateRepository) Latest(ctx context.Context, base, target string) (*currency.StoredRate, error) {
	rows, err := r.pool.Query(ctx, latestRateSQL, base, target)
	if err != nil {
		return nil, fmt.Errorf("loading rate %s/%s: %w", base, target, err)
	}

	rate, err := pgx.CollectExactlyOneRow(rows, scanStoredRate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, currency.ErrNoStoredRate
		}
		return nil, fmt.Errorf("loading rate %s/%s: %w", base, target, err)
	}
	return &rate, nil
}

// Insert stores a fresh rate for the pair, superseding earlier active rows.
// Both statements run in one transaction so a failed insert cannot leave the
// pair without an active rate.
func (r *RateRepository) Insert(ctx context.Context, rate currency.StoredRate) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("inserting rate %s/%s: %w", rate.Base, rate.Target, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, deactivateRatesSQL, rate.Base, rate.Target); err != nil {
		return fmt.Errorf("superseding rates %s/%s: %w", rate.Base, rate.Target, err)
	}
	if _, err := tx.Exec(ctx, insertRateSQL,
		rate.Base, rate.Target, rate.Value, rate.Source, rate.ValidFrom, rate.ValidUntil,
	); err != nil {
		return fmt.Errorf("inserting rate %s/%s: %w", rate.Base, rate.Target, err)
	}
	return tx.Commit(ctx)
}

func scanStoredRate(row pgx.CollectableRow) (currency.StoredRate, error) {
	var rate currency.StoredRate
	err := row.Scan(
		&rate.Base, &rate.Target, &rate.Value, &rate.Source,
		&rate.ValidFrom, &rate.ValidUntil,
	)
	return rate, err
}
