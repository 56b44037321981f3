package pricing

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository loads price lists from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListPriceLists returns the counterparty's active lists.
func (r *Repository) ListPriceLists(ctx context.Context, counterpartyID int64) ([]PriceList, error) {
	const query = `
		SELECT id, counterparty_id, name, is_primary,
		       COALESCE(valid_from, '0001-01-01'::timestamptz),
		       COALESCE(valid_to, '9999-12-31'::timestamptz),
		       active
		FROM price_lists
		WHERE counterparty_id = $1 AND active`
	rows, err := r.pool.Query(ctx, query, counterpartyID)
	if err != nil {
		return nil, fmt.Errorf("pricing: list price lists: %w", err)
	}
	defer rows.Close()

	var lists []PriceList
	for rows.Next() {
		var l PriceList
		if err := rows.Scan(&l.ID, &l.CounterpartyID, &l.Name, &l.Primary, &l.ValidFrom, &l.ValidTo, &l.Active); err != nil {
			return nil, err
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

// ListEntries returns the list's entries for an article, all tiers.
func (r *Repository) ListEntries(ctx context.Context, priceListID, articleID int64) ([]Entry, error) {
	const query = `
		SELECT id, price_list_id, article_id, min_qty, unit_price, currency, bonus,
		       COALESCE(additional_discounts, '{}'), COALESCE(financial_discounts, '{}'),
		       COALESCE(valid_from, '0001-01-01'::timestamptz),
		       COALESCE(valid_to, '9999-12-31'::timestamptz),
		       active
		FROM price_list_entries
		WHERE price_list_id = $1 AND article_id = $2 AND active`
	rows, err := r.pool.Query(ctx, query, priceListID, articleID)
	if err != nil {
		return nil, fmt.Errorf("pricing: list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.PriceListID, &e.ArticleID, &e.MinQty, &e.UnitPrice, &e.Currency, &e.Bonus,
			&e.AdditionalDiscounts, &e.FinancialDiscounts,
			&e.ValidFrom, &e.ValidTo, &e.Active,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
