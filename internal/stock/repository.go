package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/austral-erp/austral-erp/internal/platform/db"
)

// Repository persists the stock ledger in PostgreSQL.
type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

// GetBalanceForUpdate locks and returns the balance row, initialising a zero
// balance when the key has never moved.
func (r *Repository) GetBalanceForUpdate(ctx context.Context, tx pgx.Tx, articleID, warehouseID int64, kind Kind) (Balance, error) {
	if err := db.SetLockTimeout(ctx, tx, r.lockTimeout); err != nil {
		return Balance{}, err
	}
	const query = `
		SELECT article_id, warehouse_id, kind, quantity, updated_at
		FROM stock_balances
		WHERE article_id = $1 AND warehouse_id = $2 AND kind = $3
		FOR UPDATE`
	var b Balance
	err := tx.QueryRow(ctx, query, articleID, warehouseID, string(kind)).Scan(
		&b.ArticleID, &b.WarehouseID, &b.Kind, &b.Quantity, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{ArticleID: articleID, WarehouseID: warehouseID, Kind: kind}, nil
	}
	if err != nil {
		return Balance{}, err
	}
	return b, nil
}

// GetBalance reads a balance without locking. A key that never moved reads
// as zero.
func (r *Repository) GetBalance(ctx context.Context, articleID, warehouseID int64, kind Kind) (Balance, error) {
	const query = `
		SELECT article_id, warehouse_id, kind, quantity, updated_at
		FROM stock_balances
		WHERE article_id = $1 AND warehouse_id = $2 AND kind = $3`
	var b Balance
	err := r.pool.QueryRow(ctx, query, articleID, warehouseID, string(kind)).Scan(
		&b.ArticleID, &b.WarehouseID, &b.Kind, &b.Quantity, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Balance{ArticleID: articleID, WarehouseID: warehouseID, Kind: kind}, nil
	}
	if err != nil {
		return Balance{}, err
	}
	return b, nil
}

// UpsertBalance writes the materialized balance for the key.
func (r *Repository) UpsertBalance(ctx context.Context, tx pgx.Tx, balance Balance) error {
	const query = `
		INSERT INTO stock_balances (article_id, warehouse_id, kind, quantity, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (article_id, warehouse_id, kind)
		DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = EXCLUDED.updated_at`
	_, err := tx.Exec(ctx, query,
		balance.ArticleID, balance.WarehouseID, string(balance.Kind),
		balance.Quantity, balance.UpdatedAt,
	)
	return err
}

// InsertEntry appends an immutable ledger entry.
func (r *Repository) InsertEntry(ctx context.Context, tx pgx.Tx, entry LedgerEntry) error {
	const query = `
		INSERT INTO stock_ledger_entries
			(id, article_id, warehouse_id, kind, quantity, source_type, source_id, reversal_of, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, '00000000-0000-0000-0000-000000000000'::uuid), $9)`
	_, err := tx.Exec(ctx, query,
		entry.ID, entry.ArticleID, entry.WarehouseID, string(entry.Kind),
		entry.Quantity, entry.SourceType, entry.SourceID, entry.ReversalOf, entry.PostedAt,
	)
	return err
}

// ListEntriesBySource returns every ledger entry a document produced, oldest
// first, reversals included.
func (r *Repository) ListEntriesBySource(ctx context.Context, tx pgx.Tx, sourceType string, sourceID uuid.UUID) ([]LedgerEntry, error) {
	const query = `
		SELECT id, article_id, warehouse_id, kind, quantity, source_type, source_id,
		       COALESCE(reversal_of, '00000000-0000-0000-0000-000000000000'::uuid), posted_at
		FROM stock_ledger_entries
		WHERE source_type = $1 AND source_id = $2
		ORDER BY posted_at, id`
	rows, err := tx.Query(ctx, query, sourceType, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(
			&e.ID, &e.ArticleID, &e.WarehouseID, &e.Kind, &e.Quantity,
			&e.SourceType, &e.SourceID, &e.ReversalOf, &e.PostedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetStockCard derives kardex rows from the ledger with a running balance.
// The balance is seeded with the sum of everything posted before the window,
// so a date-filtered card opens at the true quantity, not at zero.
func (r *Repository) GetStockCard(ctx context.Context, filter CardFilter) ([]CardEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}

	opening := decimal.Zero
	if !filter.From.IsZero() {
		const openingQuery = `
			SELECT COALESCE(SUM(quantity), 0)
			FROM stock_ledger_entries
			WHERE article_id = $1 AND warehouse_id = $2 AND kind = $3 AND posted_at < $4`
		if err := r.pool.QueryRow(ctx, openingQuery,
			filter.ArticleID, filter.WarehouseID, string(KindOnHand), filter.From,
		).Scan(&opening); err != nil {
			return nil, fmt.Errorf("stock: opening balance: %w", err)
		}
	}

	const query = `
		SELECT id, posted_at, source_type, source_id, quantity
		FROM stock_ledger_entries
		WHERE article_id = $1 AND warehouse_id = $2 AND kind = $3
		  AND ($4::timestamptz IS NULL OR posted_at >= $4)
		  AND ($5::timestamptz IS NULL OR posted_at <= $5)
		ORDER BY posted_at, id
		LIMIT $6`
	var from, to any
	if !filter.From.IsZero() {
		from = filter.From
	}
	if !filter.To.IsZero() {
		to = filter.To
	}
	rows, err := r.pool.Query(ctx, query,
		filter.ArticleID, filter.WarehouseID, string(KindOnHand), from, to, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("stock: stock card: %w", err)
	}
	defer rows.Close()

	var ledger []cardRow
	for rows.Next() {
		var row cardRow
		if err := rows.Scan(&row.EntryID, &row.PostedAt, &row.SourceType, &row.SourceID, &row.Quantity); err != nil {
			return nil, err
		}
		ledger = append(ledger, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return buildCard(opening, ledger), nil
}

type cardRow struct {
	EntryID    uuid.UUID
	PostedAt   time.Time
	SourceType string
	SourceID   uuid.UUID
	Quantity   decimal.Decimal
}

// buildCard folds signed ledger rows into kardex entries, accumulating the
// running balance on top of the window's opening balance.
func buildCard(opening decimal.Decimal, rows []cardRow) []CardEntry {
	running := opening
	cards := make([]CardEntry, 0, len(rows))
	for _, row := range rows {
		running = running.Add(row.Quantity)
		entry := CardEntry{
			EntryID:    row.EntryID,
			PostedAt:   row.PostedAt,
			SourceType: row.SourceType,
			SourceID:   row.SourceID,
			Balance:    running,
		}
		if row.Quantity.IsPositive() {
			entry.QtyIn = row.Quantity
		} else {
			entry.QtyOut = row.Quantity.Neg()
		}
		cards = append(cards, entry)
	}
	return cards
}
