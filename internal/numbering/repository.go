package numbering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/austral-erp/austral-erp/internal/platform/db"
)

// Repository persists sequence counters in PostgreSQL.
//
// All mutating operations run on the caller's transaction: the counter row must
// stay locked until the document that consumed the number commits, or the gap
// guarantee is lost.
type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewRepository constructs Repository. lockTimeout bounds the wait for the
// counter row before the allocation surfaces a retryable conflict.
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

// NextNumber locks the counter row and returns last_number + 1, persisting the
// increment. The row is created on first use.
func (r *Repository) NextNumber(ctx context.Context, tx pgx.Tx, key SeriesKey) (int64, error) {
	if err := db.SetLockTimeout(ctx, tx, r.lockTimeout); err != nil {
		return 0, err
	}

	const ensure = `
		INSERT INTO document_counters (series_type, point_of_sale, last_number)
		VALUES ($1, $2, 0)
		ON CONFLICT (series_type, point_of_sale) DO NOTHING`
	if _, err := tx.Exec(ctx, ensure, key.SeriesType, key.PointOfSale); err != nil {
		return 0, fmt.Errorf("numbering: ensure counter: %w", err)
	}

	const allocate = `
		UPDATE document_counters
		SET last_number = last_number + 1, updated_at = NOW()
		WHERE series_type = $1 AND point_of_sale = $2
		RETURNING last_number`
	var number int64
	if err := tx.QueryRow(ctx, allocate, key.SeriesType, key.PointOfSale).Scan(&number); err != nil {
		return 0, err
	}
	return number, nil
}

// NumberExists reports whether a document already carries the given number in
// the series. Used to reject colliding manual numbers before insert.
func (r *Repository) NumberExists(ctx context.Context, tx pgx.Tx, key SeriesKey, number int64) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM documents
			WHERE series_type = $1 AND point_of_sale = $2 AND number = $3
		)`
	var exists bool
	if err := tx.QueryRow(ctx, query, key.SeriesType, key.PointOfSale, number).Scan(&exists); err != nil {
		return false, fmt.Errorf("numbering: check number: %w", err)
	}
	return exists, nil
}

// AdvanceTo raises the counter to at least number, holding the row lock so a
// concurrent automatic allocation cannot slip in between. The counter never
// moves backwards.
func (r *Repository) AdvanceTo(ctx context.Context, tx pgx.Tx, key SeriesKey, number int64) error {
	if err := db.SetLockTimeout(ctx, tx, r.lockTimeout); err != nil {
		return err
	}
	const query = `
		INSERT INTO document_counters (series_type, point_of_sale, last_number)
		VALUES ($1, $2, $3)
		ON CONFLICT (series_type, point_of_sale) DO UPDATE
		SET last_number = GREATEST(document_counters.last_number, EXCLUDED.last_number),
		    updated_at = NOW()`
	if _, err := tx.Exec(ctx, query, key.SeriesType, key.PointOfSale, number); err != nil {
		return fmt.Errorf("numbering: advance counter: %w", err)
	}
	return nil
}

// CurrentNumber reads the last issued number without locking. Zero when the
// series has never allocated.
func (r *Repository) CurrentNumber(ctx context.Context, key SeriesKey) (int64, error) {
	const query = `
		SELECT last_number FROM document_counters
		WHERE series_type = $1 AND point_of_sale = $2`
	var number int64
	err := r.pool.QueryRow(ctx, query, key.SeriesType, key.PointOfSale).Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return number, nil
}
