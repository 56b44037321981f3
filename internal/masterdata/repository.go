package masterdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/austral-erp/austral-erp/internal/shared"
)

// Repository reads master data from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetArticle fetches an article by id.
func (r *Repository) GetArticle(ctx context.Context, id int64) (Article, error) {
	const query = `
		SELECT id, code, name, category_id, base_cost, purchase_unit_factor,
		       COALESCE(default_warehouse_id, 0), active, created_at, updated_at
		FROM articles WHERE id = $1`
	var a Article
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Code, &a.Name, &a.CategoryID, &a.BaseCost, &a.PurchaseUnitFactor,
		&a.DefaultWarehouseID, &a.Active, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Article{}, fmt.Errorf("masterdata: article %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Article{}, fmt.Errorf("masterdata: get article: %w", err)
	}
	return a, nil
}

// GetWarehouse fetches a warehouse by id.
func (r *Repository) GetWarehouse(ctx context.Context, id int64) (Warehouse, error) {
	const query = `
		SELECT id, code, name, address, principal, created_at, updated_at
		FROM warehouses WHERE id = $1`
	var w Warehouse
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&w.ID, &w.Code, &w.Name, &w.Address, &w.Principal, &w.CreatedAt, &w.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, fmt.Errorf("masterdata: warehouse %d: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Warehouse{}, fmt.Errorf("masterdata: get warehouse: %w", err)
	}
	return w, nil
}

// PrincipalWarehouseID resolves the system principal warehouse, the last
// fallback when neither the line nor the document names one.
func (r *Repository) PrincipalWarehouseID(ctx context.Context) (int64, error) {
	const query = `SELECT id FROM warehouses WHERE principal LIMIT 1`
	var id int64
	err := r.pool.QueryRow(ctx, query).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("masterdata: principal warehouse: %w", err)
	}
	return id, nil
}
