package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/austral-erp/austral-erp/internal/platform/db"
	"github.com/austral-erp/austral-erp/internal/shared"
	"github.com/austral-erp/austral-erp/internal/tax"
)

// Repository persists documents and their lines.
type Repository struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewRepository builds a Repository.
func NewRepository(pool *pgxpool.Pool, lockTimeout time.Duration) *Repository {
	return &Repository{pool: pool, lockTimeout: lockTimeout}
}

// WithTx runs fn inside a RepeatableRead transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, tx)
	})
}

const docColumns = `id, doc_type_code, point_of_sale, number, state, counterparty_id,
       warehouse_id, issued_at, currency, subtotal, tax_breakdown, total, outstanding,
       COALESCE(origin_id, '00000000-0000-0000-0000-000000000000'::uuid), stock_applied,
       COALESCE(authorization_code, ''), COALESCE(authorization_expiry, '0001-01-01'::timestamptz),
       COALESCE(fiscal_rejection, ''), COALESCE(fiscal_last_error, ''), created_at, updated_at`

// Get loads a document with its lines.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Document, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+docColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		return Document{}, err
	}
	doc.Lines, err = r.listLines(ctx, nil, id)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

// GetForUpdate loads a document under a bounded row lock.
func (r *Repository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Document, error) {
	if err := db.SetLockTimeout(ctx, tx, r.lockTimeout); err != nil {
		return Document{}, err
	}
	row := tx.QueryRow(ctx, `SELECT `+docColumns+` FROM documents WHERE id = $1 FOR UPDATE`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if db.IsErrCode(err, db.LockNotAvailable) {
			return Document{}, &shared.ConflictError{Resource: "document", Key: id.String()}
		}
		return Document{}, err
	}
	doc.Lines, err = r.listLines(ctx, tx, id)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Create inserts a draft document and its lines.
func (r *Repository) Create(ctx context.Context, doc Document) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
            INSERT INTO documents (
                id, doc_type_code, point_of_sale, number, state, counterparty_id,
                warehouse_id, issued_at, currency, subtotal, tax_breakdown, total,
                outstanding, origin_id, stock_applied, created_at, updated_at
            ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0,'{}'::jsonb,0,0,NULLIF($10,'00000000-0000-0000-0000-000000000000'::uuid),false,$11,$11)`,
			doc.ID, doc.DocTypeCode, doc.PointOfSale, doc.Number, doc.State,
			doc.CounterpartyID, doc.WarehouseID, doc.IssuedAt, doc.Currency,
			doc.OriginID, doc.CreatedAt)
		if err != nil {
			return fmt.Errorf("documents: insert document: %w", err)
		}
		for _, l := range doc.Lines {
			_, err := tx.Exec(ctx, `
                INSERT INTO document_lines (
                    id, document_id, article_id, category_id, warehouse_id,
                    src_warehouse_id, dst_warehouse_id, description, quantity, unit_price
                ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
				l.ID, doc.ID, l.ArticleID, l.CategoryID, l.WarehouseID,
				l.SrcWarehouseID, l.DstWarehouseID, l.Description, l.Quantity, l.UnitPrice)
			if err != nil {
				return fmt.Errorf("documents: insert line: %w", err)
			}
		}
		return nil
	})
}

// UpdateOnConfirm stamps number, totals, breakdown and the stock flag.
func (r *Repository) UpdateOnConfirm(ctx context.Context, tx pgx.Tx, doc Document) error {
	breakdown, err := json.Marshal(doc.TaxBreakdown)
	if err != nil {
		return fmt.Errorf("documents: marshal breakdown: %w", err)
	}
	tag, err := tx.Exec(ctx, `
        UPDATE documents
        SET number = $2, state = $3, subtotal = $4, tax_breakdown = $5,
            total = $6, outstanding = $7, stock_applied = $8, updated_at = $9
        WHERE id = $1 AND state = 'draft'`,
		doc.ID, doc.Number, doc.State, doc.Subtotal, breakdown,
		doc.Total, doc.Outstanding, doc.StockApplied, doc.UpdatedAt)
	if err != nil {
		if db.IsErrCode(err, db.UniqueViolation) {
			return &shared.DuplicateNumberError{Series: doc.DocTypeCode, Number: doc.Number}
		}
		return fmt.Errorf("documents: confirm update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// UpdateOnVoid stamps the voided state and clears the stock flag.
func (r *Repository) UpdateOnVoid(ctx context.Context, tx pgx.Tx, doc Document) error {
	tag, err := tx.Exec(ctx, `
        UPDATE documents
        SET state = $2, outstanding = 0, stock_applied = false, updated_at = $3
        WHERE id = $1 AND state = 'confirmed'`,
		doc.ID, doc.State, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("documents: void update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// AdjustOutstanding moves a document's unpaid remainder by delta. Used by
// treasury when fund movements are applied or reverted.
func (r *Repository) AdjustOutstanding(ctx context.Context, tx pgx.Tx, documentID uuid.UUID, delta decimal.Decimal) error {
	tag, err := tx.Exec(ctx, `
        UPDATE documents SET outstanding = outstanding + $2, updated_at = now()
        WHERE id = $1 AND state = 'confirmed'`,
		documentID, delta)
	if err != nil {
		return fmt.Errorf("documents: adjust outstanding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("documents: adjust outstanding %s: %w", documentID, shared.ErrNotFound)
	}
	return nil
}

// SaveAuthorization records a granted authorization code.
func (r *Repository) SaveAuthorization(ctx context.Context, id uuid.UUID, code string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
        UPDATE documents
        SET authorization_code = $2, authorization_expiry = $3,
            fiscal_rejection = NULL, fiscal_last_error = NULL, updated_at = now()
        WHERE id = $1`, id, code, expiresAt)
	if err != nil {
		return fmt.Errorf("documents: save authorization: %w", err)
	}
	return nil
}

// SaveRejection records an authority rejection. State does not change.
func (r *Repository) SaveRejection(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `
        UPDATE documents SET fiscal_rejection = $2, updated_at = now() WHERE id = $1`,
		id, reason)
	if err != nil {
		return fmt.Errorf("documents: save rejection: %w", err)
	}
	return nil
}

// SaveLastError records a transient authorization failure.
func (r *Repository) SaveLastError(ctx context.Context, id uuid.UUID, msg string) error {
	_, err := r.pool.Exec(ctx, `
        UPDATE documents SET fiscal_last_error = $2, updated_at = now() WHERE id = $1`,
		id, msg)
	if err != nil {
		return fmt.Errorf("documents: save last error: %w", err)
	}
	return nil
}

// List returns recent documents, newest first.
func (r *Repository) List(ctx context.Context, p shared.Pagination) ([]Document, error) {
	limit := p.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := (p.Page - 1) * limit
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx, `
        SELECT `+docColumns+` FROM documents
        ORDER BY created_at DESC
        LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("documents: list: %w", err)
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (r *Repository) listLines(ctx context.Context, tx pgx.Tx, documentID uuid.UUID) ([]Line, error) {
	const q = `
        SELECT id, article_id, category_id, warehouse_id, src_warehouse_id,
               dst_warehouse_id, description, quantity, unit_price
        FROM document_lines WHERE document_id = $1 ORDER BY id`
	var rows pgx.Rows
	var err error
	if tx != nil {
		rows, err = tx.Query(ctx, q, documentID)
	} else {
		rows, err = r.pool.Query(ctx, q, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("documents: list lines: %w", err)
	}
	defer rows.Close()
	var out []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.ArticleID, &l.CategoryID, &l.WarehouseID,
			&l.SrcWarehouseID, &l.DstWarehouseID, &l.Description, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, fmt.Errorf("documents: scan line: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanDocument(row pgx.Row) (Document, error) {
	var doc Document
	var breakdown []byte
	err := row.Scan(&doc.ID, &doc.DocTypeCode, &doc.PointOfSale, &doc.Number, &doc.State,
		&doc.CounterpartyID, &doc.WarehouseID, &doc.IssuedAt, &doc.Currency,
		&doc.Subtotal, &breakdown, &doc.Total, &doc.Outstanding,
		&doc.OriginID, &doc.StockApplied,
		&doc.AuthorizationCode, &doc.AuthorizationExpiry,
		&doc.FiscalRejection, &doc.FiscalLastError, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, fmt.Errorf("documents: %w", shared.ErrNotFound)
		}
		return Document{}, fmt.Errorf("documents: scan document: %w", err)
	}
	if len(breakdown) > 0 {
		doc.TaxBreakdown = make(tax.Breakdown)
		if err := json.Unmarshal(breakdown, &doc.TaxBreakdown); err != nil {
			return Document{}, fmt.Errorf("documents: decode breakdown: %w", err)
		}
	}
	return doc, nil
}
