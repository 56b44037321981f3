package treasury

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/austral-erp/austral-erp/internal/shared"
)

// Repository persists fund movements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertMovement stores a freshly applied movement.
func (r *Repository) InsertMovement(ctx context.Context, tx pgx.Tx, m Movement) error {
	const query = `
		INSERT INTO fund_movements (id, document_id, kind, account_id, amount, currency, state, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := tx.Exec(ctx, query,
		m.ID, m.DocumentID, string(m.Kind), m.AccountID, m.Amount, m.Currency, string(m.State), m.PostedAt,
	)
	return err
}

// GetMovement fetches one movement.
func (r *Repository) GetMovement(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Movement, error) {
	const query = `
		SELECT id, document_id, kind, account_id, amount, currency, state, posted_at,
		       COALESCE(reverted_at, '0001-01-01'::timestamptz)
		FROM fund_movements WHERE id = $1`
	var m Movement
	var kind, state string
	err := tx.QueryRow(ctx, query, id).Scan(
		&m.ID, &m.DocumentID, &kind, &m.AccountID, &m.Amount, &m.Currency, &state, &m.PostedAt, &m.RevertedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Movement{}, fmt.Errorf("treasury: movement %s: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return Movement{}, err
	}
	m.Kind = Kind(kind)
	m.State = State(state)
	return m, nil
}

// ListAppliedByDocument returns movements still counting against a document.
func (r *Repository) ListAppliedByDocument(ctx context.Context, tx pgx.Tx, documentID uuid.UUID) ([]Movement, error) {
	const query = `
		SELECT id, document_id, kind, account_id, amount, currency, state, posted_at,
		       COALESCE(reverted_at, '0001-01-01'::timestamptz)
		FROM fund_movements
		WHERE document_id = $1 AND state = 'applied'
		ORDER BY posted_at, id`
	rows, err := tx.Query(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var movements []Movement
	for rows.Next() {
		var m Movement
		var kind, state string
		if err := rows.Scan(
			&m.ID, &m.DocumentID, &kind, &m.AccountID, &m.Amount, &m.Currency, &state, &m.PostedAt, &m.RevertedAt,
		); err != nil {
			return nil, err
		}
		m.Kind = Kind(kind)
		m.State = State(state)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// MarkReverted flips the movement into its terminal state.
func (r *Repository) MarkReverted(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error {
	const query = `UPDATE fund_movements SET state = 'reverted', reverted_at = $2 WHERE id = $1`
	_, err := tx.Exec(ctx, query, id, at)
	return err
}

// AdjustAccountBalance moves the cash account under its row lock.
func (r *Repository) AdjustAccountBalance(ctx context.Context, tx pgx.Tx, accountID int64, delta decimal.Decimal) error {
	const lock = `SELECT balance FROM cash_accounts WHERE id = $1 FOR UPDATE`
	var balance decimal.Decimal
	if err := tx.QueryRow(ctx, lock, accountID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("treasury: cash account %d: %w", accountID, shared.ErrNotFound)
		}
		return err
	}
	const update = `UPDATE cash_accounts SET balance = balance + $2, updated_at = NOW() WHERE id = $1`
	_, err := tx.Exec(ctx, update, accountID, delta)
	return err
}
