package treasury

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/austral-erp/austral-erp/internal/shared"
)

// TxRepository persists movements and account balances on the caller's
// transaction.
type TxRepository interface {
	InsertMovement(ctx context.Context, tx pgx.Tx, m Movement) error
	GetMovement(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Movement, error)
	ListAppliedByDocument(ctx context.Context, tx pgx.Tx, documentID uuid.UUID) ([]Movement, error)
	MarkReverted(ctx context.Context, tx pgx.Tx, id uuid.UUID, at time.Time) error
	AdjustAccountBalance(ctx context.Context, tx pgx.Tx, accountID int64, delta decimal.Decimal) error
}

// DocumentBalancePort adjusts a document's outstanding balance.
type DocumentBalancePort interface {
	AdjustOutstanding(ctx context.Context, tx pgx.Tx, documentID uuid.UUID, delta decimal.Decimal) error
}

// Service posts and reverts fund movements. Apply and Revert are exact
// symmetric inverses; voiding a document reverts every applied movement.
type Service struct {
	repo TxRepository
	docs DocumentBalancePort
}

// NewService builds Service.
func NewService(repo TxRepository, docs DocumentBalancePort) *Service {
	return &Service{repo: repo, docs: docs}
}

// Apply posts a movement: the cash account moves by the signed amount and the
// document's outstanding balance decreases by the amount paid.
func (s *Service) Apply(ctx context.Context, tx pgx.Tx, input ApplyInput) (Movement, error) {
	if input.Amount.Sign() <= 0 {
		return Movement{}, ErrInvalidAmount
	}
	if input.Kind.Sign() == 0 {
		return Movement{}, &shared.ValidationError{Field: "kind", Msg: fmt.Sprintf("unknown movement kind %q", input.Kind)}
	}
	if input.AccountID == 0 {
		return Movement{}, &shared.ValidationError{Field: "account_id", Msg: "cash account required"}
	}

	m := Movement{
		ID:         uuid.New(),
		DocumentID: input.DocumentID,
		Kind:       input.Kind,
		AccountID:  input.AccountID,
		Amount:     input.Amount,
		Currency:   input.Currency,
		State:      StateApplied,
		PostedAt:   time.Now().UTC(),
	}

	accountDelta := input.Amount
	if input.Kind.Sign() < 0 {
		accountDelta = accountDelta.Neg()
	}
	if err := s.repo.AdjustAccountBalance(ctx, tx, input.AccountID, accountDelta); err != nil {
		return Movement{}, fmt.Errorf("treasury: adjust account: %w", err)
	}
	if err := s.docs.AdjustOutstanding(ctx, tx, input.DocumentID, input.Amount.Neg()); err != nil {
		return Movement{}, fmt.Errorf("treasury: adjust outstanding: %w", err)
	}
	if err := s.repo.InsertMovement(ctx, tx, m); err != nil {
		return Movement{}, fmt.Errorf("treasury: insert movement: %w", err)
	}
	return m, nil
}

// Revert undoes one movement symmetrically.
func (s *Service) Revert(ctx context.Context, tx pgx.Tx, movementID uuid.UUID) error {
	m, err := s.repo.GetMovement(ctx, tx, movementID)
	if err != nil {
		return err
	}
	return s.revert(ctx, tx, m)
}

// RevertForDocument undoes every applied movement posted against the
// document. Called by the state machine when the document is voided.
func (s *Service) RevertForDocument(ctx context.Context, tx pgx.Tx, documentID uuid.UUID) error {
	movements, err := s.repo.ListAppliedByDocument(ctx, tx, documentID)
	if err != nil {
		return fmt.Errorf("treasury: list movements: %w", err)
	}
	for _, m := range movements {
		if err := s.revert(ctx, tx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) revert(ctx context.Context, tx pgx.Tx, m Movement) error {
	if m.State == StateReverted {
		return ErrAlreadyReverted
	}
	accountDelta := m.Amount
	if m.Kind.Sign() > 0 {
		accountDelta = accountDelta.Neg()
	}
	if err := s.repo.AdjustAccountBalance(ctx, tx, m.AccountID, accountDelta); err != nil {
		return fmt.Errorf("treasury: revert account: %w", err)
	}
	if err := s.docs.AdjustOutstanding(ctx, tx, m.DocumentID, m.Amount); err != nil {
		return fmt.Errorf("treasury: revert outstanding: %w", err)
	}
	if err := s.repo.MarkReverted(ctx, tx, m.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("treasury: mark reverted: %w", err)
	}
	return nil
}
