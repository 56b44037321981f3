package treasury

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryTreasury struct {
	movements   map[uuid.UUID]Movement
	accounts    map[int64]decimal.Decimal
	outstanding map[uuid.UUID]decimal.Decimal
}

func newMemoryTreasury() *memoryTreasury {
	return &memoryTreasury{
		movements:   make(map[uuid.UUID]Movement),
		accounts:    make(map[int64]decimal.Decimal),
		outstanding: make(map[uuid.UUID]decimal.Decimal),
	}
}

func (m *memoryTreasury) InsertMovement(_ context.Context, _ pgx.Tx, mv Movement) error {
	m.movements[mv.ID] = mv
	return nil
}

func (m *memoryTreasury) GetMovement(_ context.Context, _ pgx.Tx, id uuid.UUID) (Movement, error) {
	return m.movements[id], nil
}

func (m *memoryTreasury) ListAppliedByDocument(_ context.Context, _ pgx.Tx, documentID uuid.UUID) ([]Movement, error) {
	var out []Movement
	for _, mv := range m.movements {
		if mv.DocumentID == documentID && mv.State == StateApplied {
			out = append(out, mv)
		}
	}
	return out, nil
}

func (m *memoryTreasury) MarkReverted(_ context.Context, _ pgx.Tx, id uuid.UUID, at time.Time) error {
	mv := m.movements[id]
	mv.State = StateReverted
	mv.RevertedAt = at
	m.movements[id] = mv
	return nil
}

func (m *memoryTreasury) AdjustAccountBalance(_ context.Context, _ pgx.Tx, accountID int64, delta decimal.Decimal) error {
	m.accounts[accountID] = m.accounts[accountID].Add(delta)
	return nil
}

func (m *memoryTreasury) AdjustOutstanding(_ context.Context, _ pgx.Tx, documentID uuid.UUID, delta decimal.Decimal) error {
	m.outstanding[documentID] = m.outstanding[documentID].Add(delta)
	return nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestApplyReceipt(t *testing.T) {
	repo := newMemoryTreasury()
	svc := NewService(repo, repo)
	ctx := context.Background()
	docID := uuid.New()
	repo.outstanding[docID] = dec("242.00")

	m, err := svc.Apply(ctx, nil, ApplyInput{
		DocumentID: docID,
		Kind:       KindReceipt,
		AccountID:  1,
		Amount:     dec("100.00"),
		Currency:   "ARS",
	})
	require.NoError(t, err)
	require.Equal(t, StateApplied, m.State)
	require.True(t, repo.accounts[1].Equal(dec("100.00")))
	require.True(t, repo.outstanding[docID].Equal(dec("142.00")))
}

func TestApplyPaymentMovesAccountDown(t *testing.T) {
	repo := newMemoryTreasury()
	svc := NewService(repo, repo)
	docID := uuid.New()
	repo.outstanding[docID] = dec("500.00")

	_, err := svc.Apply(context.Background(), nil, ApplyInput{
		DocumentID: docID,
		Kind:       KindPayment,
		AccountID:  2,
		Amount:     dec("500.00"),
		Currency:   "ARS",
	})
	require.NoError(t, err)
	require.True(t, repo.accounts[2].Equal(dec("-500.00")))
	require.True(t, repo.outstanding[docID].IsZero())
}

func TestRevertIsSymmetric(t *testing.T) {
	repo := newMemoryTreasury()
	svc := NewService(repo, repo)
	ctx := context.Background()
	docID := uuid.New()
	repo.outstanding[docID] = dec("242.00")

	m, err := svc.Apply(ctx, nil, ApplyInput{
		DocumentID: docID, Kind: KindReceipt, AccountID: 1, Amount: dec("242.00"), Currency: "ARS",
	})
	require.NoError(t, err)
	require.True(t, repo.outstanding[docID].IsZero())

	require.NoError(t, svc.Revert(ctx, nil, m.ID))
	require.True(t, repo.accounts[1].IsZero())
	require.True(t, repo.outstanding[docID].Equal(dec("242.00")))
	require.Equal(t, StateReverted, repo.movements[m.ID].State)

	require.ErrorIs(t, svc.Revert(ctx, nil, m.ID), ErrAlreadyReverted)
}

func TestRevertForDocument(t *testing.T) {
	repo := newMemoryTreasury()
	svc := NewService(repo, repo)
	ctx := context.Background()
	docID := uuid.New()
	otherDoc := uuid.New()
	repo.outstanding[docID] = dec("300.00")
	repo.outstanding[otherDoc] = dec("50.00")

	_, err := svc.Apply(ctx, nil, ApplyInput{DocumentID: docID, Kind: KindReceipt, AccountID: 1, Amount: dec("100.00"), Currency: "ARS"})
	require.NoError(t, err)
	_, err = svc.Apply(ctx, nil, ApplyInput{DocumentID: docID, Kind: KindReceipt, AccountID: 1, Amount: dec("200.00"), Currency: "ARS"})
	require.NoError(t, err)
	_, err = svc.Apply(ctx, nil, ApplyInput{DocumentID: otherDoc, Kind: KindReceipt, AccountID: 1, Amount: dec("50.00"), Currency: "ARS"})
	require.NoError(t, err)

	require.NoError(t, svc.RevertForDocument(ctx, nil, docID))
	require.True(t, repo.outstanding[docID].Equal(dec("300.00")))
	require.True(t, repo.outstanding[otherDoc].IsZero(), "other documents untouched")
	require.True(t, repo.accounts[1].Equal(dec("50.00")))
}

func TestApplyValidation(t *testing.T) {
	repo := newMemoryTreasury()
	svc := NewService(repo, repo)
	ctx := context.Background()

	_, err := svc.Apply(ctx, nil, ApplyInput{Kind: KindReceipt, AccountID: 1, Amount: dec("0")})
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = svc.Apply(ctx, nil, ApplyInput{Kind: Kind("loan"), AccountID: 1, Amount: dec("10")})
	require.Error(t, err)

	_, err = svc.Apply(ctx, nil, ApplyInput{Kind: KindReceipt, Amount: dec("10")})
	require.Error(t, err)
}
