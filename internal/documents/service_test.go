package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/austral-erp/austral-erp/internal/numbering"
	"github.com/austral-erp/austral-erp/internal/shared"
	"github.com/austral-erp/austral-erp/internal/stock"
	"github.com/austral-erp/austral-erp/internal/tax"
)

type memoryRepo struct {
	docs map[uuid.UUID]Document
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{docs: make(map[uuid.UUID]Document)}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

func (m *memoryRepo) Get(_ context.Context, id uuid.UUID) (Document, error) {
	doc, ok := m.docs[id]
	if !ok {
		return Document{}, fmt.Errorf("documents: %w", shared.ErrNotFound)
	}
	return doc, nil
}

func (m *memoryRepo) GetForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (Document, error) {
	return m.Get(ctx, id)
}

func (m *memoryRepo) Create(_ context.Context, doc Document) error {
	m.docs[doc.ID] = doc
	return nil
}

func (m *memoryRepo) UpdateOnConfirm(_ context.Context, _ pgx.Tx, doc Document) error {
	m.docs[doc.ID] = doc
	return nil
}

func (m *memoryRepo) UpdateOnVoid(_ context.Context, _ pgx.Tx, doc Document) error {
	m.docs[doc.ID] = doc
	return nil
}

func (m *memoryRepo) List(_ context.Context, _ shared.Pagination) ([]Document, error) {
	out := make([]Document, 0, len(m.docs))
	for _, doc := range m.docs {
		out = append(out, doc)
	}
	return out, nil
}

type fakeNumbers struct {
	next      map[string]int64
	validated []int64
}

func newFakeNumbers() *fakeNumbers {
	return &fakeNumbers{next: make(map[string]int64)}
}

func (f *fakeNumbers) Allocate(_ context.Context, _ pgx.Tx, key numbering.SeriesKey) (int64, error) {
	f.next[key.String()]++
	return f.next[key.String()], nil
}

func (f *fakeNumbers) ValidateManual(_ context.Context, _ pgx.Tx, _ numbering.SeriesKey, number int64) error {
	f.validated = append(f.validated, number)
	return nil
}

// fakeTaxes applies a flat 21% named rate to the line subtotals.
type fakeTaxes struct{}

func (fakeTaxes) Compute(_ context.Context, lines []tax.Line, _ string, _ tax.Scope, _ time.Time) (tax.Breakdown, error) {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	rate := decimal.RequireFromString("0.21")
	return tax.Breakdown{"IVA": shared.Round2(total.Mul(rate))}, nil
}

type fakeStock struct {
	applied  []stock.ApplyRequest
	reverted []stock.RevertRequest
	failWith error
}

func (f *fakeStock) Apply(_ context.Context, _ pgx.Tx, req stock.ApplyRequest) error {
	if f.failWith != nil {
		return f.failWith
	}
	f.applied = append(f.applied, req)
	return nil
}

func (f *fakeStock) Revert(_ context.Context, _ pgx.Tx, req stock.RevertRequest) error {
	f.reverted = append(f.reverted, req)
	return nil
}

type fakeTreasury struct {
	reverted []uuid.UUID
}

func (f *fakeTreasury) RevertForDocument(_ context.Context, _ pgx.Tx, id uuid.UUID) error {
	f.reverted = append(f.reverted, id)
	return nil
}

type fakeDispatcher struct {
	enqueued []uuid.UUID
}

func (f *fakeDispatcher) EnqueueAuthorization(_ context.Context, id uuid.UUID) error {
	f.enqueued = append(f.enqueued, id)
	return nil
}

type fixture struct {
	repo       *memoryRepo
	numbers    *fakeNumbers
	stock      *fakeStock
	treasury   *fakeTreasury
	dispatcher *fakeDispatcher
	service    *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:       newMemoryRepo(),
		numbers:    newFakeNumbers(),
		stock:      &fakeStock{},
		treasury:   &fakeTreasury{},
		dispatcher: &fakeDispatcher{},
	}
	f.service = NewService(f.repo, DefaultRegistry(), f.numbers, fakeTaxes{}, f.stock, f.treasury, f.dispatcher, slog.Default())
	return f
}

func (f *fixture) draft(t *testing.T, in CreateInput) Document {
	t.Helper()
	doc, err := f.service.CreateDraft(context.Background(), in)
	require.NoError(t, err)
	return doc
}

func salesInput() CreateInput {
	return CreateInput{
		DocTypeCode:    "FVA",
		PointOfSale:    3,
		CounterpartyID: 42,
		WarehouseID:    1,
		Currency:       "ARS",
		Lines: []Line{{
			ArticleID: 10,
			Quantity:  decimal.NewFromInt(2),
			UnitPrice: decimal.NewFromInt(100),
		}},
	}
}

func TestConfirmComputesTotalsAndAppliesStock(t *testing.T) {
	f := newFixture(t)
	doc := f.draft(t, salesInput())

	confirmed, err := f.service.Confirm(context.Background(), doc.ID)
	require.NoError(t, err)

	require.Equal(t, StateConfirmed, confirmed.State)
	require.EqualValues(t, 1, confirmed.Number)
	require.Equal(t, "200.00", confirmed.Subtotal.StringFixed(2))
	require.Equal(t, "42.00", confirmed.TaxBreakdown["IVA"].StringFixed(2))
	require.Equal(t, "242.00", confirmed.Total.StringFixed(2))
	require.Equal(t, "242.00", confirmed.Outstanding.StringFixed(2))
	require.True(t, confirmed.StockApplied)
	require.Equal(t, "A 00003-00000001", confirmed.FormattedNumber("A"))

	require.Len(t, f.stock.applied, 1)
	req := f.stock.applied[0]
	require.Equal(t, stock.MovementSaleOut, req.Movement)
	require.Equal(t, doc.ID, req.SourceID)
	require.Len(t, req.Lines, 1)
	require.True(t, req.Lines[0].Quantity.Equal(decimal.NewFromInt(2)))

	require.Equal(t, []uuid.UUID{doc.ID}, f.dispatcher.enqueued)
}

func TestConfirmFailureLeavesDraft(t *testing.T) {
	f := newFixture(t)
	f.stock.failWith = errors.New("warehouse offline")
	doc := f.draft(t, salesInput())

	_, err := f.service.Confirm(context.Background(), doc.ID)
	require.Error(t, err)

	stored, err := f.repo.Get(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, StateDraft, stored.State)
	require.Zero(t, stored.Number)
	require.Empty(t, f.dispatcher.enqueued)
}

func TestConfirmTwiceFails(t *testing.T) {
	f := newFixture(t)
	doc := f.draft(t, salesInput())

	_, err := f.service.Confirm(context.Background(), doc.ID)
	require.NoError(t, err)
	_, err = f.service.Confirm(context.Background(), doc.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestConfirmManualNumberSkipsAllocation(t *testing.T) {
	f := newFixture(t)
	in := salesInput()
	in.ManualNumber = 105
	doc := f.draft(t, in)

	confirmed, err := f.service.Confirm(context.Background(), doc.ID)
	require.NoError(t, err)
	require.EqualValues(t, 105, confirmed.Number)
	require.Equal(t, []int64{105}, f.numbers.validated)
	require.Empty(t, f.numbers.next)
}

func TestConfirmRejectsEmptyLines(t *testing.T) {
	f := newFixture(t)
	in := salesInput()
	in.Lines = nil
	doc := f.draft(t, in)

	_, err := f.service.Confirm(context.Background(), doc.ID)
	require.ErrorIs(t, err, ErrNoLines)
}

func TestConfirmRejectsNonPositiveQuantity(t *testing.T) {
	f := newFixture(t)
	in := salesInput()
	in.Lines[0].Quantity = decimal.Zero
	doc := f.draft(t, in)

	_, err := f.service.Confirm(context.Background(), doc.ID)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestConfirmNonElectronicDoesNotDispatch(t *testing.T) {
	f := newFixture(t)
	in := salesInput()
	in.DocTypeCode = "FCA"
	doc := f.draft(t, in)

	_, err := f.service.Confirm(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Empty(t, f.dispatcher.enqueued)
}

func TestVoidRevertsStockAndFunds(t *testing.T) {
	f := newFixture(t)
	doc := f.draft(t, salesInput())
	_, err := f.service.Confirm(context.Background(), doc.ID)
	require.NoError(t, err)

	voided, err := f.service.Void(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, StateVoided, voided.State)
	require.False(t, voided.StockApplied)
	require.True(t, voided.Outstanding.IsZero())

	require.Len(t, f.stock.reverted, 1)
	require.Equal(t, doc.ID, f.stock.reverted[0].SourceID)
	require.True(t, f.stock.reverted[0].Applied)
	require.Equal(t, []uuid.UUID{doc.ID}, f.treasury.reverted)
}

func TestVoidRequiresConfirmed(t *testing.T) {
	f := newFixture(t)
	doc := f.draft(t, salesInput())

	_, err := f.service.Void(context.Background(), doc.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCreditNoteRequiresOrigin(t *testing.T) {
	f := newFixture(t)
	in := salesInput()
	in.DocTypeCode = "NCA"

	_, err := f.service.CreateDraft(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrValidation)

	in.OriginID = uuid.New()
	_, err = f.service.CreateDraft(context.Background(), in)
	require.NoError(t, err)
}

func TestCreateDraftRejectsUnknownType(t *testing.T) {
	f := newFixture(t)
	in := salesInput()
	in.DocTypeCode = "XXX"

	_, err := f.service.CreateDraft(context.Background(), in)
	require.ErrorIs(t, err, shared.ErrMissingConfiguration)
}

func TestRequestAuthorization(t *testing.T) {
	f := newFixture(t)
	doc := f.draft(t, salesInput())

	// Drafts cannot be sent to the authority.
	err := f.service.RequestAuthorization(context.Background(), doc.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.service.Confirm(context.Background(), doc.ID)
	require.NoError(t, err)
	f.dispatcher.enqueued = nil

	require.NoError(t, f.service.RequestAuthorization(context.Background(), doc.ID))
	require.Equal(t, []uuid.UUID{doc.ID}, f.dispatcher.enqueued)
}

func TestRequestAuthorizationRejectsNonElectronic(t *testing.T) {
	f := newFixture(t)
	in := salesInput()
	in.DocTypeCode = "FCA"
	doc := f.draft(t, in)
	_, err := f.service.Confirm(context.Background(), doc.ID)
	require.NoError(t, err)

	err = f.service.RequestAuthorization(context.Background(), doc.ID)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestNumberSeriesIsPerTypeAndPointOfSale(t *testing.T) {
	f := newFixture(t)

	first := f.draft(t, salesInput())
	_, err := f.service.Confirm(context.Background(), first.ID)
	require.NoError(t, err)

	other := salesInput()
	other.PointOfSale = 4
	second := f.draft(t, other)
	confirmed, err := f.service.Confirm(context.Background(), second.ID)
	require.NoError(t, err)

	// A different point of sale starts its own sequence.
	require.EqualValues(t, 1, confirmed.Number)
}
