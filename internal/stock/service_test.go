package stock

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/austral-erp/austral-erp/internal/shared"
)

type memoryLedger struct {
	balances map[string]Balance
	entries  []LedgerEntry
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{balances: make(map[string]Balance)}
}

func balanceKey(articleID, warehouseID int64, kind Kind) string {
	return fmt.Sprintf("%d:%d:%s", articleID, warehouseID, kind)
}

func (m *memoryLedger) GetBalanceForUpdate(_ context.Context, _ pgx.Tx, articleID, warehouseID int64, kind Kind) (Balance, error) {
	if b, ok := m.balances[balanceKey(articleID, warehouseID, kind)]; ok {
		return b, nil
	}
	return Balance{ArticleID: articleID, WarehouseID: warehouseID, Kind: kind}, nil
}

func (m *memoryLedger) GetBalance(_ context.Context, articleID, warehouseID int64, kind Kind) (Balance, error) {
	if b, ok := m.balances[balanceKey(articleID, warehouseID, kind)]; ok {
		return b, nil
	}
	return Balance{ArticleID: articleID, WarehouseID: warehouseID, Kind: kind}, nil
}

func (m *memoryLedger) UpsertBalance(_ context.Context, _ pgx.Tx, balance Balance) error {
	m.balances[balanceKey(balance.ArticleID, balance.WarehouseID, balance.Kind)] = balance
	return nil
}

func (m *memoryLedger) InsertEntry(_ context.Context, _ pgx.Tx, entry LedgerEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryLedger) ListEntriesBySource(_ context.Context, _ pgx.Tx, sourceType string, sourceID uuid.UUID) ([]LedgerEntry, error) {
	var out []LedgerEntry
	for _, e := range m.entries {
		if e.SourceType == sourceType && e.SourceID == sourceID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryLedger) quantity(articleID, warehouseID int64) decimal.Decimal {
	return m.balances[balanceKey(articleID, warehouseID, KindOnHand)].Quantity
}

type staticWarehouses struct{ principal int64 }

func (w staticWarehouses) PrincipalWarehouseID(context.Context) (int64, error) {
	return w.principal, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestAdjustModes(t *testing.T) {
	repo := newMemoryLedger()
	svc := NewService(repo, staticWarehouses{}, nil)
	ctx := context.Background()

	// Directional mode takes the absolute value.
	b, err := svc.Adjust(ctx, nil, AdjustInput{ArticleID: 1, WarehouseID: 1, Quantity: dec("-10"), Direction: DirectionAdd})
	require.NoError(t, err)
	require.True(t, b.Quantity.Equal(dec("10")))

	b, err = svc.Adjust(ctx, nil, AdjustInput{ArticleID: 1, WarehouseID: 1, Quantity: dec("4"), Direction: DirectionSubtract})
	require.NoError(t, err)
	require.True(t, b.Quantity.Equal(dec("6")))

	// Algebraic mode applies the signed delta as given.
	b, err = svc.Adjust(ctx, nil, AdjustInput{ArticleID: 1, WarehouseID: 1, Quantity: dec("-2.5")})
	require.NoError(t, err)
	require.True(t, b.Quantity.Equal(dec("3.5")))

	_, err = svc.Adjust(ctx, nil, AdjustInput{ArticleID: 1, WarehouseID: 1, Quantity: decimal.Zero})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestApplyRevertInverse(t *testing.T) {
	repo := newMemoryLedger()
	svc := NewService(repo, staticWarehouses{}, nil)
	ctx := context.Background()
	docID := uuid.New()

	// Seed opening stock.
	_, err := svc.Adjust(ctx, nil, AdjustInput{ArticleID: 7, WarehouseID: 2, Quantity: dec("100")})
	require.NoError(t, err)

	req := ApplyRequest{
		SourceType:         "document",
		SourceID:           docID,
		Movement:           MovementSaleOut,
		DefaultWarehouseID: 2,
		Lines: []ApplyLine{
			{ArticleID: 7, Quantity: dec("2")},
			{ArticleID: 7, Quantity: dec("3")},
		},
	}
	require.NoError(t, svc.Apply(ctx, nil, req))
	require.True(t, repo.quantity(7, 2).Equal(dec("95")))

	// Second apply with the flag set is a no-op.
	req.AlreadyApplied = true
	require.NoError(t, svc.Apply(ctx, nil, req))
	require.True(t, repo.quantity(7, 2).Equal(dec("95")))

	// Revert restores the pre-apply balance exactly.
	require.NoError(t, svc.Revert(ctx, nil, RevertRequest{SourceType: "document", SourceID: docID, Applied: true}))
	require.True(t, repo.quantity(7, 2).Equal(dec("100")))

	// Revert with the flag unset is a no-op.
	require.NoError(t, svc.Revert(ctx, nil, RevertRequest{SourceType: "document", SourceID: docID, Applied: false}))
	require.True(t, repo.quantity(7, 2).Equal(dec("100")))
}

func TestApplyZeroLinesIsNoop(t *testing.T) {
	repo := newMemoryLedger()
	svc := NewService(repo, staticWarehouses{}, nil)

	err := svc.Apply(context.Background(), nil, ApplyRequest{
		SourceType: "document",
		SourceID:   uuid.New(),
		Movement:   MovementSaleOut,
	})
	require.NoError(t, err)
	require.Empty(t, repo.entries)
}

func TestApplyTransferAdjustsBothWarehouses(t *testing.T) {
	repo := newMemoryLedger()
	svc := NewService(repo, staticWarehouses{}, nil)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, nil, AdjustInput{ArticleID: 5, WarehouseID: 1, Quantity: dec("20")})
	require.NoError(t, err)

	err = svc.Apply(ctx, nil, ApplyRequest{
		SourceType: "document",
		SourceID:   uuid.New(),
		Movement:   MovementTransfer,
		Lines: []ApplyLine{
			{ArticleID: 5, Quantity: dec("8"), SrcWarehouseID: 1, DstWarehouseID: 3},
		},
	})
	require.NoError(t, err)
	require.True(t, repo.quantity(5, 1).Equal(dec("12")))
	require.True(t, repo.quantity(5, 3).Equal(dec("8")))
}

func TestWarehouseResolutionOrder(t *testing.T) {
	ctx := context.Background()

	// Explicit line warehouse wins.
	repo := newMemoryLedger()
	svc := NewService(repo, staticWarehouses{principal: 9}, nil)
	err := svc.Apply(ctx, nil, ApplyRequest{
		SourceType:         "document",
		SourceID:           uuid.New(),
		Movement:           MovementPurchaseIn,
		DefaultWarehouseID: 4,
		Lines:              []ApplyLine{{ArticleID: 1, Quantity: dec("1"), WarehouseID: 6}},
	})
	require.NoError(t, err)
	require.True(t, repo.quantity(1, 6).Equal(dec("1")))

	// Document default next.
	repo = newMemoryLedger()
	svc = NewService(repo, staticWarehouses{principal: 9}, nil)
	err = svc.Apply(ctx, nil, ApplyRequest{
		SourceType:         "document",
		SourceID:           uuid.New(),
		Movement:           MovementPurchaseIn,
		DefaultWarehouseID: 4,
		Lines:              []ApplyLine{{ArticleID: 1, Quantity: dec("1")}},
	})
	require.NoError(t, err)
	require.True(t, repo.quantity(1, 4).Equal(dec("1")))

	// System principal last.
	repo = newMemoryLedger()
	svc = NewService(repo, staticWarehouses{principal: 9}, nil)
	err = svc.Apply(ctx, nil, ApplyRequest{
		SourceType: "document",
		SourceID:   uuid.New(),
		Movement:   MovementPurchaseIn,
		Lines:      []ApplyLine{{ArticleID: 1, Quantity: dec("1")}},
	})
	require.NoError(t, err)
	require.True(t, repo.quantity(1, 9).Equal(dec("1")))

	// None resolvable surfaces MissingWarehouseError.
	repo = newMemoryLedger()
	svc = NewService(repo, staticWarehouses{}, nil)
	err = svc.Apply(ctx, nil, ApplyRequest{
		SourceType: "document",
		SourceID:   uuid.New(),
		Movement:   MovementPurchaseIn,
		Lines:      []ApplyLine{{ArticleID: 1, Quantity: dec("1")}},
	})
	var missing *shared.MissingWarehouseError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, int64(1), missing.ArticleID)
}

func TestBalanceOf(t *testing.T) {
	repo := newMemoryLedger()
	svc := NewService(repo, staticWarehouses{}, nil)
	ctx := context.Background()

	qty, err := svc.BalanceOf(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, qty.IsZero(), "untouched key reads as zero")

	_, err = svc.Adjust(ctx, nil, AdjustInput{ArticleID: 1, WarehouseID: 1, Quantity: dec("12.5")})
	require.NoError(t, err)

	qty, err = svc.BalanceOf(ctx, 1, 1)
	require.NoError(t, err)
	require.True(t, qty.Equal(dec("12.5")))
}

func TestStockCardWindowCarriesOpeningBalance(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	rows := []cardRow{
		{EntryID: uuid.New(), PostedAt: base, Quantity: dec("5")},
		{EntryID: uuid.New(), PostedAt: base.Add(time.Hour), Quantity: dec("-3")},
	}

	// Entries before the window sum to 40; the card must open there, not at
	// zero.
	cards := buildCard(dec("40"), rows)
	require.Len(t, cards, 2)

	require.True(t, cards[0].QtyIn.Equal(dec("5")))
	require.True(t, cards[0].QtyOut.IsZero())
	require.True(t, cards[0].Balance.Equal(dec("45")))

	require.True(t, cards[1].QtyOut.Equal(dec("3")))
	require.True(t, cards[1].QtyIn.IsZero())
	require.True(t, cards[1].Balance.Equal(dec("42")))

	// An unwindowed card starts from zero.
	cards = buildCard(decimal.Zero, rows[:1])
	require.True(t, cards[0].Balance.Equal(dec("5")))
}
