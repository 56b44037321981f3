package numbering

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/austral-erp/austral-erp/internal/shared"
)

type memoryCounters struct {
	counters map[SeriesKey]int64
	numbers  map[SeriesKey]map[int64]bool
	failWith error
}

func newMemoryCounters() *memoryCounters {
	return &memoryCounters{
		counters: make(map[SeriesKey]int64),
		numbers:  make(map[SeriesKey]map[int64]bool),
	}
}

func (m *memoryCounters) NextNumber(ctx context.Context, _ pgx.Tx, key SeriesKey) (int64, error) {
	if m.failWith != nil {
		return 0, m.failWith
	}
	m.counters[key]++
	return m.counters[key], nil
}

func (m *memoryCounters) NumberExists(ctx context.Context, _ pgx.Tx, key SeriesKey, number int64) (bool, error) {
	return m.numbers[key][number], nil
}

func (m *memoryCounters) AdvanceTo(ctx context.Context, _ pgx.Tx, key SeriesKey, number int64) error {
	if m.failWith != nil {
		return m.failWith
	}
	if number > m.counters[key] {
		m.counters[key] = number
	}
	return nil
}

func (m *memoryCounters) stamp(key SeriesKey, number int64) {
	if m.numbers[key] == nil {
		m.numbers[key] = make(map[int64]bool)
	}
	m.numbers[key][number] = true
}

func TestAllocateMonotonic(t *testing.T) {
	repo := newMemoryCounters()
	alloc := NewAllocator(repo)
	ctx := context.Background()
	key := SeriesKey{SeriesType: "FVA", PointOfSale: 3}

	for want := int64(1); want <= 5; want++ {
		got, err := alloc.Allocate(ctx, nil, key)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	other := SeriesKey{SeriesType: "FVA", PointOfSale: 4}
	got, err := alloc.Allocate(ctx, nil, other)
	require.NoError(t, err)
	require.Equal(t, int64(1), got, "series are independent per point of sale")
}

func TestAllocateLockTimeoutMapsToConflict(t *testing.T) {
	repo := newMemoryCounters()
	repo.failWith = &pgconn.PgError{Code: "55P03"}
	alloc := NewAllocator(repo)

	_, err := alloc.Allocate(context.Background(), nil, SeriesKey{SeriesType: "FVA", PointOfSale: 1})
	require.ErrorIs(t, err, shared.ErrConflict)

	var conflict *shared.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "series counter", conflict.Resource)
}

func TestValidateManual(t *testing.T) {
	repo := newMemoryCounters()
	alloc := NewAllocator(repo)
	ctx := context.Background()
	key := SeriesKey{SeriesType: "FCA", PointOfSale: 1}

	require.NoError(t, alloc.ValidateManual(ctx, nil, key, 42))

	repo.stamp(key, 42)
	err := alloc.ValidateManual(ctx, nil, key, 42)
	var dup *shared.DuplicateNumberError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, int64(42), dup.Number)

	err = alloc.ValidateManual(ctx, nil, key, 0)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestValidateManualAdvancesCounter(t *testing.T) {
	repo := newMemoryCounters()
	alloc := NewAllocator(repo)
	ctx := context.Background()
	key := SeriesKey{SeriesType: "FVA", PointOfSale: 3}

	for i := 0; i < 4; i++ {
		_, err := alloc.Allocate(ctx, nil, key)
		require.NoError(t, err)
	}

	// A manual number one ahead of the counter must push it forward, or the
	// next automatic allocation would issue the same number again.
	require.NoError(t, alloc.ValidateManual(ctx, nil, key, 5))
	repo.stamp(key, 5)

	got, err := alloc.Allocate(ctx, nil, key)
	require.NoError(t, err)
	require.Equal(t, int64(6), got)
}

func TestValidateManualBehindCounterKeepsCounter(t *testing.T) {
	repo := newMemoryCounters()
	alloc := NewAllocator(repo)
	ctx := context.Background()
	key := SeriesKey{SeriesType: "FCA", PointOfSale: 1}

	for i := 0; i < 9; i++ {
		_, err := alloc.Allocate(ctx, nil, key)
		require.NoError(t, err)
	}

	// Filling an old gap never rewinds the counter.
	require.NoError(t, alloc.ValidateManual(ctx, nil, key, 2))

	got, err := alloc.Allocate(ctx, nil, key)
	require.NoError(t, err)
	require.Equal(t, int64(10), got)
}

func TestFormatNumber(t *testing.T) {
	require.Equal(t, "A 00003-00000105", FormatNumber("A", 3, 105))
	require.Equal(t, "B 00001-00000001", FormatNumber("B", 1, 1))
	require.Equal(t, "C 12345-12345678", FormatNumber("C", 12345, 12345678))
}
