package numbering

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/austral-erp/austral-erp/internal/platform/db"
	"github.com/austral-erp/austral-erp/internal/shared"
)

// RepositoryPort abstracts counter persistence for the allocator.
type RepositoryPort interface {
	NextNumber(ctx context.Context, tx pgx.Tx, key SeriesKey) (int64, error)
	NumberExists(ctx context.Context, tx pgx.Tx, key SeriesKey, number int64) (bool, error)
	AdvanceTo(ctx context.Context, tx pgx.Tx, key SeriesKey, number int64) error
}

// Allocator issues gap-free document numbers per series key.
type Allocator struct {
	repo RepositoryPort
}

// NewAllocator builds an Allocator.
func NewAllocator(repo RepositoryPort) *Allocator {
	return &Allocator{repo: repo}
}

// Allocate returns the next number for the series, incrementing the stored
// counter under the row lock. Must run on the transaction that stamps the
// document so the lock is held until commit.
func (a *Allocator) Allocate(ctx context.Context, tx pgx.Tx, key SeriesKey) (int64, error) {
	number, err := a.repo.NextNumber(ctx, tx, key)
	if err != nil {
		if db.IsErrCode(err, db.LockNotAvailable) {
			return 0, &shared.ConflictError{Resource: "series counter", Key: key.String()}
		}
		return 0, fmt.Errorf("numbering: allocate %s: %w", key, err)
	}
	return number, nil
}

// ValidateManual accepts a caller-assigned number, rejecting duplicates within
// the series. The counter is raised past the manual number so a later
// automatic allocation cannot return a number the series already issued.
func (a *Allocator) ValidateManual(ctx context.Context, tx pgx.Tx, key SeriesKey, number int64) error {
	if number <= 0 {
		return &shared.ValidationError{Field: "number", Msg: "manual document number must be positive"}
	}
	exists, err := a.repo.NumberExists(ctx, tx, key, number)
	if err != nil {
		return fmt.Errorf("numbering: validate manual %s: %w", key, err)
	}
	if exists {
		return &shared.DuplicateNumberError{Series: key.String(), Number: number}
	}
	if err := a.repo.AdvanceTo(ctx, tx, key, number); err != nil {
		if db.IsErrCode(err, db.LockNotAvailable) {
			return &shared.ConflictError{Resource: "series counter", Key: key.String()}
		}
		return fmt.Errorf("numbering: advance past manual %s: %w", key, err)
	}
	return nil
}
