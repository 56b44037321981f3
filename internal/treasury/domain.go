package treasury

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/austral-erp/austral-erp/internal/shared"
)

// Kind distinguishes money coming in from money going out.
type Kind string

const (
	// KindReceipt is funds received against a sales document.
	KindReceipt Kind = "receipt"
	// KindPayment is funds paid against a purchase document.
	KindPayment Kind = "payment"
)

// Sign is the effect on the cash account: receipts add, payments subtract.
func (k Kind) Sign() int {
	switch k {
	case KindReceipt:
		return 1
	case KindPayment:
		return -1
	default:
		return 0
	}
}

// State tracks whether a movement currently counts.
type State string

const (
	// StateApplied means the movement affects balances.
	StateApplied State = "applied"
	// StateReverted means the movement was symmetrically undone.
	StateReverted State = "reverted"
)

// Movement is a posted receipt or payment against a document.
type Movement struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	Kind       Kind
	AccountID  int64
	Amount     decimal.Decimal
	Currency   string
	State      State
	PostedAt   time.Time
	RevertedAt time.Time
}

// ApplyInput describes a movement to post.
type ApplyInput struct {
	DocumentID uuid.UUID
	Kind       Kind
	AccountID  int64
	Amount     decimal.Decimal
	Currency   string
}

// ErrInvalidAmount indicates a non-positive movement amount.
var ErrInvalidAmount = fmt.Errorf("treasury: amount must be positive: %w", shared.ErrValidation)

// ErrAlreadyReverted indicates a double revert attempt.
var ErrAlreadyReverted = fmt.Errorf("treasury: movement already reverted: %w", shared.ErrConflict)
