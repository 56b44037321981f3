package documents

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/austral-erp/austral-erp/internal/numbering"
	"github.com/austral-erp/austral-erp/internal/shared"
	"github.com/austral-erp/austral-erp/internal/tax"
)

// State is the lifecycle state of a document.
type State string

const (
	StateDraft     State = "draft"
	StateConfirmed State = "confirmed"
	StateVoided    State = "voided"
)

var (
	ErrInvalidTransition = fmt.Errorf("documents: invalid state transition: %w", shared.ErrConflict)
	ErrNoLines           = fmt.Errorf("documents: document has no lines: %w", shared.ErrValidation)
)

// Line is a single article line on a document.
type Line struct {
	ID          uuid.UUID
	ArticleID   int64
	CategoryID  int64
	WarehouseID int64
	// SrcWarehouseID and DstWarehouseID are set on transfer documents only.
	SrcWarehouseID int64
	DstWarehouseID int64
	Description    string
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
}

// Subtotal is quantity times unit price, unrounded.
func (l Line) Subtotal() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// Document is a commercial document moving through the draft, confirmed,
// voided lifecycle. Monetary totals are only populated on confirmation.
type Document struct {
	ID             uuid.UUID
	DocTypeCode    string
	PointOfSale    int
	Number         int64
	State          State
	CounterpartyID int64
	// WarehouseID is the document-level default for lines without one.
	WarehouseID int64
	IssuedAt    time.Time
	Currency    string
	Lines       []Line

	Subtotal     decimal.Decimal
	TaxBreakdown tax.Breakdown
	Total        decimal.Decimal
	// Outstanding is the unpaid remainder, reduced by treasury movements.
	Outstanding decimal.Decimal

	// OriginID references the document a credit note amends.
	OriginID     uuid.UUID
	StockApplied bool

	AuthorizationCode   string
	AuthorizationExpiry time.Time
	FiscalRejection     string
	FiscalLastError     string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FormattedNumber renders the display number, for example "A 00003-00000105".
func (d Document) FormattedNumber(letter string) string {
	return numbering.FormatNumber(letter, d.PointOfSale, d.Number)
}

// TaxLines projects document lines onto the tax engine input.
func (d Document) TaxLines() []tax.Line {
	out := make([]tax.Line, 0, len(d.Lines))
	for _, l := range d.Lines {
		out = append(out, tax.Line{
			ArticleID:  l.ArticleID,
			CategoryID: l.CategoryID,
			Quantity:   l.Quantity,
			UnitPrice:  l.UnitPrice,
		})
	}
	return out
}
