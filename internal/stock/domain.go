package stock

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/austral-erp/austral-erp/internal/shared"
)

// Kind distinguishes stock buckets for the same article and warehouse.
type Kind string

const (
	// KindOnHand is physical stock available in the warehouse.
	KindOnHand Kind = "ON_HAND"
	// KindCommitted is stock reserved against confirmed sales documents.
	KindCommitted Kind = "COMMITTED"
)

// Direction selects the explicit calling mode of Adjust. An empty direction
// means algebraic mode: the caller supplies the signed delta directly.
type Direction string

const (
	// DirectionAdd applies the absolute value of the quantity as an inflow.
	DirectionAdd Direction = "ADD"
	// DirectionSubtract applies the absolute value of the quantity as an outflow.
	DirectionSubtract Direction = "SUBTRACT"
)

// Movement enumerates how a document type touches stock.
type Movement string

const (
	// MovementSaleOut is the outflow caused by a sales voucher.
	MovementSaleOut Movement = "SALE_OUT"
	// MovementPurchaseIn is the inflow caused by a purchase voucher.
	MovementPurchaseIn Movement = "PURCHASE_IN"
	// MovementTransfer moves stock between two warehouses.
	MovementTransfer Movement = "TRANSFER"
	// MovementNone marks documents that do not touch stock.
	MovementNone Movement = ""
)

// Sign returns the algebraic sign a movement applies to the quantity.
// Transfers carry no single sign: both legs are adjusted explicitly.
func (m Movement) Sign() int {
	switch m {
	case MovementSaleOut:
		return -1
	case MovementPurchaseIn:
		return 1
	default:
		return 0
	}
}

// Balance is the materialized running quantity for one
// (article, warehouse, kind) key. Mutated only through the ledger.
type Balance struct {
	ArticleID   int64
	WarehouseID int64
	Kind        Kind
	Quantity    decimal.Decimal
	UpdatedAt   time.Time
}

// LedgerEntry is the immutable audit record each adjustment appends. Reversals
// are new entries pointing back at the original; nothing is ever updated.
type LedgerEntry struct {
	ID          uuid.UUID
	ArticleID   int64
	WarehouseID int64
	Kind        Kind
	Quantity    decimal.Decimal
	SourceType  string
	SourceID    uuid.UUID
	ReversalOf  uuid.UUID
	PostedAt    time.Time
}

// AdjustInput describes a single balance adjustment.
type AdjustInput struct {
	ArticleID   int64
	WarehouseID int64
	Kind        Kind
	Quantity    decimal.Decimal
	Direction   Direction
	SourceType  string
	SourceID    uuid.UUID
	ReversalOf  uuid.UUID
}

// ApplyLine is one document line expressed as a stock effect.
type ApplyLine struct {
	ArticleID int64
	Quantity  decimal.Decimal
	// WarehouseID is the explicit per-line warehouse, zero when unset.
	WarehouseID int64
	// SrcWarehouseID and DstWarehouseID are used by transfers only.
	SrcWarehouseID int64
	DstWarehouseID int64
}

// ApplyRequest carries a document's stock effect into Apply.
type ApplyRequest struct {
	SourceType         string
	SourceID           uuid.UUID
	Movement           Movement
	DefaultWarehouseID int64
	AlreadyApplied     bool
	Lines              []ApplyLine
}

// RevertRequest identifies a previously applied document.
type RevertRequest struct {
	SourceType string
	SourceID   uuid.UUID
	Applied    bool
}

// CardEntry is one row of the kardex report derived from the ledger.
type CardEntry struct {
	EntryID    uuid.UUID
	PostedAt   time.Time
	SourceType string
	SourceID   uuid.UUID
	QtyIn      decimal.Decimal
	QtyOut     decimal.Decimal
	Balance    decimal.Decimal
}

// CardFilter filters kardex entries.
type CardFilter struct {
	ArticleID   int64
	WarehouseID int64
	From        time.Time
	To          time.Time
	Limit       int
}

// ErrInvalidQuantity indicates a zero quantity adjustment.
var ErrInvalidQuantity = fmt.Errorf("stock: quantity must be non zero: %w", shared.ErrValidation)
