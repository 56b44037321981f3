package pricing

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceList is a priced catalog owned by a counterparty (supplier or customer
// segment). At most one list per counterparty is marked primary.
type PriceList struct {
	ID             int64
	CounterpartyID int64
	Name           string
	Primary        bool
	ValidFrom      time.Time
	ValidTo        time.Time
	Active         bool
}

// ValidAt reports whether the list covers the date.
func (l PriceList) ValidAt(asOf time.Time) bool {
	if !l.Active {
		return false
	}
	if !l.ValidFrom.IsZero() && asOf.Before(l.ValidFrom) {
		return false
	}
	if !l.ValidTo.IsZero() && asOf.After(l.ValidTo) {
		return false
	}
	return true
}

// Entry prices one article at a minimum-quantity tier.
//
// Discounts are signed percentages multiplying the running amount by
// (1 + d/100): a markdown is negative. The convention is load-bearing;
// flipping the sign silently changes every computed cost.
type Entry struct {
	ID                  int64
	PriceListID         int64
	ArticleID           int64
	MinQty              decimal.Decimal
	UnitPrice           decimal.Decimal
	Currency            string
	Bonus               decimal.Decimal
	AdditionalDiscounts []decimal.Decimal
	FinancialDiscounts  []decimal.Decimal
	ValidFrom           time.Time
	ValidTo             time.Time
	Active              bool
}

// ValidAt reports whether the entry covers the date.
func (e Entry) ValidAt(asOf time.Time) bool {
	if !e.Active {
		return false
	}
	if !e.ValidFrom.IsZero() && asOf.Before(e.ValidFrom) {
		return false
	}
	if !e.ValidTo.IsZero() && asOf.After(e.ValidTo) {
		return false
	}
	return true
}

// CostSource reports where a resolved cost came from.
type CostSource string

const (
	// SourcePrimaryList means the counterparty's primary list matched.
	SourcePrimaryList CostSource = "primary_list"
	// SourceSecondaryList means a non-primary list matched.
	SourceSecondaryList CostSource = "secondary_list"
	// SourceBaseCost means no list matched and the article base cost was used.
	SourceBaseCost CostSource = "base_cost"
)

// Resolution is the outcome of an effective-cost lookup.
type Resolution struct {
	UnitCost decimal.Decimal
	Currency string
	Source   CostSource
	EntryID  int64
}
