package tax

import (
	"time"

	"github.com/shopspring/decimal"
)

// Scope selects which side of the business a rule applies to.
type Scope string

const (
	// ScopeSale covers sales vouchers.
	ScopeSale Scope = "sale"
	// ScopePurchase covers purchase vouchers.
	ScopePurchase Scope = "purchase"
)

// Kind selects how a rule computes its amount.
type Kind string

const (
	// KindPercent applies Rate as a percentage of the line subtotal.
	KindPercent Kind = "PERCENT"
	// KindFixed adds Amount once per matching line.
	KindFixed Kind = "FIXED"
)

// Rule is a scoped, time-bounded tax policy. Rules with an empty category or
// document-type filter apply universally within their window and scope.
type Rule struct {
	ID           int64
	Name         string
	Kind         Kind
	Rate         decimal.Decimal
	Amount       decimal.Decimal
	Scope        Scope
	CategoryIDs  []int64
	DocTypeCodes []string
	ValidFrom    time.Time
	ValidTo      time.Time
	Active       bool
}

// AppliesAt reports whether asOf falls inside the rule's validity window.
// A zero bound is open-ended.
func (r Rule) AppliesAt(asOf time.Time) bool {
	if !r.Active {
		return false
	}
	if !r.ValidFrom.IsZero() && asOf.Before(r.ValidFrom) {
		return false
	}
	if !r.ValidTo.IsZero() && asOf.After(r.ValidTo) {
		return false
	}
	return true
}

// Matches reports whether the rule covers a line of the given category on a
// document of the given type.
func (r Rule) Matches(categoryID int64, docTypeCode string) bool {
	if len(r.CategoryIDs) > 0 && !containsInt64(r.CategoryIDs, categoryID) {
		return false
	}
	if len(r.DocTypeCodes) > 0 && !containsString(r.DocTypeCodes, docTypeCode) {
		return false
	}
	return true
}

// Line is the minimal view of a document line the engine needs.
type Line struct {
	ArticleID  int64
	CategoryID int64
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
}

// Subtotal is quantity times unit price, untaxed.
func (l Line) Subtotal() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// Breakdown maps rule name to the summed amount across all lines.
type Breakdown map[string]decimal.Decimal

// Total sums every named amount.
func (b Breakdown) Total() decimal.Decimal {
	total := decimal.Zero
	for _, amount := range b {
		total = total.Add(amount)
	}
	return total
}

func containsInt64(xs []int64, x int64) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

func containsString(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
