package documents

import (
	"fmt"

	"github.com/austral-erp/austral-erp/internal/shared"
	"github.com/austral-erp/austral-erp/internal/stock"
	"github.com/austral-erp/austral-erp/internal/tax"
)

// DocType is the tagged configuration record for a document type. Every
// behavioral flag lives here, not on call sites probing ad-hoc booleans.
type DocType struct {
	Code   string
	Name   string
	Letter string
	// Scope decides which tax rules apply.
	Scope tax.Scope
	// Movement decides whether and how stock moves on confirmation.
	Movement stock.Movement
	// Electronic marks types that require fiscal authorization.
	Electronic bool
	// Credit marks credit notes, which must reference an origin document.
	Credit bool
}

// Registry resolves document-type configuration by code.
type Registry struct {
	types map[string]DocType
}

// NewRegistry builds a registry from explicit records.
func NewRegistry(types ...DocType) *Registry {
	r := &Registry{types: make(map[string]DocType, len(types))}
	for _, t := range types {
		r.types[t.Code] = t
	}
	return r
}

// DefaultRegistry covers the standard commercial voucher set.
func DefaultRegistry() *Registry {
	return NewRegistry(
		DocType{Code: "FVA", Name: "Factura de venta A", Letter: "A", Scope: tax.ScopeSale, Movement: stock.MovementSaleOut, Electronic: true},
		DocType{Code: "FVB", Name: "Factura de venta B", Letter: "B", Scope: tax.ScopeSale, Movement: stock.MovementSaleOut, Electronic: true},
		DocType{Code: "NCA", Name: "Nota de crédito A", Letter: "A", Scope: tax.ScopeSale, Movement: stock.MovementPurchaseIn, Electronic: true, Credit: true},
		DocType{Code: "NDA", Name: "Nota de débito A", Letter: "A", Scope: tax.ScopeSale, Movement: stock.MovementNone, Electronic: true},
		DocType{Code: "FCA", Name: "Factura de compra", Letter: "A", Scope: tax.ScopePurchase, Movement: stock.MovementPurchaseIn},
		DocType{Code: "REM", Name: "Remito interno", Letter: "R", Scope: tax.ScopeSale, Movement: stock.MovementTransfer},
		DocType{Code: "TIK", Name: "Ticket interno", Letter: "X", Scope: tax.ScopeSale, Movement: stock.MovementSaleOut},
	)
}

// Get resolves a type code.
func (r *Registry) Get(code string) (DocType, error) {
	t, ok := r.types[code]
	if !ok {
		return DocType{}, fmt.Errorf("document type %q not registered: %w", code, shared.ErrMissingConfiguration)
	}
	return t, nil
}
