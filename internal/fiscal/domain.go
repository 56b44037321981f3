package fiscal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/austral-erp/austral-erp/internal/shared"
)

// Token is a short-lived security ticket issued by the authority's
// authentication service. Never reused past expiry.
type Token struct {
	Token     string    `json:"token"`
	Sign      string    `json:"sign"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token is past (or within skew of) expiry.
func (t Token) Expired(now time.Time, skew time.Duration) bool {
	return !now.Add(skew).Before(t.ExpiresAt)
}

// OriginRef identifies an associated origin document, required when
// authorizing credit and debit notes.
type OriginRef struct {
	DocTypeCode string
	PointOfSale int
	Number      int64
}

// AuthDocument is the slice of a document the authorization flow needs.
type AuthDocument struct {
	ID                  uuid.UUID
	State               string
	DocTypeCode         string
	Electronic          bool
	PointOfSale         int
	Number              int64
	IssuedAt            time.Time
	NetAmount           decimal.Decimal
	TaxAmount           decimal.Decimal
	TotalAmount         decimal.Decimal
	Currency            string
	AuthorizationCode   string
	AuthorizationExpiry time.Time
	Origin              *OriginRef
}

// AuthorizationRequest is the payload submitted to the authority.
type AuthorizationRequest struct {
	DocTypeCode string          `json:"doc_type"`
	PointOfSale int             `json:"point_of_sale"`
	Number      int64           `json:"number"`
	IssuedAt    string          `json:"issued_at"`
	NetAmount   decimal.Decimal `json:"net_amount"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	Origin      *OriginRef      `json:"origin,omitempty"`
}

// AuthorizationResult is the authority's verdict.
type AuthorizationResult struct {
	Approved  bool
	Code      string
	ExpiresAt time.Time
	Reason    string
}

// RejectionError reports that the authority examined and rejected the
// document. The document stays Confirmed; a corrected retry is allowed.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("fiscal: authority rejected document: %s", e.Reason)
}

func (e *RejectionError) Unwrap() error { return shared.ErrFiscalRejected }

// NumberingMismatchError reports that the local next number does not follow
// the authority's last authorized number. No request is submitted; local and
// remote sequences must be reconciled manually.
type NumberingMismatchError struct {
	Local    int64
	Expected int64
}

func (e *NumberingMismatchError) Error() string {
	return fmt.Sprintf("fiscal: local number %d does not match authority's expected %d", e.Local, e.Expected)
}

func (e *NumberingMismatchError) Unwrap() error { return shared.ErrFiscalNumberingMismatch }
