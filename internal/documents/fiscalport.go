package documents

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/austral-erp/austral-erp/internal/fiscal"
)

// AuthorizationStore projects documents onto the view the fiscal
// authorization flow consumes. Writes delegate straight to the repository.
type AuthorizationStore struct {
	repo     *Repository
	registry *Registry
}

// NewAuthorizationStore builds an AuthorizationStore.
func NewAuthorizationStore(repo *Repository, registry *Registry) *AuthorizationStore {
	return &AuthorizationStore{repo: repo, registry: registry}
}

var _ fiscal.DocumentsPort = (*AuthorizationStore)(nil)

// GetForAuthorization loads the authorization view of a document, resolving
// the origin reference for credit notes.
func (s *AuthorizationStore) GetForAuthorization(ctx context.Context, id uuid.UUID) (fiscal.AuthDocument, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return fiscal.AuthDocument{}, err
	}
	cfg, err := s.registry.Get(doc.DocTypeCode)
	if err != nil {
		return fiscal.AuthDocument{}, err
	}
	out := fiscal.AuthDocument{
		ID:                  doc.ID,
		State:               string(doc.State),
		DocTypeCode:         doc.DocTypeCode,
		Electronic:          cfg.Electronic,
		PointOfSale:         doc.PointOfSale,
		Number:              doc.Number,
		IssuedAt:            doc.IssuedAt,
		NetAmount:           doc.Subtotal,
		TaxAmount:           doc.TaxBreakdown.Total(),
		TotalAmount:         doc.Total,
		Currency:            doc.Currency,
		AuthorizationCode:   doc.AuthorizationCode,
		AuthorizationExpiry: doc.AuthorizationExpiry,
	}
	if doc.OriginID != uuid.Nil {
		origin, err := s.repo.Get(ctx, doc.OriginID)
		if err != nil {
			return fiscal.AuthDocument{}, err
		}
		out.Origin = &fiscal.OriginRef{
			DocTypeCode: origin.DocTypeCode,
			PointOfSale: origin.PointOfSale,
			Number:      origin.Number,
		}
	}
	return out, nil
}

// SaveAuthorization records a granted code on the document.
func (s *AuthorizationStore) SaveAuthorization(ctx context.Context, id uuid.UUID, code string, expiresAt time.Time) error {
	return s.repo.SaveAuthorization(ctx, id, code, expiresAt)
}

// SaveRejection records an authority rejection.
func (s *AuthorizationStore) SaveRejection(ctx context.Context, id uuid.UUID, reason string) error {
	return s.repo.SaveRejection(ctx, id, reason)
}

// SaveLastError records a transient failure.
func (s *AuthorizationStore) SaveLastError(ctx context.Context, id uuid.UUID, msg string) error {
	return s.repo.SaveLastError(ctx, id, msg)
}
