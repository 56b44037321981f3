package fiscal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/austral-erp/austral-erp/internal/shared"
)

// DocumentsPort is the slice of document persistence the authorization flow
// needs. Authorization never changes document state; it only records its own
// outcome fields.
type DocumentsPort interface {
	GetForAuthorization(ctx context.Context, id uuid.UUID) (AuthDocument, error)
	SaveAuthorization(ctx context.Context, id uuid.UUID, code string, expiresAt time.Time) error
	SaveRejection(ctx context.Context, id uuid.UUID, reason string) error
	SaveLastError(ctx context.Context, id uuid.UUID, msg string) error
}

// CredentialsPort resolves the tenant's active signing credential.
type CredentialsPort interface {
	Active(ctx context.Context) (Credential, error)
}

// TokenPort obtains a valid security token for a service.
type TokenPort interface {
	Obtain(ctx context.Context, cred Credential, service string) (Token, error)
}

// AuthorityPort is the remote fiscal authority.
type AuthorityPort interface {
	LastAuthorized(ctx context.Context, token Token, docTypeCode string, pointOfSale int) (int64, error)
	Submit(ctx context.Context, token Token, payload AuthorizationRequest) (AuthorizationResult, error)
}

// Service drives the authorization of confirmed documents.
type Service struct {
	docs      DocumentsPort
	creds     CredentialsPort
	tokens    TokenPort
	authority AuthorityPort
	logger    *slog.Logger
}

// NewService builds Service.
func NewService(docs DocumentsPort, creds CredentialsPort, tokens TokenPort, authority AuthorityPort, logger *slog.Logger) *Service {
	return &Service{docs: docs, creds: creds, tokens: tokens, authority: authority, logger: logger}
}

// Authorize requests an authorization code for a confirmed document.
//
// Failures never move the document out of Confirmed. Rejections and numbering
// mismatches are recorded on the document; network errors record the message
// and the whole call is safe to repeat.
func (s *Service) Authorize(ctx context.Context, docID uuid.UUID) (string, time.Time, error) {
	doc, err := s.docs.GetForAuthorization(ctx, docID)
	if err != nil {
		return "", time.Time{}, err
	}
	if doc.State != "confirmed" {
		return "", time.Time{}, &shared.ValidationError{Field: "state", Msg: "only confirmed documents can be authorized"}
	}
	if !doc.Electronic {
		return "", time.Time{}, &shared.ValidationError{Field: "doc_type", Msg: fmt.Sprintf("document type %s is not electronically authorizable", doc.DocTypeCode)}
	}
	if doc.AuthorizationCode != "" {
		// Idempotent: the code was already granted.
		return doc.AuthorizationCode, doc.AuthorizationExpiry, nil
	}

	cred, err := s.creds.Active(ctx)
	if err != nil {
		return "", time.Time{}, err
	}
	token, err := s.tokens.Obtain(ctx, cred, ServiceInvoicing)
	if err != nil {
		s.recordError(ctx, docID, err)
		return "", time.Time{}, fmt.Errorf("fiscal: obtain token: %w", err)
	}

	last, err := s.authority.LastAuthorized(ctx, token, doc.DocTypeCode, doc.PointOfSale)
	if err != nil {
		s.recordError(ctx, docID, err)
		return "", time.Time{}, err
	}
	if doc.Number != last+1 {
		mismatch := &NumberingMismatchError{Local: doc.Number, Expected: last + 1}
		s.recordError(ctx, docID, mismatch)
		return "", time.Time{}, mismatch
	}

	result, err := s.authority.Submit(ctx, token, buildRequest(doc))
	if err != nil {
		s.recordError(ctx, docID, err)
		return "", time.Time{}, err
	}
	if !result.Approved {
		if err := s.docs.SaveRejection(ctx, docID, result.Reason); err != nil {
			return "", time.Time{}, err
		}
		return "", time.Time{}, &RejectionError{Reason: result.Reason}
	}

	if err := s.docs.SaveAuthorization(ctx, docID, result.Code, result.ExpiresAt); err != nil {
		return "", time.Time{}, err
	}
	if s.logger != nil {
		s.logger.Info("document authorized",
			slog.String("document_id", docID.String()),
			slog.String("doc_type", doc.DocTypeCode),
			slog.Int64("number", doc.Number),
		)
	}
	return result.Code, result.ExpiresAt, nil
}

func buildRequest(doc AuthDocument) AuthorizationRequest {
	return AuthorizationRequest{
		DocTypeCode: doc.DocTypeCode,
		PointOfSale: doc.PointOfSale,
		Number:      doc.Number,
		IssuedAt:    doc.IssuedAt.UTC().Format("2006-01-02"),
		NetAmount:   doc.NetAmount,
		TaxAmount:   doc.TaxAmount,
		TotalAmount: doc.TotalAmount,
		Currency:    doc.Currency,
		Origin:      doc.Origin,
	}
}

func (s *Service) recordError(ctx context.Context, docID uuid.UUID, err error) {
	if saveErr := s.docs.SaveLastError(ctx, docID, err.Error()); saveErr != nil && s.logger != nil {
		s.logger.Error("record fiscal error failed",
			slog.String("document_id", docID.String()),
			slog.Any("error", saveErr),
		)
	}
}
