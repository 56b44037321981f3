package fiscal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/austral-erp/austral-erp/internal/shared"
)

type memoryDocs struct {
	docs       map[uuid.UUID]AuthDocument
	lastErrors map[uuid.UUID]string
	rejections map[uuid.UUID]string
}

func newMemoryDocs(docs ...AuthDocument) *memoryDocs {
	m := &memoryDocs{
		docs:       make(map[uuid.UUID]AuthDocument),
		lastErrors: make(map[uuid.UUID]string),
		rejections: make(map[uuid.UUID]string),
	}
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return m
}

func (m *memoryDocs) GetForAuthorization(_ context.Context, id uuid.UUID) (AuthDocument, error) {
	doc, ok := m.docs[id]
	if !ok {
		return AuthDocument{}, shared.ErrNotFound
	}
	return doc, nil
}

func (m *memoryDocs) SaveAuthorization(_ context.Context, id uuid.UUID, code string, expiresAt time.Time) error {
	doc := m.docs[id]
	doc.AuthorizationCode = code
	doc.AuthorizationExpiry = expiresAt
	m.docs[id] = doc
	return nil
}

func (m *memoryDocs) SaveRejection(_ context.Context, id uuid.UUID, reason string) error {
	m.rejections[id] = reason
	return nil
}

func (m *memoryDocs) SaveLastError(_ context.Context, id uuid.UUID, msg string) error {
	m.lastErrors[id] = msg
	return nil
}

type staticCreds struct{ cred Credential }

func (s staticCreds) Active(context.Context) (Credential, error) { return s.cred, nil }

type staticTokens struct{ token Token }

func (s staticTokens) Obtain(context.Context, Credential, string) (Token, error) {
	return s.token, nil
}

type fakeAuthority struct {
	last      int64
	lastErr   error
	result    AuthorizationResult
	submitErr error
	submitted []AuthorizationRequest
}

func (f *fakeAuthority) LastAuthorized(context.Context, Token, string, int) (int64, error) {
	return f.last, f.lastErr
}

func (f *fakeAuthority) Submit(_ context.Context, _ Token, payload AuthorizationRequest) (AuthorizationResult, error) {
	f.submitted = append(f.submitted, payload)
	return f.result, f.submitErr
}

func confirmedDoc() AuthDocument {
	return AuthDocument{
		ID:          uuid.New(),
		State:       "confirmed",
		DocTypeCode: "FVA",
		Electronic:  true,
		PointOfSale: 3,
		Number:      105,
		IssuedAt:    time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		NetAmount:   decimal.RequireFromString("200.00"),
		TaxAmount:   decimal.RequireFromString("42.00"),
		TotalAmount: decimal.RequireFromString("242.00"),
		Currency:    "ARS",
	}
}

func TestAuthorizeSuccess(t *testing.T) {
	doc := confirmedDoc()
	docs := newMemoryDocs(doc)
	authority := &fakeAuthority{
		last: 104,
		result: AuthorizationResult{
			Approved:  true,
			Code:      "65123420123456",
			ExpiresAt: time.Now().Add(10 * 24 * time.Hour),
		},
	}
	svc := NewService(docs, staticCreds{}, staticTokens{}, authority, nil)

	code, _, err := svc.Authorize(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Equal(t, "65123420123456", code)
	require.Equal(t, "65123420123456", docs.docs[doc.ID].AuthorizationCode)
	require.Len(t, authority.submitted, 1)
	require.Equal(t, int64(105), authority.submitted[0].Number)
}

func TestAuthorizeNumberingMismatchDoesNotSubmit(t *testing.T) {
	doc := confirmedDoc() // local number 105
	docs := newMemoryDocs(doc)
	authority := &fakeAuthority{last: 106} // authority expects 107 next
	svc := NewService(docs, staticCreds{}, staticTokens{}, authority, nil)

	_, _, err := svc.Authorize(context.Background(), doc.ID)
	require.ErrorIs(t, err, shared.ErrFiscalNumberingMismatch)

	var mismatch *NumberingMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, int64(105), mismatch.Local)
	require.Equal(t, int64(107), mismatch.Expected)

	require.Empty(t, authority.submitted, "no payload may be submitted on mismatch")
	require.NotEmpty(t, docs.lastErrors[doc.ID])
}

func TestAuthorizeRejectionKeepsDocumentConfirmed(t *testing.T) {
	doc := confirmedDoc()
	docs := newMemoryDocs(doc)
	authority := &fakeAuthority{
		last:   104,
		result: AuthorizationResult{Approved: false, Reason: "invalid recipient tax id"},
	}
	svc := NewService(docs, staticCreds{}, staticTokens{}, authority, nil)

	_, _, err := svc.Authorize(context.Background(), doc.ID)
	require.ErrorIs(t, err, shared.ErrFiscalRejected)
	require.Equal(t, "invalid recipient tax id", docs.rejections[doc.ID])
	require.Empty(t, docs.docs[doc.ID].AuthorizationCode, "authorization fields stay empty on rejection")
	require.Equal(t, "confirmed", docs.docs[doc.ID].State)
}

func TestAuthorizeNetworkErrorIsRetryable(t *testing.T) {
	doc := confirmedDoc()
	docs := newMemoryDocs(doc)
	authority := &fakeAuthority{last: 104, submitErr: errors.New("connection reset")}
	svc := NewService(docs, staticCreds{}, staticTokens{}, authority, nil)
	ctx := context.Background()

	_, _, err := svc.Authorize(ctx, doc.ID)
	require.Error(t, err)
	require.Contains(t, docs.lastErrors[doc.ID], "connection reset")
	require.Equal(t, "confirmed", docs.docs[doc.ID].State)

	// The retry succeeds once the network recovers.
	authority.submitErr = nil
	authority.result = AuthorizationResult{Approved: true, Code: "65123420999999"}
	code, _, err := svc.Authorize(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, "65123420999999", code)
}

func TestAuthorizePreconditions(t *testing.T) {
	ctx := context.Background()

	draft := confirmedDoc()
	draft.State = "draft"
	svc := NewService(newMemoryDocs(draft), staticCreds{}, staticTokens{}, &fakeAuthority{}, nil)
	_, _, err := svc.Authorize(ctx, draft.ID)
	require.ErrorIs(t, err, shared.ErrValidation)

	internal := confirmedDoc()
	internal.Electronic = false
	svc = NewService(newMemoryDocs(internal), staticCreds{}, staticTokens{}, &fakeAuthority{}, nil)
	_, _, err = svc.Authorize(ctx, internal.ID)
	require.ErrorIs(t, err, shared.ErrValidation)

	// A document that already holds a code returns it, together with the
	// stored expiry, without contacting the authority again.
	granted := confirmedDoc()
	granted.AuthorizationCode = "65123420000001"
	granted.AuthorizationExpiry = time.Date(2026, 7, 11, 0, 0, 0, 0, time.UTC)
	authority := &fakeAuthority{}
	svc = NewService(newMemoryDocs(granted), staticCreds{}, staticTokens{}, authority, nil)
	code, expiry, err := svc.Authorize(ctx, granted.ID)
	require.NoError(t, err)
	require.Equal(t, "65123420000001", code)
	require.Equal(t, granted.AuthorizationExpiry, expiry)
	require.Empty(t, authority.submitted)
}

func TestAuthorizeOriginReferenceIncluded(t *testing.T) {
	credit := confirmedDoc()
	credit.DocTypeCode = "NCA"
	credit.Origin = &OriginRef{DocTypeCode: "FVA", PointOfSale: 3, Number: 99}
	docs := newMemoryDocs(credit)
	authority := &fakeAuthority{
		last:   104,
		result: AuthorizationResult{Approved: true, Code: "65123420777777"},
	}
	svc := NewService(docs, staticCreds{}, staticTokens{}, authority, nil)

	_, _, err := svc.Authorize(context.Background(), credit.ID)
	require.NoError(t, err)
	require.Len(t, authority.submitted, 1)
	require.NotNil(t, authority.submitted[0].Origin)
	require.Equal(t, int64(99), authority.submitted[0].Origin.Number)
}
