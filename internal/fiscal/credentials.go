package fiscal

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/pkcs12"

	"github.com/austral-erp/austral-erp/internal/shared"
)

// Credential is a tenant's signing identity with the fiscal authority.
type Credential struct {
	ID       int64
	TaxID    string
	Key      *rsa.PrivateKey
	Cert     *x509.Certificate
	NotAfter time.Time
	LoadedAt time.Time
}

// CredentialStore loads and decodes the active signing credential.
type CredentialStore struct {
	pool *pgxpool.Pool
}

// NewCredentialStore constructs CredentialStore.
func NewCredentialStore(pool *pgxpool.Pool) *CredentialStore {
	return &CredentialStore{pool: pool}
}

// Active returns the tenant's active credential, decoding its PKCS#12 bundle.
func (s *CredentialStore) Active(ctx context.Context) (Credential, error) {
	const query = `
		SELECT id, tax_id, bundle, bundle_password
		FROM fiscal_credentials
		WHERE active
		ORDER BY created_at DESC
		LIMIT 1`
	var (
		cred     Credential
		bundle   []byte
		password string
	)
	err := s.pool.QueryRow(ctx, query).Scan(&cred.ID, &cred.TaxID, &bundle, &password)
	if errors.Is(err, pgx.ErrNoRows) {
		return Credential{}, fmt.Errorf("fiscal: no active signing credential: %w", shared.ErrMissingConfiguration)
	}
	if err != nil {
		return Credential{}, fmt.Errorf("fiscal: load credential: %w", err)
	}

	key, cert, err := DecodeBundle(bundle, password)
	if err != nil {
		return Credential{}, err
	}
	cred.Key = key
	cred.Cert = cert
	cred.NotAfter = cert.NotAfter
	cred.LoadedAt = time.Now().UTC()
	if time.Now().After(cred.NotAfter) {
		return Credential{}, fmt.Errorf("fiscal: signing certificate expired %s: %w", cred.NotAfter.Format(time.RFC3339), shared.ErrMissingConfiguration)
	}
	return cred, nil
}

// DecodeBundle parses a PKCS#12 bundle into its RSA key and certificate.
func DecodeBundle(bundle []byte, password string) (*rsa.PrivateKey, *x509.Certificate, error) {
	key, cert, err := pkcs12.Decode(bundle, password)
	if err != nil {
		return nil, nil, fmt.Errorf("fiscal: decode pkcs12 bundle: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, nil, errors.New("fiscal: bundle key is not RSA")
	}
	return rsaKey, cert, nil
}
