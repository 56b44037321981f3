package fiscal

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Services exposed by the fiscal authority.
const (
	// ServiceInvoicing is the electronic voucher authorization service.
	ServiceInvoicing = "einvoice"
)

// HTTPAuthority talks to the fiscal authority over HTTPS with signed requests.
type HTTPAuthority struct {
	baseURL string
	client  *http.Client
}

// NewHTTPAuthority builds the client. timeout bounds every call; the
// authority is slow under load and callers must never hold database locks
// while waiting on it.
func NewHTTPAuthority(baseURL string, timeout time.Duration) *HTTPAuthority {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPAuthority{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type loginRequest struct {
	TaxID     string `json:"tax_id"`
	Service   string `json:"service"`
	Issued    string `json:"issued"`
	Signature string `json:"signature"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	Sign      string    `json:"sign"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login performs the authentication handshake, signing the access request
// with the tenant's credential.
func (a *HTTPAuthority) Login(ctx context.Context, cred Credential, service string) (Token, error) {
	issued := time.Now().UTC().Format(time.RFC3339)
	signature, err := signAccessRequest(cred, service, issued)
	if err != nil {
		return Token{}, err
	}
	req := loginRequest{
		TaxID:     cred.TaxID,
		Service:   service,
		Issued:    issued,
		Signature: signature,
	}
	var resp loginResponse
	if err := a.post(ctx, "/auth/login", req, &resp); err != nil {
		return Token{}, fmt.Errorf("fiscal: login: %w", err)
	}
	return Token{Token: resp.Token, Sign: resp.Sign, ExpiresAt: resp.ExpiresAt}, nil
}

type lastAuthorizedResponse struct {
	LastNumber int64 `json:"last_number"`
}

// LastAuthorized queries the last number the authority granted for the
// document type and point of sale.
func (a *HTTPAuthority) LastAuthorized(ctx context.Context, token Token, docTypeCode string, pointOfSale int) (int64, error) {
	path := fmt.Sprintf("/vouchers/last?doc_type=%s&point_of_sale=%d", docTypeCode, pointOfSale)
	var resp lastAuthorizedResponse
	if err := a.get(ctx, path, token, &resp); err != nil {
		return 0, fmt.Errorf("fiscal: query last authorized: %w", err)
	}
	return resp.LastNumber, nil
}

type submitResponse struct {
	Result    string    `json:"result"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	Reason    string    `json:"reason"`
}

// Submit sends the authorization payload and returns the verdict.
func (a *HTTPAuthority) Submit(ctx context.Context, token Token, payload AuthorizationRequest) (AuthorizationResult, error) {
	var resp submitResponse
	if err := a.postAuthed(ctx, "/vouchers/authorize", token, payload, &resp); err != nil {
		return AuthorizationResult{}, fmt.Errorf("fiscal: submit: %w", err)
	}
	return AuthorizationResult{
		Approved:  resp.Result == "approved",
		Code:      resp.Code,
		ExpiresAt: resp.ExpiresAt,
		Reason:    resp.Reason,
	}, nil
}

func signAccessRequest(cred Credential, service, issued string) (string, error) {
	if cred.Key == nil {
		return "", fmt.Errorf("fiscal: credential has no private key")
	}
	digest := sha256.Sum256([]byte(cred.TaxID + "|" + service + "|" + issued))
	sig, err := rsa.SignPKCS1v15(rand.Reader, cred.Key, crypto.SHA256, digest[:])
	if err != nil {
		return "", fmt.Errorf("fiscal: sign access request: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

func (a *HTTPAuthority) post(ctx context.Context, path string, body, out any) error {
	return a.do(ctx, http.MethodPost, path, nil, body, out)
}

func (a *HTTPAuthority) postAuthed(ctx context.Context, path string, token Token, body, out any) error {
	return a.do(ctx, http.MethodPost, path, &token, body, out)
}

func (a *HTTPAuthority) get(ctx context.Context, path string, token Token, out any) error {
	return a.do(ctx, http.MethodGet, path, &token, nil, out)
}

func (a *HTTPAuthority) do(ctx context.Context, method, path string, token *Token, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != nil {
		req.Header.Set("X-Auth-Token", token.Token)
		req.Header.Set("X-Auth-Sign", token.Sign)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("authority returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
