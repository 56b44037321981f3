package fiscal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// expirySkew keeps a safety margin so a token is never used right at its
// expiry instant while a request is in flight.
const expirySkew = 2 * time.Minute

// LoginPort performs the authentication handshake against the authority.
type LoginPort interface {
	Login(ctx context.Context, cred Credential, service string) (Token, error)
}

// TokenProvider caches security tokens per (credential, service) and reuses
// them until expiry, deduplicating concurrent handshakes.
type TokenProvider struct {
	cache *redis.Client
	login LoginPort
	group singleflight.Group
	nowFn func() time.Time
}

// NewTokenProvider builds TokenProvider.
func NewTokenProvider(cache *redis.Client, login LoginPort) *TokenProvider {
	return &TokenProvider{cache: cache, login: login, nowFn: time.Now}
}

func tokenKey(credentialID int64, service string) string {
	return fmt.Sprintf("fiscal:token:%d:%s", credentialID, service)
}

// Obtain returns a cached non-expired token for (credential, service), or
// performs the login handshake and caches the result.
func (p *TokenProvider) Obtain(ctx context.Context, cred Credential, service string) (Token, error) {
	key := tokenKey(cred.ID, service)
	now := p.nowFn().UTC()

	if cached, ok, err := p.read(ctx, key); err != nil {
		return Token{}, err
	} else if ok && !cached.Expired(now, expirySkew) {
		return cached, nil
	}

	result, err, _ := p.group.Do(key, func() (any, error) {
		// Re-check inside the flight: another caller may have refreshed.
		if cached, ok, err := p.read(ctx, key); err != nil {
			return Token{}, err
		} else if ok && !cached.Expired(p.nowFn().UTC(), expirySkew) {
			return cached, nil
		}
		token, err := p.login.Login(ctx, cred, service)
		if err != nil {
			return Token{}, err
		}
		if err := p.write(ctx, key, token); err != nil {
			return Token{}, err
		}
		return token, nil
	})
	if err != nil {
		return Token{}, err
	}
	return result.(Token), nil
}

func (p *TokenProvider) read(ctx context.Context, key string) (Token, bool, error) {
	raw, err := p.cache.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, fmt.Errorf("fiscal: read token cache: %w", err)
	}
	var token Token
	if err := json.Unmarshal(raw, &token); err != nil {
		// A corrupt cache entry is equivalent to a miss.
		return Token{}, false, nil
	}
	return token, true, nil
}

func (p *TokenProvider) write(ctx context.Context, key string, token Token) error {
	ttl := time.Until(token.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(token)
	if err != nil {
		return err
	}
	if err := p.cache.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("fiscal: write token cache: %w", err)
	}
	return nil
}
