package fiscal

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type countingLogin struct {
	calls int
	token Token
	err   error
}

func (l *countingLogin) Login(context.Context, Credential, string) (Token, error) {
	l.calls++
	if l.err != nil {
		return Token{}, l.err
	}
	return l.token, nil
}

func newTestCache(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestObtainCachesUntilExpiry(t *testing.T) {
	login := &countingLogin{token: Token{
		Token:     "t1",
		Sign:      "s1",
		ExpiresAt: time.Now().Add(12 * time.Hour),
	}}
	provider := NewTokenProvider(newTestCache(t), login)
	ctx := context.Background()
	cred := Credential{ID: 1, TaxID: "30-11111111-7"}

	first, err := provider.Obtain(ctx, cred, ServiceInvoicing)
	require.NoError(t, err)
	require.Equal(t, "t1", first.Token)
	require.Equal(t, 1, login.calls)

	// Second call hits the cache, no new handshake.
	second, err := provider.Obtain(ctx, cred, ServiceInvoicing)
	require.NoError(t, err)
	require.Equal(t, first.Token, second.Token)
	require.Equal(t, 1, login.calls)
}

func TestObtainRefreshesExpiredToken(t *testing.T) {
	login := &countingLogin{token: Token{
		Token:     "t1",
		ExpiresAt: time.Now().Add(30 * time.Second), // inside the skew window
	}}
	provider := NewTokenProvider(newTestCache(t), login)
	ctx := context.Background()
	cred := Credential{ID: 1}

	_, err := provider.Obtain(ctx, cred, ServiceInvoicing)
	require.NoError(t, err)

	login.token = Token{Token: "t2", ExpiresAt: time.Now().Add(12 * time.Hour)}
	got, err := provider.Obtain(ctx, cred, ServiceInvoicing)
	require.NoError(t, err)
	require.Equal(t, "t2", got.Token)
	require.Equal(t, 2, login.calls)
}

func TestObtainScopedPerService(t *testing.T) {
	login := &countingLogin{token: Token{
		Token:     "t1",
		ExpiresAt: time.Now().Add(12 * time.Hour),
	}}
	provider := NewTokenProvider(newTestCache(t), login)
	ctx := context.Background()

	_, err := provider.Obtain(ctx, Credential{ID: 1}, ServiceInvoicing)
	require.NoError(t, err)
	_, err = provider.Obtain(ctx, Credential{ID: 1}, "padron")
	require.NoError(t, err)
	require.Equal(t, 2, login.calls, "distinct services get distinct tokens")

	_, err = provider.Obtain(ctx, Credential{ID: 2}, ServiceInvoicing)
	require.NoError(t, err)
	require.Equal(t, 3, login.calls, "distinct credentials get distinct tokens")
}

func TestTokenExpired(t *testing.T) {
	now := time.Now()
	token := Token{ExpiresAt: now.Add(10 * time.Minute)}
	require.False(t, token.Expired(now, 2*time.Minute))
	require.True(t, token.Expired(now, 15*time.Minute))
	require.True(t, Token{ExpiresAt: now.Add(-time.Second)}.Expired(now, 0))
}
