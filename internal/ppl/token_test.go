package ppl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BearBump/ShipSync/internal/cache/memcache"
	"github.com/stretchr/testify/require"
)

func newTokenTestServer(calls *atomic.Int64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/login/getAccessToken" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh-token","expires_in":3600}`))
	}))
}

func TestTokenSource_ReusesValidToken(t *testing.T) {
	var calls atomic.Int64
	srv := newTokenTestServer(&calls)
	defer srv.Close()

	mc := memcache.New()
	now := time.Now()

	cached, _ := json.Marshal(cachedToken{AccessToken: "cached", ExpiresAt: now.Add(120 * time.Second)})
	require.NoError(t, mc.Set(context.Background(), tokenCacheKey, cached, time.Minute))

	ts := NewTokenSource(mc, NewThrottle(mc), srv.URL, "id", "secret")
	ts.now = func() time.Time { return now }

	tok, err := ts.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "cached", tok)
	require.Equal(t, int64(0), calls.Load())
}

func TestTokenSource_RefreshesInsideBuffer(t *testing.T) {
	var calls atomic.Int64
	srv := newTokenTestServer(&calls)
	defer srv.Close()

	mc := memcache.New()
	now := time.Now()

	// Осталось 30s — меньше буфера, токен считается протухшим.
	cached, _ := json.Marshal(cachedToken{AccessToken: "stale", ExpiresAt: now.Add(30 * time.Second)})
	require.NoError(t, mc.Set(context.Background(), tokenCacheKey, cached, time.Minute))

	ts := NewTokenSource(mc, NewThrottle(mc), srv.URL, "id", "secret")
	ts.now = func() time.Time { return now }

	tok, err := ts.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fresh-token", tok)
	require.Equal(t, int64(1), calls.Load())

	// Новый токен закэширован: второй вызов не ходит на endpoint.
	tok, err = ts.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fresh-token", tok)
	require.Equal(t, int64(1), calls.Load())
}

func TestTokenSource_RefreshFailureIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	mc := memcache.New()
	ts := NewTokenSource(mc, NewThrottle(mc), srv.URL, "id", "bad-secret")

	_, err := ts.Token(context.Background())
	require.Error(t, err)
	var ae *AuthError
	require.ErrorAs(t, err, &ae)
}
