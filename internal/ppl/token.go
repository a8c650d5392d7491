package ppl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BearBump/ShipSync/internal/cache"
	"github.com/pkg/errors"
)

const (
	tokenCacheKey     = "ppl:access-token"
	tokenExpiryBuffer = 60 * time.Second
)

type cachedToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TokenSource hands out a valid bearer token, refreshing it via the
// carrier's client-credentials endpoint when the cached one is within
// the expiry buffer. Refresh намеренно без single-flight: конкурентные
// вызовы у границы истечения могут сходить за токеном каждый — это
// дёшево и сходится через общий кэш.
type TokenSource struct {
	cache    cache.BytesCache
	throttle *Throttle
	httpc    *http.Client

	baseURL      string
	clientID     string
	clientSecret string

	now func() time.Time
}

func NewTokenSource(c cache.BytesCache, th *Throttle, baseURL, clientID, clientSecret string) *TokenSource {
	return &TokenSource{
		cache:        c,
		throttle:     th,
		httpc:        &http.Client{Timeout: 30 * time.Second},
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		now:          time.Now,
	}
}

// Token returns the cached token when it is still valid past the buffer,
// otherwise refreshes. Never returns a token with less than the buffer
// left on it.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	if b, ok, err := s.cache.Get(ctx, tokenCacheKey); err == nil && ok {
		var t cachedToken
		if json.Unmarshal(b, &t) == nil && t.AccessToken != "" && t.ExpiresAt.After(s.now().Add(tokenExpiryBuffer)) {
			return t.AccessToken, nil
		}
	}
	return s.refresh(ctx)
}

func (s *TokenSource) refresh(ctx context.Context) (string, error) {
	if err := s.throttle.Wait(ctx); err != nil {
		return "", err
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/login/getAccessToken", strings.NewReader(form.Encode()))
	if err != nil {
		return "", &AuthError{Err: errors.Wrap(err, "new token request")}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return "", &AuthError{Err: errors.Wrap(err, "token request")}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &AuthError{Err: fmt.Errorf("token endpoint http %d: %s", resp.StatusCode, string(body))}
	}

	var tr struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", &AuthError{Err: errors.Wrap(err, "decode token response")}
	}
	if tr.AccessToken == "" {
		return "", &AuthError{Err: errors.New("empty access_token in response")}
	}

	ttl := time.Duration(tr.ExpiresIn) * time.Second
	ct := cachedToken{AccessToken: tr.AccessToken, ExpiresAt: s.now().Add(ttl)}
	b, _ := json.Marshal(ct)
	if err := s.cache.Set(ctx, tokenCacheKey, b, ttl); err != nil {
		// Токен рабочий, просто не закэшировался — следующий вызов сходит ещё раз.
		slog.Warn("token cache write failed", "error", err.Error())
	}
	return tr.AccessToken, nil
}
