package ppl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultMaxRetries   = 3
	defaultInitialDelay = 200 * time.Millisecond
	defaultCallTimeout  = 30 * time.Second
)

type tokenSource interface {
	Token(ctx context.Context) (string, error)
}

type waiter interface {
	Wait(ctx context.Context) error
}

type RequestSpec struct {
	Method string
	Path   string
	// RawURL overrides Path; relative values are joined to the base URL.
	RawURL string
	Query  url.Values
	// Body is JSON-encoded when non-nil.
	Body any
	// AllowNotFound turns a 404 into a valid NotFound response instead
	// of an error (customer profile lookups).
	AllowNotFound bool
	NoAuth        bool
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	NotFound   bool
}

// Transport executes one logical carrier call: token, throttle, request,
// classification, bounded retry with exponential backoff.
type Transport struct {
	baseURL  string
	tokens   tokenSource
	throttle waiter
	httpc    *http.Client

	maxRetries   int
	initialDelay time.Duration
	callTimeout  time.Duration
	sleep        func(time.Duration)
}

func newTransport(baseURL string, tokens tokenSource, throttle waiter) *Transport {
	return &Transport{
		baseURL:      baseURL,
		tokens:       tokens,
		throttle:     throttle,
		httpc:        &http.Client{},
		maxRetries:   defaultMaxRetries,
		initialDelay: defaultInitialDelay,
		callTimeout:  defaultCallTimeout,
		sleep:        time.Sleep,
	}
}

// Do runs the request with up to maxRetries retries on 429/5xx/network
// failures. Classified carrier errors (auth, non-retryable status)
// propagate immediately.
func (t *Transport) Do(ctx context.Context, spec RequestSpec) (*Response, error) {
	var lastErr error
	for attempt := 1; attempt <= t.maxRetries+1; attempt++ {
		resp, err := t.once(ctx, spec)
		if err != nil {
			var ae *AuthError
			if errors.As(err, &ae) {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
		} else {
			switch {
			case resp.StatusCode/100 == 2:
				return resp, nil
			case resp.StatusCode == http.StatusNotFound && spec.AllowNotFound:
				resp.NotFound = true
				return resp, nil
			case !retryableStatus(resp.StatusCode):
				return nil, &APIError{StatusCode: resp.StatusCode, Body: snippet(resp.Body)}
			default:
				lastErr = &APIError{StatusCode: resp.StatusCode, Body: snippet(resp.Body)}
			}
		}

		if attempt <= t.maxRetries {
			t.sleep(t.initialDelay << (attempt - 1))
		}
	}
	return nil, &RequestError{Attempts: t.maxRetries + 1, Err: lastErr}
}

func (t *Transport) once(ctx context.Context, spec RequestSpec) (*Response, error) {
	u, err := t.requestURL(spec)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if spec.Body != nil {
		b, err := json.Marshal(spec.Body)
		if err != nil {
			return nil, errors.Wrap(err, "marshal request body")
		}
		body = bytes.NewReader(b)
	}

	var token string
	if !spec.NoAuth {
		token, err = t.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
	}
	if err := t.throttle.Wait(ctx); err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(ctx, t.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, spec.Method, u, body)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Accept", "application/json")
	if spec.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := t.httpc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errors.Wrap(err, "request timeout")
		}
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: b}, nil
}

func (t *Transport) requestURL(spec RequestSpec) (string, error) {
	raw := spec.RawURL
	if raw == "" {
		raw = t.baseURL + spec.Path
	} else if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = t.baseURL + "/" + strings.TrimPrefix(raw, "/")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrap(err, "parse request url")
	}
	if len(spec.Query) > 0 {
		q := u.Query()
		for k, vs := range spec.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func snippet(b []byte) string {
	const max = 512
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
