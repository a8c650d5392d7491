package ppl

import "fmt"

// AuthError — не удалось получить токен. Внутри вызова не ретраится,
// следующий тик джобы попробует заново.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "ppl: authentication failed: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// APIError is a final carrier response that must not be retried
// (4xx other than 429, or a malformed success).
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("ppl: http %d", e.StatusCode)
	}
	return fmt.Sprintf("ppl: http %d: %s", e.StatusCode, e.Body)
}

// RequestError wraps the last observed failure after retries were
// exhausted on a retryable condition (429/5xx/network/timeout).
type RequestError struct {
	Attempts int
	Err      error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("ppl: request failed after %d attempts: %s", e.Attempts, e.Err.Error())
}
func (e *RequestError) Unwrap() error { return e.Err }

func retryableStatus(code int) bool {
	return code == 429 || code >= 500
}
