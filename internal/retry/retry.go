// Package retry provides a shared retry utility with exponential backoff and
// jitter, used for every upstream HTTP API (Brave, Anthropic, Ollama).
package retry

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// cryptoInt64n returns a random int64 in [0, n) using crypto/rand.
func cryptoInt64n(n int64) int64 {
	if n <= 0 {
		return 0
	}
	var b [8]byte
	_, _ = rand.Read(b[:])
	v := binary.LittleEndian.Uint64(b[:]) >> 1 // ensure fits in int64
	return int64(v % uint64(n))                //nolint:gosec // n>0, v%n < n, safe
}

// PermanentError wraps an error that should not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Do will not retry it.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// StatusError is an unexpected HTTP response from an upstream API.
type StatusError struct {
	Service string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Service, e.Code, e.Body)
}

// HTTPStatus returns the response status code.
func (e *StatusError) HTTPStatus() int { return e.Code }

// Retryable reports whether an HTTP status is worth retrying: rate limits
// and server errors.
func Retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// Transient reports whether err points at an unhealthy upstream. Errors that
// carry a non-retryable HTTP status, via an HTTPStatus() int method, and
// context cancellation are not transient. Transport failures are.
func Transient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var sc interface{ HTTPStatus() int }
	if errors.As(err, &sc) {
		return Retryable(sc.HTTPStatus())
	}
	return true
}

// CheckStatus returns nil for 2xx codes. Other codes become a *StatusError,
// wrapped as permanent unless Retryable.
func CheckStatus(service string, code int, body []byte) error {
	if code >= 200 && code < 300 {
		return nil
	}
	if len(body) > 512 {
		body = body[:512]
	}
	err := &StatusError{Service: service, Code: code, Body: string(body)}
	if Retryable(code) {
		return err
	}
	return Permanent(err)
}

// Do calls fn up to maxAttempts times with exponential backoff and jitter.
// It stops early if:
//   - fn returns nil (success)
//   - fn returns a *PermanentError (not retryable)
//   - ctx is cancelled
//
// baseDelay is doubled on each retry with +-25% jitter.
func Do(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var err error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Don't retry permanent errors.
		var pe *PermanentError
		if errors.As(err, &pe) {
			return pe.Err
		}

		// Don't sleep after the last attempt.
		if attempt == maxAttempts-1 {
			break
		}

		// Exponential backoff with +-25% jitter.
		jitter := delay / 4
		sleep := delay - jitter + time.Duration(cryptoInt64n(int64(2*jitter+1)))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		delay *= 2
	}

	return err
}

// DoValue is Do for functions that produce a value.
func DoValue[T any](ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() (T, error)) (T, error) {
	var out T
	err := Do(ctx, maxAttempts, baseDelay, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
