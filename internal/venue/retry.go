package venue

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jpillora/backoff"
)

// StatusError is a non-2xx HTTP response from a venue or service.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

// terminalError marks an error that must never be retried regardless of
// its underlying type, such as a malformed response payload.
type terminalError struct{ err error }

func (e *terminalError) Error() string { return e.err.Error() }
func (e *terminalError) Unwrap() error { return e.err }

// Terminal wraps err so retry policies stop on it immediately.
func Terminal(err error) error { return &terminalError{err: err} }

// IsTransient classifies errors worth retrying: gateway failures and
// network-level errors. Everything else is terminal for the call.
func IsTransient(err error) bool {
	var te *terminalError
	if errors.As(err, &te) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Status {
		case 502, 503, 504:
			return true
		}
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	// fasthttp and transport-level failures arrive as plain errors with
	// no typed cause; treat unclassified errors as transient so a flaky
	// connection gets its bounded retries.
	return true
}

// RetryPolicy is the one reusable retry mechanism shared by the venue
// adapters: a fixed attempt count with increasing delay, retrying only
// errors the predicate classifies as transient.
type RetryPolicy struct {
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
	Retryable   func(error) bool
}

// DefaultRetryPolicy mirrors the retry settings the external service uses.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		MinDelay:    time.Second,
		MaxDelay:    10 * time.Second,
		Retryable:   IsTransient,
	}
}

// Do runs fn up to MaxAttempts times. Non-retryable errors are returned
// immediately.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func() error) error {
	b := &backoff.Backoff{Min: p.MinDelay, Max: p.MaxDelay, Factor: 2, Jitter: true}
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}
		select {
		case <-time.After(b.Duration()):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, p.MaxAttempts, lastErr)
}
