package models

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// TransientFetchError marks a fetch failure that is worth retrying: network
// timeouts, rate limiting, and server-side errors. RetryAfter is non-zero when
// the upstream supplied a Retry-After hint.
type TransientFetchError struct {
	Source     string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *TransientFetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("transient fetch error from %s (status %d): %v", e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transient fetch error from %s: %v", e.Source, e.Err)
}

func (e *TransientFetchError) Unwrap() error {
	return e.Err
}

// PermanentFetchError marks a fetch failure that retrying cannot fix:
// bad credentials, missing boards, malformed source configuration.
type PermanentFetchError struct {
	Source     string
	StatusCode int
	Reason     string
	Err        error
}

func (e *PermanentFetchError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("permanent fetch error from %s: %s", e.Source, e.Reason)
	}
	return fmt.Sprintf("permanent fetch error from %s (status %d): %v", e.Source, e.StatusCode, e.Err)
}

func (e *PermanentFetchError) Unwrap() error {
	return e.Err
}

// NormalizationError marks one raw record that could not be mapped into a
// normalized posting. The record is dropped and counted; the run continues.
type NormalizationError struct {
	Source string
	Field  string
	Reason string
}

func (e *NormalizationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("normalization error from %s: field %q: %s", e.Source, e.Field, e.Reason)
	}
	return fmt.Sprintf("normalization error from %s: %s", e.Source, e.Reason)
}

// DeduplicationConflict marks a resolve that lost a transactional race with a
// concurrent writer touching the same fingerprint. Callers retry once against
// the updated catalog state.
type DeduplicationConflict struct {
	Fingerprint string
	Err         error
}

func (e *DeduplicationConflict) Error() string {
	return fmt.Sprintf("deduplication conflict on fingerprint %s: %v", e.Fingerprint, e.Err)
}

func (e *DeduplicationConflict) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is (or wraps) a TransientFetchError
func IsTransient(err error) bool {
	var t *TransientFetchError
	return errors.As(err, &t)
}

// IsPermanent reports whether err is (or wraps) a PermanentFetchError
func IsPermanent(err error) bool {
	var p *PermanentFetchError
	return errors.As(err, &p)
}

// IsConflict reports whether err is (or wraps) a DeduplicationConflict
func IsConflict(err error) bool {
	var c *DeduplicationConflict
	return errors.As(err, &c)
}

// ClassifyHTTPStatus wraps a non-2xx response status as transient or
// permanent. 408, 429 and 5xx are transient; everything else 4xx is permanent.
func ClassifyHTTPStatus(source string, status int, retryAfter time.Duration) error {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return &TransientFetchError{
			Source:     source,
			StatusCode: status,
			RetryAfter: retryAfter,
			Err:        fmt.Errorf("unexpected status: %s", http.StatusText(status)),
		}
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return &PermanentFetchError{
			Source:     source,
			StatusCode: status,
			Reason:     "authentication rejected",
		}
	case status == http.StatusNotFound:
		return &PermanentFetchError{
			Source:     source,
			StatusCode: status,
			Reason:     "resource not found",
		}
	default:
		return &PermanentFetchError{
			Source:     source,
			StatusCode: status,
			Err:        fmt.Errorf("unexpected status: %s", http.StatusText(status)),
		}
	}
}

// ClassifyFetchError wraps a transport-level error. Timeouts and temporary
// network failures are transient; context cancellation is passed through so
// run shutdown is not misreported as a source failure.
func ClassifyFetchError(source string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if IsTransient(err) || IsPermanent(err) {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransientFetchError{Source: source, Err: err}
	}

	// Connection refused, DNS failures and friends are worth retrying
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &TransientFetchError{Source: source, Err: err}
	}

	return &TransientFetchError{Source: source, Err: err}
}
