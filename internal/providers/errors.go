package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrorKind classifies an inference failure.
type ErrorKind string

const (
	// KindTransport is a network failure or a 5xx from the provider.
	KindTransport ErrorKind = "transport"
	// KindQuota is a rate-limit or quota-exhaustion response.
	KindQuota ErrorKind = "quota"
	// KindModel is a request the model refused or could not serve (4xx, safety block).
	KindModel ErrorKind = "model"
	// KindMalformed is a response that could not be parsed or had no text.
	KindMalformed ErrorKind = "malformed"
	// KindCanceled means the caller's context ended during the request.
	KindCanceled ErrorKind = "canceled"
)

// InferenceError is a failed inference call for a single tile.
type InferenceError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	RetryAfter time.Duration
	Message    string
	Err        error
}

func (e *InferenceError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s error (status %d): %s", e.Provider, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s %s error: %s", e.Provider, e.Kind, msg)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt could succeed.
// Quota errors are retryable only when the provider said when to come back.
func (e *InferenceError) Retryable() bool {
	switch e.Kind {
	case KindTransport, KindMalformed:
		return true
	case KindQuota:
		return e.RetryAfter > 0
	}
	return false
}

// IsQuota reports whether err is a quota InferenceError.
func IsQuota(err error) bool {
	var ie *InferenceError
	return errors.As(err, &ie) && ie.Kind == KindQuota
}

// AsInferenceError extracts an *InferenceError from err.
func AsInferenceError(err error) (*InferenceError, bool) {
	var ie *InferenceError
	ok := errors.As(err, &ie)
	return ie, ok
}

// kindForStatus maps an HTTP status code to an error kind.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindQuota
	case status == http.StatusRequestTimeout:
		return KindTransport
	case status >= 500:
		return KindTransport
	default:
		return KindModel
	}
}

// statusError builds an InferenceError from an HTTP status response.
func statusError(provider string, status int, header http.Header, body string) *InferenceError {
	ie := &InferenceError{
		Provider:   provider,
		Kind:       kindForStatus(status),
		StatusCode: status,
		Message:    truncate(body, 500),
	}
	if header != nil {
		ie.RetryAfter = parseRetryAfter(header.Get("Retry-After"))
	}
	return ie
}

// transportError wraps a request failure, recognizing cancellation.
func transportError(provider string, err error) *InferenceError {
	kind := KindTransport
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = KindCanceled
	}
	return &InferenceError{Provider: provider, Kind: kind, Err: err}
}

func malformedError(provider, msg string) *InferenceError {
	return &InferenceError{Provider: provider, Kind: KindMalformed, Message: msg}
}

// parseRetryAfter accepts either delay-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
