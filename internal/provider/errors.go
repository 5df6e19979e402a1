package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// User-facing provider error categories. Classify maps raw transport and
// HTTP failures onto these; callers match them with errors.Is.
var (
	ErrInvalidCredential = errors.New("API key is invalid or expired")
	ErrModelUnavailable  = errors.New("the requested model does not exist or is unavailable")
	ErrRateLimited       = errors.New("too many requests, please try again later")
	ErrMalformedRequest  = errors.New("malformed request")
	ErrProviderInternal  = errors.New("provider internal error")
	ErrQuotaExceeded     = errors.New("API quota exhausted")
	ErrConnectivity      = errors.New("network connectivity problem, please try again later")

	ErrEmptyReply   = errors.New("empty response from provider")
	ErrNotSupported = errors.New("not supported by this backend")
)

// StatusError is a non-2xx response as seen by a backend, before
// classification.
type StatusError struct {
	Status  int
	Type    string // provider error type, e.g. "rate_limit_error"
	Message string
}

func (e *StatusError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("API error: %d %s - %s: %s", e.Status, http.StatusText(e.Status), e.Type, e.Message)
	}
	return fmt.Sprintf("API error: %d %s - %s", e.Status, http.StatusText(e.Status), e.Message)
}

// APIError is a classified provider failure. Kind is one of the Err*
// categories, or nil when the failure fits none of them.
type APIError struct {
	Status  int
	Kind    error
	Message string // raw provider detail, kept for logs
}

func (e *APIError) Error() string {
	if e.Kind != nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("provider API error (%d): %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.Kind }

// Classify maps a backend error onto the stable taxonomy. Context
// cancellation and errors that are neither HTTP statuses nor network
// failures are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var se *StatusError
	if errors.As(err, &se) {
		return &APIError{Status: se.Status, Kind: kindFor(se), Message: se.Message}
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return &APIError{Kind: ErrConnectivity, Message: err.Error()}
	}
	return err
}

func kindFor(se *StatusError) error {
	switch {
	case se.Status == http.StatusUnauthorized:
		return ErrInvalidCredential
	case se.Status == http.StatusNotFound:
		return ErrModelUnavailable
	case se.Status == http.StatusTooManyRequests:
		return ErrRateLimited
	case se.Status == http.StatusBadRequest:
		return ErrMalformedRequest
	case se.Status >= 500:
		return ErrProviderInternal
	}

	// Remaining statuses (403, 413, 529 proxies...) are recognised by the
	// provider's error type or message.
	detail := strings.ToLower(se.Type + " " + se.Message)
	switch {
	case strings.Contains(detail, "rate_limit"):
		return ErrRateLimited
	case strings.Contains(detail, "invalid_api_key"), strings.Contains(detail, "authentication_error"):
		return ErrInvalidCredential
	case strings.Contains(detail, "insufficient_quota"):
		return ErrQuotaExceeded
	case strings.Contains(detail, "not_found_error"):
		return ErrModelUnavailable
	case strings.Contains(detail, "overloaded_error"):
		return ErrProviderInternal
	}
	return nil
}
