package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies why an extraction produced no record.
type ErrorKind string

const (
	KindUnsupportedSite       ErrorKind = "unsupported_site"
	KindNetworkUnreachable    ErrorKind = "network_unreachable"
	KindConnectionFailed      ErrorKind = "connection_failed"
	KindTimeout               ErrorKind = "timeout"
	KindPageFetchFailed       ErrorKind = "page_fetch_failed"
	KindBotDetectionExhausted ErrorKind = "bot_detection_exhausted"
	KindInternalFault         ErrorKind = "internal_fault"
)

// Retryable reports whether the same request may succeed later.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindUnsupportedSite, KindInternalFault:
		return false
	}
	return true
}

// HTTPStatus maps the kind to the status code returned by the API.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindUnsupportedSite:
		return http.StatusBadRequest
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindInternalFault:
		return http.StatusInternalServerError
	}
	return http.StatusBadGateway
}

// ExtractError is the single error type returned by an extraction.
type ExtractError struct {
	Kind ErrorKind
	// Status is the HTTP status for KindPageFetchFailed.
	Status  int
	Message string
	Err     error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// Is matches another *ExtractError by kind, so errors.Is(err, &ExtractError{Kind: k}) works.
func (e *ExtractError) Is(target error) bool {
	t, ok := target.(*ExtractError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func NewUnsupportedSite(url string) *ExtractError {
	return &ExtractError{
		Kind:    KindUnsupportedSite,
		Message: fmt.Sprintf("site not supported: %s. Only Amazon product pages can be extracted", url),
	}
}

func NewNetworkUnreachable(err error) *ExtractError {
	return &ExtractError{
		Kind:    KindNetworkUnreachable,
		Message: "no network connectivity. Check your internet connection and try again later",
		Err:     err,
	}
}

func NewConnectionFailed(err error) *ExtractError {
	return &ExtractError{
		Kind:    KindConnectionFailed,
		Message: "could not connect to the site after all recovery attempts. Try again later",
		Err:     err,
	}
}

func NewTimeout(err error) *ExtractError {
	return &ExtractError{
		Kind:    KindTimeout,
		Message: "the site took too long to respond. Try again later",
		Err:     err,
	}
}

func NewPageFetchFailed(status int) *ExtractError {
	return &ExtractError{
		Kind:    KindPageFetchFailed,
		Status:  status,
		Message: fmt.Sprintf("failed to fetch page: HTTP %d. Try again later", status),
	}
}

func NewBotDetectionExhausted() *ExtractError {
	return &ExtractError{
		Kind:    KindBotDetectionExhausted,
		Message: "the site blocked every client profile as automated traffic. Use the official product data API or try again later",
	}
}

func NewInternalFault(detail string, err error) *ExtractError {
	return &ExtractError{
		Kind:    KindInternalFault,
		Message: "internal error: " + detail,
		Err:     err,
	}
}

// AsExtractError returns err as an *ExtractError, wrapping unknown errors as internal faults.
func AsExtractError(err error) *ExtractError {
	var ee *ExtractError
	if errors.As(err, &ee) {
		return ee
	}
	return NewInternalFault("unexpected error", err)
}
