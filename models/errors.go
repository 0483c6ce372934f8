package models

import (
	"errors"
	"fmt"
)

// Classified error codes. Every terminal error that crosses the package
// boundary carries exactly one of these so callers branch on the code,
// never on free-form error text.
const (
	ErrCodeUnsupportedProtocol = "UNSUPPORTED_PROTOCOL"
	ErrCodeBlockedHost         = "BLOCKED_HOST"
	ErrCodeAntiBot             = "ANTI_BOT_DETECTED"
	ErrCodeHTTPStatus          = "HTTP_STATUS_ERROR"
	ErrCodeNetwork             = "NETWORK_ERROR"
	ErrCodeTimeout             = "TIMEOUT"
	ErrCodeRenderingDown       = "RENDERING_UNAVAILABLE"
)

// ClassifiedError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ClassifiedError struct {
	Code       string
	StatusCode int // set only for ErrCodeHTTPStatus
	Message    string
	Err        error // wrapped original error
}

func (e *ClassifiedError) Error() string {
	switch {
	case e.Code == ErrCodeHTTPStatus && e.Err != nil:
		return fmt.Sprintf("%s(%d): %s: %v", e.Code, e.StatusCode, e.Message, e.Err)
	case e.Code == ErrCodeHTTPStatus:
		return fmt.Sprintf("%s(%d): %s", e.Code, e.StatusCode, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// NewError creates a new ClassifiedError.
func NewError(code, message string, err error) *ClassifiedError {
	return &ClassifiedError{Code: code, Message: message, Err: err}
}

// NewHTTPStatusError creates a ClassifiedError preserving the HTTP status
// for caller-side mapping (403 -> forbidden, 404 -> not found, 429 -> rate
// limited, anything else -> generic).
func NewHTTPStatusError(statusCode int, message string) *ClassifiedError {
	return &ClassifiedError{Code: ErrCodeHTTPStatus, StatusCode: statusCode, Message: message}
}

// CodeOf extracts the classification code from an error chain, or "" if
// the chain contains no ClassifiedError.
func CodeOf(err error) string {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// StatusOf extracts the preserved HTTP status from an error chain, or 0.
func StatusOf(err error) int {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.StatusCode
	}
	return 0
}
