// Package apperr carries the error taxonomy shared by the pipeline,
// the retry policy, and the API layer. Classifying by Kind keeps retry
// decisions and HTTP mapping total functions instead of string matching.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error for retry and surfacing decisions.
type Kind int

const (
	// KindUnknown covers unclassified failures. They are assumed
	// transient for retry purposes.
	KindUnknown Kind = iota

	// KindValidation marks bad input caught before any network call.
	KindValidation

	// KindCredentialMissing means no API key was found in any source.
	KindCredentialMissing

	// KindCredentialInvalid means the provider rejected the key.
	KindCredentialInvalid

	// KindRateLimited marks a local pre-admission refusal or a
	// provider 429. Carries a retry-after hint; never retried inline.
	KindRateLimited

	// KindTransient marks network errors, timeouts and provider 5xx.
	KindTransient

	// KindSchema marks structurally invalid model output that failed
	// client-side validation. Terminal; retrying returns the same shape.
	KindSchema
)

// String returns the stable name used in logs and API error codes.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindCredentialMissing:
		return "credential_missing"
	case KindCredentialInvalid:
		return "credential_invalid"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	case KindSchema:
		return "schema_validation"
	default:
		return "unknown"
	}
}

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string

	// Details holds observed values for structured surfacing
	// (sizes, MIME types, endpoints).
	Details map[string]any

	// Endpoint and RetryAfter are set for KindRateLimited.
	Endpoint   string
	RetryAfter time.Duration

	// Attempts is the number of provider attempts made before this
	// error became terminal. Zero when no retry loop was involved.
	Attempts int

	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail attaches an observed value and returns the error.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around a cause.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: err}
}

// KindOf extracts the kind from an error chain. Unclassified errors
// report KindUnknown.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// RetryAfterOf returns the retry-after hint from a rate-limited error,
// or zero when none is present.
func RetryAfterOf(err error) time.Duration {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.RetryAfter
	}
	return 0
}

// AttemptsOf returns the recorded attempt count, or zero.
func AttemptsOf(err error) int {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Attempts
	}
	return 0
}
