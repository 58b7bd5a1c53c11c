package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies an AppError. Callers branch on the kind, never on message text.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindValidation
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation"
	case KindTransient:
		return "transient"
	default:
		return "internal"
	}
}

// Status returns the HTTP status code used when rendering the kind.
func (k Kind) Status() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AppError represents a standardized application error
type AppError struct {
	Kind    Kind   `json:"-"`
	Code    int    `json:"code"`
	Reason  string `json:"reason,omitempty"` // stable machine-readable reason, e.g. "prompt_active"
	Message string `json:"message"`
	Err     error  `json:"-"` // Internal error for logging
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the internal cause to errors.Is / errors.As.
func (e *AppError) Unwrap() error { return e.Err }

// Is matches another *AppError with the same kind and reason, so sentinel
// values declared with New can be compared with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Reason == e.Reason
}

// New creates a new AppError
func New(kind Kind, reason, message string, err error) *AppError {
	return &AppError{
		Kind:    kind,
		Code:    kind.Status(),
		Reason:  reason,
		Message: message,
		Err:     err,
	}
}

// Unauthorized creates a 401 error
func Unauthorized(reason, message string) *AppError {
	return New(KindUnauthorized, reason, message, nil)
}

// Forbidden creates a 403 error
func Forbidden(reason, message string) *AppError {
	return New(KindForbidden, reason, message, nil)
}

// NotFound creates a 404 error
func NotFound(reason, message string) *AppError {
	return New(KindNotFound, reason, message, nil)
}

// Conflict creates a 409 error
func Conflict(reason, message string) *AppError {
	return New(KindConflict, reason, message, nil)
}

// Validation creates a 400 error
func Validation(reason, message string) *AppError {
	return New(KindValidation, reason, message, nil)
}

// Transient wraps a store or network failure that is safe to retry.
func Transient(message string, err error) *AppError {
	return New(KindTransient, "transient", message, err)
}

// Internal creates a 500 error
func Internal(err error) *AppError {
	return New(KindInternal, "internal", "Internal Server Error", err)
}

// As returns the AppError in err's chain, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err. Errors that are not AppErrors are internal.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ReasonOf returns the reason code carried by err, or "" for foreign errors.
func ReasonOf(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Reason
	}
	return ""
}
