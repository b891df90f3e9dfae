package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a rejection. Handlers and guards return kinds; the HTTP
// error handler owns the mapping to status codes, so the distinction between
// "no identity" and "identity without authority" is decided in one place.
type Kind string

const (
	KindUnauthenticated         Kind = "UNAUTHENTICATED"
	KindTenantContextMissing    Kind = "TENANT_CONTEXT_MISSING"
	KindPermissionDenied        Kind = "PERMISSION_DENIED"
	KindCrossTenantForbidden    Kind = "CROSS_TENANT_FORBIDDEN"
	KindAmountExceedsLimit      Kind = "AMOUNT_EXCEEDS_LIMIT"
	KindSelfModificationBlocked Kind = "SELF_MODIFICATION_BLOCKED"
	KindInvalidTransition       Kind = "INVALID_TRANSITION"
	KindImmutableAfterDraft     Kind = "IMMUTABLE_AFTER_DRAFT"
	KindMissingFields           Kind = "MISSING_FIELDS"
	KindNotFound                Kind = "NOT_FOUND"
	KindInternal                Kind = "INTERNAL"
)

// Error is a structured rejection. RequiredPermission, when set, names the
// scope whose absence caused the denial so clients can surface it.
type Error struct {
	Kind               Kind
	Message            string
	RequiredPermission string
}

func (e *Error) Error() string {
	return e.Message
}

// New builds an Error with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithPermission attaches the missing scope to the error.
func (e *Error) WithPermission(scope string) *Error {
	e.RequiredPermission = scope
	return e
}

// KindOf extracts the kind from an error chain, KindInternal for anything
// that is not a structured rejection.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// StatusCode maps a kind to its HTTP status. 401 means the request carries no
// usable identity; 403 means the identity exists but lacks authority. Invalid
// lifecycle operations are client errors, not conflicts: the request named a
// transition the state machine does not permit.
func StatusCode(kind Kind) int {
	switch kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindTenantContextMissing, KindPermissionDenied, KindCrossTenantForbidden,
		KindAmountExceedsLimit, KindSelfModificationBlocked:
		return http.StatusForbidden
	case KindInvalidTransition, KindImmutableAfterDraft, KindMissingFields:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
