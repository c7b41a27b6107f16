package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into the engine's failure taxonomy. The transport
// layer maps kinds onto status codes; the engine itself only cares about the
// distinctions below.
type Kind int

const (
	// KindNotFound covers absent entities and entities hidden by access policy.
	KindNotFound Kind = iota + 1
	// KindForbidden covers visible entities the caller may not act on.
	KindForbidden
	// KindConflict covers lost optimistic-concurrency races and duplicates.
	KindConflict
	// KindInvalid covers malformed caller input.
	KindInvalid
	// KindInternal covers persistence and audit-write failures.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindInvalid:
		return "invalid"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error carries a taxonomy kind alongside a human-readable message and an
// optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound builds a KindNotFound error.
func NotFound(message string, cause error) *Error {
	return &Error{Kind: KindNotFound, Message: message, Err: cause}
}

// Forbidden builds a KindForbidden error.
func Forbidden(message string, cause error) *Error {
	return &Error{Kind: KindForbidden, Message: message, Err: cause}
}

// Conflict builds a KindConflict error.
func Conflict(message string, cause error) *Error {
	return &Error{Kind: KindConflict, Message: message, Err: cause}
}

// Invalid builds a KindInvalid error.
func Invalid(message string, cause error) *Error {
	return &Error{Kind: KindInvalid, Message: message, Err: cause}
}

// Internal builds a KindInternal error.
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: cause}
}

// KindOf extracts the taxonomy kind from err, returning KindInternal for
// errors that did not originate from this package.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}

// IsNotFound reports whether err is a KindNotFound error.
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// IsForbidden reports whether err is a KindForbidden error.
func IsForbidden(err error) bool { return IsKind(err, KindForbidden) }

// IsConflict reports whether err is a KindConflict error.
func IsConflict(err error) bool { return IsKind(err, KindConflict) }

// IsInvalid reports whether err is a KindInvalid error.
func IsInvalid(err error) bool { return IsKind(err, KindInvalid) }
