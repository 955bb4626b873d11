package routing

import (
	"errors"
	"fmt"

	"github.com/xaenox/omnidesk/internal/storage"
)

// Kind identifies a failure class callers can branch on. Validation
// kinds are permanent; persistence kinds are transient and safe to
// retry against the same precondition.
type Kind string

const (
	KindInvalidTransition     Kind = "invalid_transition"
	KindAlreadyResolved       Kind = "already_resolved"
	KindUserNotInTeam         Kind = "user_not_in_team"
	KindAssignmentPersistence Kind = "assignment_persistence_error"
	KindHandoffApplyFailed    Kind = "handoff_apply_failed"
	KindPersistenceTimeout    Kind = "persistence_timeout"
	KindActionBusy            Kind = "action_busy"
	KindNotFound              Kind = "not_found"
	KindInvalidRequest        Kind = "invalid_request"
)

// Transient reports whether a retry with the same precondition check
// could succeed.
func (k Kind) Transient() bool {
	switch k {
	case KindAssignmentPersistence, KindHandoffApplyFailed, KindPersistenceTimeout:
		return true
	}
	return false
}

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func newError(kind Kind, format string, args ...any) *Error {
	return NewError(kind, format, args...)
}

func wrapError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the taxonomy kind from an error chain, or "" when the
// error did not originate in this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// storeError maps storage sentinels onto the taxonomy, with fallback
// for unclassified store failures.
func storeError(err error, fallback Kind, format string, args ...any) *Error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return wrapError(KindNotFound, err, format, args...)
	case errors.Is(err, storage.ErrTimeout):
		return wrapError(KindPersistenceTimeout, err, format, args...)
	default:
		return wrapError(fallback, err, format, args...)
	}
}
