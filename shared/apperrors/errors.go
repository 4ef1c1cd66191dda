package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure by how the user can recover from it
type Kind int

const (
	KindUnknown Kind = iota
	KindNotAuthenticated
	KindValidation
	KindWrite
	KindRead
	KindForbidden
	KindBusy
	KindStale
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindNotAuthenticated:
		return "not_authenticated"
	case KindValidation:
		return "validation"
	case KindWrite:
		return "write"
	case KindRead:
		return "read"
	case KindForbidden:
		return "forbidden"
	case KindBusy:
		return "busy"
	case KindStale:
		return "stale"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is the failure value returned by controllers and session operations.
// Action is a short label of what the user tried ("save customer segment").
type Error struct {
	Kind   Kind
	Action string
	Field  string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Action != "" {
		msg = e.Action + ": " + msg
	}
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind so errors.Is(err, apperrors.ErrBusy) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Action == "" && t.Field == "" && t.Err == nil
}

// Sentinels for errors.Is checks
var (
	ErrNotAuthenticated = &Error{Kind: KindNotAuthenticated}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrWrite            = &Error{Kind: KindWrite}
	ErrRead             = &Error{Kind: KindRead}
	ErrForbidden        = &Error{Kind: KindForbidden}
	ErrBusy             = &Error{Kind: KindBusy}
	ErrStale            = &Error{Kind: KindStale}
	ErrNotFound         = &Error{Kind: KindNotFound}
)

func NotAuthenticated(action string) error {
	return &Error{Kind: KindNotAuthenticated, Action: action}
}

func Validation(action, field string, cause error) error {
	return &Error{Kind: KindValidation, Action: action, Field: field, Err: cause}
}

func Write(action string, cause error) error {
	return &Error{Kind: KindWrite, Action: action, Err: cause}
}

func Read(action string, cause error) error {
	return &Error{Kind: KindRead, Action: action, Err: cause}
}

func Forbidden(action string) error {
	return &Error{Kind: KindForbidden, Action: action}
}

func Busy(action string) error {
	return &Error{Kind: KindBusy, Action: action}
}

func Stale(action string) error {
	return &Error{Kind: KindStale, Action: action}
}

func NotFound(action string) error {
	return &Error{Kind: KindNotFound, Action: action}
}

// KindOf returns the kind of err, or KindUnknown for foreign errors
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// UserMessage translates err into one of a fixed set of messages that are safe
// to show to end users. Backend error text is never included.
func UserMessage(err error) string {
	var appErr *Error
	if !errors.As(err, &appErr) {
		return "Something went wrong. Please try again."
	}

	action := appErr.Action
	if action == "" {
		action = "complete the action"
	}

	switch appErr.Kind {
	case KindNotAuthenticated:
		return "Please log in to continue."
	case KindValidation:
		if appErr.Field != "" {
			return fmt.Sprintf("Could not %s: check the field %q.", action, appErr.Field)
		}
		return fmt.Sprintf("Could not %s: some fields are missing or invalid.", action)
	case KindWrite:
		return fmt.Sprintf("Could not %s. Please try again.", action)
	case KindRead:
		return fmt.Sprintf("Could not %s. Showing the last loaded data.", action)
	case KindForbidden:
		return "You do not have access to this area."
	case KindBusy:
		return "Another change is still being saved. Please wait."
	case KindStale:
		return "The data changed while you were working. Please reload."
	case KindNotFound:
		return fmt.Sprintf("Could not %s: the record is no longer available.", action)
	default:
		return "Something went wrong. Please try again."
	}
}

// HTTPStatus maps err to the response status used by the services
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotAuthenticated:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindBusy, KindStale:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindRead, KindWrite:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
