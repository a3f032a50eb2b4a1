package idea

import (
	"errors"
	"fmt"
)

// Kind tags every failure the lifecycle surfaces so the boundary layer can
// map it to a transport status.
type Kind string

const (
	KindInvalidRequest       Kind = "INVALID_REQUEST"
	KindUnauthenticated      Kind = "UNAUTHENTICATED"
	KindForbidden            Kind = "FORBIDDEN"
	KindNotFound             Kind = "NOT_FOUND"
	KindValidation           Kind = "VALIDATION_ERROR"
	KindStoreUnavailable     Kind = "STORE_UNAVAILABLE"
	KindSynthesisUnavailable Kind = "SYNTHESIS_UNAVAILABLE"
)

var (
	ErrInvalidRequest       = &Error{Kind: KindInvalidRequest}
	ErrUnauthenticated      = &Error{Kind: KindUnauthenticated}
	ErrForbidden            = &Error{Kind: KindForbidden}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrValidation           = &Error{Kind: KindValidation}
	ErrStoreUnavailable     = &Error{Kind: KindStoreUnavailable}
	ErrSynthesisUnavailable = &Error{Kind: KindSynthesisUnavailable}
)

type Error struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Kind so errors.Is(err, idea.ErrNotFound) works for any
// message or field.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf returns the taxonomy tag of err, or "" for untagged errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func InvalidRequest(field, message string) *Error {
	return &Error{Kind: KindInvalidRequest, Field: field, Message: message}
}

func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

func Unauthenticated(message string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: message}
}

func StoreUnavailable(err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Message: "idea store unavailable", Err: err}
}

func SynthesisUnavailable(err error) *Error {
	return &Error{Kind: KindSynthesisUnavailable, Message: "idea synthesis unavailable", Err: err}
}
