package application

import (
	"errors"
	"fmt"
)

// Kind classifies flow failures. Validation, Conflict, NotFound and Expired are
// answered to the caller; Transport and Storage go to the host error layer.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindExpired
	KindTransport
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindExpired:
		return "expired"
	case KindTransport:
		return "transport"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Internal reports whether errors of this kind belong to the host error layer.
func (k Kind) Internal() bool {
	return k == KindTransport || k == KindStorage || k == KindUnknown
}

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrAlreadySignedUp    = errors.New("account already signed up")
	ErrAccountDeactivated = errors.New("account deactivated")
	ErrAccountInvalid     = errors.New("account invalid or locked")
	ErrUserNotFound       = errors.New("user not found")
	ErrTokenNotFound      = errors.New("signup token not found")
	ErrTokenExpired       = errors.New("signup token expired")
	ErrDelivery           = errors.New("verification code delivery failed")
)

// Error is the flow error carrying its kind, the offending field and a
// message fit for the end user.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil && e.Kind.Internal():
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf classifies err. Errors that did not come from the flow count as storage failures.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindStorage
}

// PublicMessage returns the text that may be shown to the end user.
func PublicMessage(err error) string {
	var fe *Error
	if errors.As(err, &fe) && fe.Message != "" && !fe.Kind.Internal() {
		return fe.Message
	}
	return "internal server error"
}

func validationError(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: msg, Err: ErrInvalidInput}
}

func storageError(op string, err error) *Error {
	return &Error{Kind: KindStorage, Message: op, Err: err}
}

func transportError(channel string, err error) *Error {
	return &Error{Kind: KindTransport, Field: channel, Message: fmt.Sprintf("send %s verification", channel), Err: errors.Join(ErrDelivery, err)}
}
