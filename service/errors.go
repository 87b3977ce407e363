package service

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure for the transport layer.
type ErrorKind string

const (
	KindInvalid       ErrorKind = "invalid"
	KindUnprocessable ErrorKind = "unprocessable"
	KindNotFound      ErrorKind = "not_found"
	KindEmpty         ErrorKind = "empty"
	KindBusy          ErrorKind = "busy"
	KindRejected      ErrorKind = "rejected"
	KindTimeout       ErrorKind = "timeout"
	KindUnavailable   ErrorKind = "unavailable"
	KindInconsistent  ErrorKind = "inconsistent"
	KindInternal      ErrorKind = "internal"
)

// Error is what every Service method returns on failure. Err keeps the
// underlying cause for logs; Message is safe to show a caller.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, or KindInternal for errors that did not
// come from this package.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// Public returns the caller-facing message for err. Internal and
// consistency failures never expose their cause.
func Public(err error) string {
	var se *Error
	if !errors.As(err, &se) {
		return "internal error"
	}
	switch se.Kind {
	case KindInternal, KindInconsistent, KindUnavailable:
		if se.Message != "" {
			return se.Message
		}
		return "internal error"
	}
	if se.Message != "" {
		return se.Message
	}
	if se.Err != nil {
		return se.Err.Error()
	}
	return string(se.Kind)
}

func fail(op string, kind ErrorKind, msg string, err error) error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}
