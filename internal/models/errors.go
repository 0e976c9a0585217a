package models

import (
	"errors"
	"strings"
)

var (
	ErrNotFound       = errors.New("object not found")
	ErrTransport      = errors.New("transport failure")
	ErrCapacity       = errors.New("store rejected write")
	ErrDecode         = errors.New("image cannot be decoded")
	ErrRecordNotFound = errors.New("record not found")
	ErrInvalidInput   = errors.New("invalid input")

	ErrDoRetry = errors.New("it's OK to retry")
)

// Error ties a failure to the place it happened and to one of the sentinel
// kinds above. errors.Is matches both Kind and Err.
type Error struct {
	Loc    string
	Detail string
	Kind   error
	Err    error
}

func NewError(loc, detail string, kind, err error) *Error {
	return &Error{Loc: loc, Detail: detail, Kind: kind, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Loc)
	if e.Detail != "" {
		b.WriteString(" [")
		b.WriteString(e.Detail)
		b.WriteString("]")
	}
	if e.Kind != nil {
		b.WriteString(": ")
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Retryable reports whether redelivering the task can change the outcome.
// Not-found and decode failures are included: the task is requeued the same
// way as a network blip and only a delivery budget stops it.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrRecordNotFound):
		return false
	default:
		return true
	}
}
