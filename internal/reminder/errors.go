package reminder

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrValidation    = errors.New("validation")
	ErrAuthorization = errors.New("authorization")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrPersistence   = errors.New("persistence")
)

// Error is a lifecycle failure the caller can act on. Code is stable and
// machine-readable; Message is for people.
type Error struct {
	Kind    error
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

func validation(code, msg string) *Error {
	return &Error{Kind: ErrValidation, Code: code, Message: msg}
}

func forbidden(msg string) *Error {
	return &Error{Kind: ErrAuthorization, Code: "forbidden", Message: msg}
}

func notFound() *Error {
	return &Error{Kind: ErrNotFound, Code: "not_found", Message: "reminder not found"}
}

func conflict(msg string) *Error {
	return &Error{Kind: ErrConflict, Code: "not_pending", Message: msg}
}

func persistence(op string, err error) *Error {
	return &Error{Kind: ErrPersistence, Code: "internal", Message: op, Err: err}
}
