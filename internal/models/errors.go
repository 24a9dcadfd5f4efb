package models

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrValidation       = errors.New("validation failed")
	ErrConflict         = errors.New("conflict")
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Error is a domain error with a message that is safe to show to API callers.
// It unwraps to one of the sentinel kinds above.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func NotFound(msg string) error   { return &Error{Kind: ErrNotFound, Message: msg} }
func Forbidden(msg string) error  { return &Error{Kind: ErrForbidden, Message: msg} }
func Invalid(msg string) error    { return &Error{Kind: ErrValidation, Message: msg} }
func Conflict(msg string) error   { return &Error{Kind: ErrConflict, Message: msg} }
func Unauthorized(msg string) error {
	return &Error{Kind: ErrUnauthorized, Message: msg}
}
