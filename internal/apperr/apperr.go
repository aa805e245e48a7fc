// Package apperr defines the error kinds shared by the donation and reward
// services and their mapping to HTTP status codes.
//
// Services return errors that match one of the sentinels below via
// errors.Is. Anything that matches none of them is treated as an
// infrastructure failure and reported to callers without detail.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound: the referenced record is absent or no longer in the
	// state the operation needs (expired, already taken).
	ErrNotFound = errors.New("not found")

	// ErrValidation: malformed input or an unknown reference.
	ErrValidation = errors.New("validation failed")

	// ErrConflict: the record exists but is in the wrong state for the
	// requested transition.
	ErrConflict = errors.New("conflict")

	// ErrInsufficientBalance: a points debit would take a balance below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInfrastructure: the backing store failed.
	ErrInfrastructure = errors.New("infrastructure failure")
)

// Error is a business error carrying a caller-facing message.
type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }

func newf(kind error, format string, args ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// NotFoundf returns an error matching ErrNotFound.
func NotFoundf(format string, args ...any) error { return newf(ErrNotFound, format, args...) }

// Validationf returns an error matching ErrValidation.
func Validationf(format string, args ...any) error { return newf(ErrValidation, format, args...) }

// Conflictf returns an error matching ErrConflict.
func Conflictf(format string, args ...any) error { return newf(ErrConflict, format, args...) }

// InsufficientBalanceError reports a points shortfall.
type InsufficientBalanceError struct {
	Required  int
	Available int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient points: required %d, have %d", e.Required, e.Available)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

type infraError struct {
	op  string
	err error
}

func (e *infraError) Error() string { return e.op + ": " + e.err.Error() }

func (e *infraError) Unwrap() []error { return []error{ErrInfrastructure, e.err} }

// Infrastructure wraps a store failure. Business errors pass through
// unchanged so a service can wrap every error coming out of a transaction.
func Infrastructure(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsBusiness(err) {
		return err
	}
	return &infraError{op: op, err: err}
}

// IsBusiness reports whether err is one of the caller-facing kinds.
func IsBusiness(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInsufficientBalance)
}

// HTTPStatus maps an error to the status code the API returns for it.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
