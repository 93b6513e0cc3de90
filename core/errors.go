package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return "validation failed"
	}
	return err.Err.Error()
}

// TransientError marks a store failure that may succeed when retried
// (serialization conflicts, busy/locked databases, dropped connections).
type TransientError struct {
	Err error
}

func NewTransientError(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func (err TransientError) Error() string {
	return "transient store error: " + err.Err.Error()
}

func (err TransientError) Unwrap() error { return err.Err }

// IsTransient reports whether err, or any error it wraps, is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
