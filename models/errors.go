package models

import "errors"

// ErrorKind classifies failures surfaced by the services.
type ErrorKind string

const (
	KindNotFound     ErrorKind = "not_found"
	KindForbidden    ErrorKind = "forbidden"
	KindConflict     ErrorKind = "conflict"
	KindInvalidInput ErrorKind = "invalid_input"
	KindUnavailable  ErrorKind = "unavailable"
	KindInternal     ErrorKind = "internal"
)

// Sentinel errors returned by the store backends.
var (
	ErrNotFound            = errors.New("record not found")
	ErrPendingSignalExists = errors.New("a pending signal already exists for this pair")
	ErrChatExists          = errors.New("an active chat already exists for this pair")
	ErrSignalNotPending    = errors.New("signal is no longer pending")
	ErrDuplicateKey        = errors.New("duplicate key")
)

// AppError is a business-level failure with a message stable enough to show to users.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newAppError(kind ErrorKind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) *AppError {
	return newAppError(KindNotFound, message, nil)
}

func Forbidden(message string) *AppError {
	return newAppError(KindForbidden, message, nil)
}

func Conflict(message string, err error) *AppError {
	return newAppError(KindConflict, message, err)
}

func InvalidInput(message string) *AppError {
	return newAppError(KindInvalidInput, message, nil)
}

// KindOf reports the kind of err. Store sentinels map to their natural kind;
// anything unrecognised is internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrPendingSignalExists),
		errors.Is(err, ErrChatExists),
		errors.Is(err, ErrSignalNotPending),
		errors.Is(err, ErrDuplicateKey):
		return KindConflict
	}
	return KindInternal
}

// PublicMessage returns the message that is safe to render to a caller.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != KindInternal {
		return appErr.Message
	}
	return "something went wrong, please try again"
}
