package util

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies failures so that the HTTP layer can pick a status and
// the services can decide whether a retry makes sense.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindForbidden       ErrorKind = "forbidden"
	KindNotFound        ErrorKind = "not_found"
	KindConflict        ErrorKind = "conflict"
	KindDisallowed      ErrorKind = "disallowed"
	KindConcurrencyLost ErrorKind = "concurrency_lost"
	KindStorage         ErrorKind = "storage"
)

// AppError carries a stable user-facing message plus the offending fields or
// the entity id. Err is the wrapped cause and is never shown to the caller.
type AppError struct {
	Kind     ErrorKind
	Message  string
	Fields   []string
	EntityID interface{}
	Err      error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another *AppError of the same kind, so sentinels below work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

var (
	ErrValidation       = &AppError{Kind: KindValidation}
	ErrUnauthorized     = &AppError{Kind: KindUnauthenticated}
	ErrPermissionDenied = &AppError{Kind: KindForbidden}
	ErrNotFound         = &AppError{Kind: KindNotFound}
	ErrConflict         = &AppError{Kind: KindConflict}
	ErrDisallowed       = &AppError{Kind: KindDisallowed}
	ErrConcurrencyLost  = &AppError{Kind: KindConcurrencyLost}
	ErrStorage          = &AppError{Kind: KindStorage}
)

var (
	ErrInvalidCredentials = &AppError{Kind: KindUnauthenticated, Message: "invalid credentials"}
	ErrInvalidPassphrase  = &AppError{Kind: KindValidation, Message: "invalid examiner passphrase"}
	ErrOutsideExamWindow  = &AppError{Kind: KindConflict, Message: "exam is not open for attempts at this time"}
	ErrDuplicateAttempt   = &AppError{Kind: KindConflict, Message: "an exam recording already exists for this exam and user"}
	ErrAlreadyEnded       = &AppError{Kind: KindConflict, Message: "exam recording has already ended"}
	ErrExamStarted        = &AppError{Kind: KindDisallowed, Message: "exam has already started"}
	ErrLoginCodeExhausted = &AppError{Kind: KindConflict, Message: "could not generate a unique login code"}
)

func NewValidationError(message string, fields ...string) error {
	return &AppError{Kind: KindValidation, Message: message, Fields: fields}
}

func NewMissingFieldsError(fields ...string) error {
	return &AppError{Kind: KindValidation, Message: fmt.Sprintf("missing required field(s): %v", fields), Fields: fields}
}

func NewForbiddenError(message string) error {
	return &AppError{Kind: KindForbidden, Message: message}
}

func NewNotFoundError(entity string, id interface{}) error {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", entity), EntityID: id}
}

func NewConflictError(message string, id interface{}) error {
	return &AppError{Kind: KindConflict, Message: message, EntityID: id}
}

func NewConcurrencyLostError(id interface{}) error {
	return &AppError{Kind: KindConcurrencyLost, Message: "exam recording was ended by another request", EntityID: id}
}

func NewStorageError(err error) error {
	return &AppError{Kind: KindStorage, Message: "storage error", Err: err}
}

// WithEntity returns a copy of a sentinel AppError pointing at a concrete entity.
func WithEntity(sentinel *AppError, id interface{}) error {
	e := *sentinel
	e.EntityID = id
	return &e
}

// KindOf returns the kind of err, treating unknown errors as storage failures.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindStorage
}

// IsRetryable reports whether err is a transient storage failure worth retrying locally.
// Deadlines and cancellations are surfaced, not masked.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	return KindOf(err) == KindStorage
}
