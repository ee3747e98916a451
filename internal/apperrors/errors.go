package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can branch without matching strings
type Kind string

const (
	KindUnknown          Kind = "UNKNOWN"
	KindNotAuthenticated Kind = "NOT_AUTHENTICATED"
	KindPermissionDenied Kind = "PERMISSION_DENIED"
	KindUploadFailed     Kind = "UPLOAD_FAILED"
	KindWriteFailed      Kind = "WRITE_FAILED"
	KindReadFailed       Kind = "READ_FAILED"
	KindNotFound         Kind = "NOT_FOUND"
	KindInvalidArgument  Kind = "INVALID_ARGUMENT"
)

// Error is the error type returned by the chat core
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so sentinel values work with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Sentinels for errors.Is
var (
	ErrNotAuthenticated = &Error{Kind: KindNotAuthenticated}
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	ErrUploadFailed     = &Error{Kind: KindUploadFailed}
	ErrWriteFailed      = &Error{Kind: KindWriteFailed}
	ErrReadFailed       = &Error{Kind: KindReadFailed}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrInvalidArgument  = &Error{Kind: KindInvalidArgument}
)

// New creates an error of the given kind
func New(kind Kind, op, message string) error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap attaches a kind to a lower level error. A nil cause yields nil.
func Wrap(kind Kind, op string, cause error) error {
	if cause == nil {
		return nil
	}
	var ae *Error
	if errors.As(cause, &ae) {
		// already classified
		return cause
	}
	return &Error{Kind: kind, Op: op, Err: cause}
}

func NotAuthenticated(op string) error {
	return New(KindNotAuthenticated, op, "no current user")
}

func PermissionDenied(op, message string) error {
	return New(KindPermissionDenied, op, message)
}

func NotFound(op, message string) error {
	return New(KindNotFound, op, message)
}

func InvalidArgument(op, message string) error {
	return New(KindInvalidArgument, op, message)
}

func UploadFailed(op string, cause error) error {
	return &Error{Kind: KindUploadFailed, Op: op, Err: cause}
}

func WriteFailed(op string, cause error) error {
	return Wrap(KindWriteFailed, op, cause)
}

// ReadFailed classifies a store query that did not complete
func ReadFailed(op string, cause error) error {
	return Wrap(KindReadFailed, op, cause)
}

// KindOf returns the kind of err, or KindUnknown if it was never classified
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}
