package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the failure classes a collection session can run into
type ErrorType string

const (
	ErrorTypeExtractionIncomplete ErrorType = "extraction_incomplete"
	ErrorTypeLayoutTimeout        ErrorType = "layout_timeout"
	ErrorTypeRateLimitExhausted   ErrorType = "rate_limit_exhausted"
	ErrorTypeChannelDisconnected  ErrorType = "channel_disconnected"
	ErrorTypeStoreIO              ErrorType = "store_io"
	ErrorTypeNotFound             ErrorType = "not_found"
	ErrorTypeInvalidInput         ErrorType = "invalid_input"
	ErrorTypeAlreadyRunning       ErrorType = "already_running"
	ErrorTypeNotLoggedIn          ErrorType = "not_logged_in"
)

// Error carries a failure class alongside the operation that produced it
type Error struct {
	Type    ErrorType
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Type)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match when target is an *Error of the same type.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type && t.Op == "" && t.Message == "" && t.Err == nil
}

// New creates a typed error
func New(t ErrorType, op, message string) *Error {
	return &Error{Type: t, Op: op, Message: message}
}

// Wrap creates a typed error around a cause
func Wrap(t ErrorType, op string, err error) *Error {
	return &Error{Type: t, Op: op, Err: err}
}

// Wrapf creates a typed error around a cause with a formatted message
func Wrapf(t ErrorType, op string, err error, format string, args ...interface{}) *Error {
	return &Error{Type: t, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// Sentinels usable with errors.Is
var (
	ErrExtractionIncomplete = &Error{Type: ErrorTypeExtractionIncomplete}
	ErrLayoutTimeout        = &Error{Type: ErrorTypeLayoutTimeout}
	ErrRateLimitExhausted   = &Error{Type: ErrorTypeRateLimitExhausted}
	ErrChannelDisconnected  = &Error{Type: ErrorTypeChannelDisconnected}
	ErrStoreIO              = &Error{Type: ErrorTypeStoreIO}
	ErrNotFound             = &Error{Type: ErrorTypeNotFound}
	ErrInvalidInput         = &Error{Type: ErrorTypeInvalidInput}
	ErrAlreadyRunning       = &Error{Type: ErrorTypeAlreadyRunning}
	ErrNotLoggedIn          = &Error{Type: ErrorTypeNotLoggedIn}
)

// TypeOf returns the type of the outermost *Error in the chain
func TypeOf(err error) (ErrorType, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Type, true
	}
	return "", false
}

// IsSoft reports whether err is absorbed locally by the collection loop
func IsSoft(err error) bool {
	t, ok := TypeOf(err)
	if !ok {
		return false
	}
	switch t {
	case ErrorTypeExtractionIncomplete, ErrorTypeLayoutTimeout:
		return true
	default:
		return false
	}
}

// IsSessionFatal reports whether err ends the current session but leaves the process alive
func IsSessionFatal(err error) bool {
	t, ok := TypeOf(err)
	if !ok {
		return false
	}
	switch t {
	case ErrorTypeRateLimitExhausted, ErrorTypeChannelDisconnected:
		return true
	default:
		return false
	}
}

// IsProcessFatal reports whether err must bring the process down
func IsProcessFatal(err error) bool {
	return errors.Is(err, ErrStoreIO)
}
