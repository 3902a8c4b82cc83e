// Package apperr holds the error kinds the storefront reports to callers.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthenticationFailed
	KindNotFound
	KindInsufficientStock
	KindProcessor
	KindConfiguration
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthenticationFailed:
		return "authentication_failed"
	case KindNotFound:
		return "not_found"
	case KindInsufficientStock:
		return "insufficient_stock"
	case KindProcessor:
		return "processor"
	case KindConfiguration:
		return "configuration"
	default:
		return "internal"
	}
}

// Error carries a Kind and a message that is safe to show to API clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *Error {
	return newError(KindValidation, format, args...)
}

func AuthenticationFailed(format string, args ...interface{}) *Error {
	return newError(KindAuthenticationFailed, format, args...)
}

func NotFound(format string, args ...interface{}) *Error {
	return newError(KindNotFound, format, args...)
}

func InsufficientStock(product string) *Error {
	return newError(KindInsufficientStock, "insufficient stock for %s", product)
}

func Configuration(format string, args ...interface{}) *Error {
	return newError(KindConfiguration, format, args...)
}

// Processor wraps a payment processor failure, keeping the processor's
// message as the client-facing text.
func Processor(err error) *Error {
	return &Error{Kind: KindProcessor, Message: err.Error(), Err: err}
}

// Wrap attaches kind and message to err.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the client-facing message for err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}
