// Package errors carries service level errors: a contextual error type with
// a stack trace and the mapping of errors to HTTP status codes.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"runtime"
	"strings"

	"github.com/copyleftdev/tourney/internal/optimization"
)

// Service sentinels. Wrap them to pick the HTTP status of a response.
var (
	ErrNotFound    = stderrors.New("not found")
	ErrBadRequest  = stderrors.New("bad request")
	ErrConflict    = stderrors.New("conflict")
	ErrUnavailable = stderrors.New("unavailable")
	ErrRateLimited = stderrors.New("rate limited")
)

// Error represents an error with context and stack trace.
type Error struct {
	// The underlying error that was returned
	Err error
	// A human-readable message describing the error
	Message string
	// The operation that was being performed when the error occurred
	Operation string
	// The component or package where the error occurred
	Component string
	// The stack trace
	Stack []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var builder strings.Builder

	if e.Message != "" {
		builder.WriteString(e.Message)
	}

	if e.Operation != "" {
		if builder.Len() > 0 {
			builder.WriteString(": ")
		}
		builder.WriteString("operation=")
		builder.WriteString(e.Operation)
	}

	if e.Component != "" {
		if builder.Len() > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString("component=")
		builder.WriteString(e.Component)
	}

	if e.Err != nil {
		if builder.Len() > 0 {
			builder.WriteString(": ")
		}
		builder.WriteString(e.Err.Error())
	}

	return builder.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithOperation adds an operation to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Operation = op
	return e
}

// WithComponent adds a component to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// StackTrace returns the stack trace as a slice of strings.
func (e *Error) StackTrace() []string {
	return e.Stack
}

// New creates a new error with a message.
func New(msg string) *Error {
	return &Error{
		Message: msg,
		Stack:   getStackTrace(),
	}
}

// Wrap wraps err with a message. Wrapping an *Error keeps its stack. The
// original is never modified.
func Wrap(err error, msg string) *Error {
	if err == nil {
		return nil
	}
	e := &Error{Err: err, Message: msg}
	var inner *Error
	if stderrors.As(err, &inner) {
		e.Stack = inner.Stack
	} else {
		e.Stack = getStackTrace()
	}
	return e
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, format string, args ...interface{}) *Error {
	return Wrap(err, fmt.Sprintf(format, args...))
}

// getStackTrace returns the current stack trace as a slice of strings.
func getStackTrace() []string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:]) // Skip runtime.Callers, getStackTrace, and the constructor
	if n == 0 {
		return nil
	}

	frames := runtime.CallersFrames(pcs[:n])
	stack := make([]string, 0, n)

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") && !strings.Contains(frame.File, "internal/errors") {
			stack = append(stack, fmt.Sprintf("%s\n\t%s:%d", frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}

	return stack
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// StatusCode maps err to the HTTP status a handler should answer with.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case Is(err, ErrNotFound):
		return http.StatusNotFound
	case Is(err, ErrBadRequest), Is(err, optimization.ErrInvalidProblem):
		return http.StatusBadRequest
	case Is(err, ErrConflict):
		return http.StatusConflict
	case Is(err, optimization.ErrInfeasible):
		return http.StatusUnprocessableEntity
	case Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
