package optimization

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures raised by the solver core.
type ErrorKind int

const (
	// KindUnknown is used for errors that do not belong to the taxonomy below.
	KindUnknown ErrorKind = iota
	// KindInvalidProblem marks a malformed weight matrix or out-of-range endpoint.
	KindInvalidProblem
	// KindInvalidRouteOperation marks a rejected route mutation. The route is
	// left exactly as it was before the call.
	KindInvalidRouteOperation
	// KindInfeasible marks a stop that has no valid placement in a route.
	KindInfeasible
)

// String returns the name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindInvalidProblem:
		return "invalid problem"
	case KindInvalidRouteOperation:
		return "invalid route operation"
	case KindInfeasible:
		return "infeasible"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is checks against an *Error of the matching kind.
var (
	ErrInvalidProblem        = &Error{Kind: KindInvalidProblem, Message: "invalid problem"}
	ErrInvalidRouteOperation = &Error{Kind: KindInvalidRouteOperation, Message: "invalid route operation"}
	ErrInfeasible            = &Error{Kind: KindInfeasible, Message: "no feasible placement"}
)

// Error represents an optimization error with context
// that can be wrapped with additional information.
type Error struct {
	// Kind classifies the error.
	Kind ErrorKind
	// Message describes the error that occurred.
	Message string
	// Op is the operation that caused the error.
	Op string
	// Component is the component where the error occurred.
	Component string
	// Err is the underlying error that triggered this one, if any.
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var prefix string
	if e.Component != "" && e.Op != "" {
		prefix = fmt.Sprintf("%s: %s", e.Component, e.Op)
	} else if e.Component != "" {
		prefix = e.Component
	} else if e.Op != "" {
		prefix = e.Op
	}

	if e.Err != nil {
		if prefix != "" {
			return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	if prefix != "" {
		return fmt.Sprintf("%s: %s", prefix, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is an *Error of the same kind. This lets the
// package sentinels match any error of their kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.Kind != KindUnknown && e.Kind == t.Kind
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Op = op
	return e
}

// WithComponent adds component context to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// NewError creates a new error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
	}
}

// NewErrorf creates a new error of the given kind with a formatted message.
func NewErrorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError wraps an existing error with additional context.
// If err is nil, WrapError returns nil.
func WrapError(err error, message string) *Error {
	if err == nil {
		return nil
	}
	kind := KindUnknown
	if inner, ok := IsOptimizationError(err); ok {
		kind = inner.Kind
	}
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// WrapErrorf wraps an existing error with additional formatted context.
// If err is nil, WrapErrorf returns nil.
func WrapErrorf(err error, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return WrapError(err, fmt.Sprintf(format, args...))
}

// IsOptimizationError checks if an error is, or wraps, an *Error.
// If it is, it returns the outermost *Error and true.
func IsOptimizationError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// invalidProblem builds a KindInvalidProblem error tagged with the problem component.
func invalidProblem(op, format string, args ...interface{}) *Error {
	return NewErrorf(KindInvalidProblem, format, args...).WithComponent("problem").WithOperation(op)
}
