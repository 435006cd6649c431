// Package errors provides the error taxonomy for the SBRGA painting engine.
package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// Kind classifies an error so callers can react without string matching.
type Kind string

const (
	// KindUnknown is the zero Kind.
	KindUnknown Kind = ""
	// KindInputMismatch marks guidance fields whose dimensions disagree.
	KindInputMismatch Kind = "input_mismatch"
	// KindDegenerateSampling marks a distribution that cannot be sampled,
	// such as an all-zero importance field.
	KindDegenerateSampling Kind = "degenerate_sampling"
	// KindNumericInstability marks NaN or infinite scores.
	KindNumericInstability Kind = "numeric_instability"
	// KindRendererFailure marks failures from the render or save collaborators.
	KindRendererFailure Kind = "renderer_failure"
	// KindInvalidConfig marks out-of-range run parameters.
	KindInvalidConfig Kind = "invalid_config"
)

// Sentinels for use with errors.Is. They match any *Error of the same Kind.
var (
	ErrInputMismatch      = &Error{Kind: KindInputMismatch}
	ErrDegenerateSampling = &Error{Kind: KindDegenerateSampling}
	ErrNumericInstability = &Error{Kind: KindNumericInstability}
	ErrRendererFailure    = &Error{Kind: KindRendererFailure}
	ErrInvalidConfig      = &Error{Kind: KindInvalidConfig}
)

// Error represents an error with context and stack trace.
type Error struct {
	// Kind classifies the failure
	Kind Kind
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

	if e.Kind != KindUnknown {
		builder.WriteString(string(e.Kind))
	}

	if e.Message != "" {
		if builder.Len() > 0 {
			builder.WriteString(": ")
		}
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

// Is reports whether target is a Kind-only sentinel of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Kind == KindUnknown {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// WithMessage adds a message to the error.
func (e *Error) WithMessage(msg string) *Error {
	e.Message = msg
	return e
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

// New creates a new error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{
		Kind:    kind,
		Message: msg,
		Stack:   getStackTrace(),
	}
}

// Errorf creates a new error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Stack:   getStackTrace(),
	}
}

// Wrap wraps err as the given kind. It returns nil if err is nil.
func Wrap(err error, kind Kind, msg string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    kind,
		Err:     err,
		Message: msg,
		Stack:   getStackTrace(),
	}
}

// Wrapf wraps err as the given kind with a formatted message.
func Wrapf(err error, kind Kind, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:    kind,
		Err:     err,
		Message: fmt.Sprintf(format, args...),
		Stack:   getStackTrace(),
	}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
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

// Unwrap returns the result of calling the Unwrap method on err, if err's
// type contains an Unwrap method returning error.
// Otherwise, Unwrap returns nil.
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}
