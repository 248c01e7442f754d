package errz

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind represents the category of an error.
type ErrorKind int

const (
	// ErrRuntime indicates a general runtime error, such as an invalid
	// operand type or a value stack overflow.
	ErrRuntime ErrorKind = iota
	// ErrUncaught indicates a thrown value that no handler caught.
	ErrUncaught
	// ErrContract indicates bytecode that breaks the compiler contract the
	// VM relies on, for example a region exit without a matching entry.
	ErrContract
	// ErrValidation indicates bytecode rejected before execution.
	ErrValidation
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrRuntime:
		return "runtime error"
	case ErrUncaught:
		return "uncaught exception"
	case ErrContract:
		return "contract violation"
	case ErrValidation:
		return "validation error"
	default:
		return "error"
	}
}

// StructuredError is a rich error type with source locations, visual snippets,
// and stack traces for actionable diagnostics.
type StructuredError struct {
	Message  string
	Kind     ErrorKind
	Location SourceLocation
	Stack    []StackFrame
	Cause    error

	// Value is the thrown payload of an ErrUncaught error.
	Value any
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.Location.IsZero() {
		return fmt.Sprintf("%s: %s", e.Kind.String(), e.Message)
	}
	return fmt.Sprintf("%s: %s (%d:%d)", e.Kind.String(), e.Message, e.Location.Line, e.Location.Column)
}

// Unwrap returns the underlying cause of the error.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// IsFatal returns whether the error is considered fatal (unrecoverable).
// Only an uncaught exception leaves the VM in a state where another run is
// meaningful.
func (e *StructuredError) IsFatal() bool {
	return e.Kind != ErrUncaught
}

// FriendlyErrorMessage renders the error with the offending source line,
// a caret under the column, and the traceback.
func (e *StructuredError) FriendlyErrorMessage() string {
	var msg bytes.Buffer
	msg.WriteString(e.Kind.String())
	msg.WriteString(": ")
	msg.WriteString(e.Message)
	msg.WriteString("\n")
	if !e.Location.IsZero() {
		fmt.Fprintf(&msg, "  --> %s\n", e.Location)
	}
	if e.Location.Source != "" {
		gutter := fmt.Sprintf("%d", e.Location.Line)
		fmt.Fprintf(&msg, "%s | %s\n", gutter, e.Location.Source)
		if e.Location.Column > 0 {
			blank := strings.Repeat(" ", len(gutter))
			fmt.Fprintf(&msg, "%s | %s^\n", blank, strings.Repeat(" ", e.Location.Column-1))
		}
	}
	if trace := FormatStackTrace(e.Stack); trace != "" {
		msg.WriteString("\n")
		msg.WriteString(trace)
	}
	return msg.String()
}

// NewStructuredError creates a new StructuredError with the given parameters.
func NewStructuredError(kind ErrorKind, message string, loc SourceLocation, stack []StackFrame) *StructuredError {
	return &StructuredError{
		Message:  message,
		Kind:     kind,
		Location: loc,
		Stack:    stack,
	}
}

// NewStructuredErrorf creates a new StructuredError with a formatted message.
func NewStructuredErrorf(kind ErrorKind, loc SourceLocation, stack []StackFrame, format string, args ...any) *StructuredError {
	return &StructuredError{
		Message:  fmt.Sprintf(format, args...),
		Kind:     kind,
		Location: loc,
		Stack:    stack,
	}
}

// NewUncaught reports a thrown value that reached the outermost frame.
func NewUncaught(value any, loc SourceLocation, stack []StackFrame) *StructuredError {
	return &StructuredError{
		Message:  fmt.Sprintf("%v", value),
		Kind:     ErrUncaught,
		Location: loc,
		Stack:    stack,
		Value:    value,
	}
}

// NewUncaughtError reports a structured error, typically a runtime error,
// that no handler caught. The original is kept as both Value and Cause.
func NewUncaughtError(err *StructuredError) *StructuredError {
	return &StructuredError{
		Message:  fmt.Sprintf("%s: %s", err.Kind, err.Message),
		Kind:     ErrUncaught,
		Location: err.Location,
		Stack:    err.Stack,
		Cause:    err,
		Value:    err,
	}
}

// WithCause wraps the error with a cause.
func (e *StructuredError) WithCause(cause error) *StructuredError {
	e.Cause = cause
	return e
}

// KindOf returns the kind of the first StructuredError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

// IsUncaught reports whether err is an uncaught exception and returns its
// payload.
func IsUncaught(err error) (any, bool) {
	var se *StructuredError
	if errors.As(err, &se) && se.Kind == ErrUncaught {
		return se.Value, true
	}
	return nil, false
}
