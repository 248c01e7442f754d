package errz

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorKindString(t *testing.T) {
	require.Equal(t, "runtime error", ErrRuntime.String())
	require.Equal(t, "uncaught exception", ErrUncaught.String())
	require.Equal(t, "contract violation", ErrContract.String())
	require.Equal(t, "validation error", ErrValidation.String())
	require.Equal(t, "error", ErrorKind(99).String())
}

func TestStructuredErrorMessage(t *testing.T) {
	err := NewStructuredError(ErrRuntime, "bad operand", SourceLocation{}, nil)
	require.Equal(t, "runtime error: bad operand", err.Error())

	err = NewStructuredErrorf(ErrContract, SourceLocation{Line: 3, Column: 7}, nil, "exit at %d", 12)
	require.Equal(t, "contract violation: exit at 12 (3:7)", err.Error())
	require.True(t, err.IsFatal())
}

func TestFriendlyErrorMessage(t *testing.T) {
	loc := SourceLocation{Filename: "main.u", Line: 2, Column: 3, Source: "throw x"}
	stack := []StackFrame{
		{Function: "inner", Location: SourceLocation{Filename: "main.u", Line: 2, Column: 3}},
		{Location: SourceLocation{Line: 9, Column: 1}},
	}
	err := NewUncaught("boom", loc, stack)
	require.False(t, err.IsFatal())
	expected := "uncaught exception: boom\n" +
		"  --> main.u:2:3\n" +
		"2 | throw x\n" +
		"  |   ^\n" +
		"\n" +
		"Traceback (innermost first):\n" +
		"  inner        main.u:2:3\n" +
		"  ?            9:1\n"
	require.Equal(t, expected, err.FriendlyErrorMessage())
	var friendly FriendlyError = err
	require.NotEmpty(t, friendly.FriendlyErrorMessage())
}

func TestCauseAndKind(t *testing.T) {
	err := NewStructuredError(ErrRuntime, "cancelled", SourceLocation{}, nil).WithCause(context.Canceled)
	wrapped := fmt.Errorf("run: %w", err)
	require.True(t, errors.Is(wrapped, context.Canceled))

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	require.Equal(t, ErrRuntime, kind)

	_, ok = KindOf(errors.New("plain"))
	require.False(t, ok)
}

func TestIsUncaught(t *testing.T) {
	value, ok := IsUncaught(fmt.Errorf("x: %w", NewUncaught(int64(4), SourceLocation{}, nil)))
	require.True(t, ok)
	require.Equal(t, int64(4), value)

	_, ok = IsUncaught(NewStructuredError(ErrContract, "x", SourceLocation{}, nil))
	require.False(t, ok)
}

func TestFormatStackTraceEmpty(t *testing.T) {
	require.Equal(t, "", FormatStackTrace(nil))
}

func TestFriendlyErrorWithoutLocation(t *testing.T) {
	err := NewStructuredError(ErrRuntime, "execution cancelled", SourceLocation{}, nil)
	require.Equal(t, "runtime error: execution cancelled\n", err.FriendlyErrorMessage())
}

func TestNewUncaughtError(t *testing.T) {
	inner := NewStructuredError(ErrRuntime, "division by zero", SourceLocation{Line: 4, Column: 2}, nil)
	err := NewUncaughtError(inner)
	require.Equal(t, "uncaught exception: runtime error: division by zero (4:2)", err.Error())
	require.False(t, err.IsFatal())
	require.True(t, inner.IsFatal())

	value, ok := IsUncaught(err)
	require.True(t, ok)
	require.Same(t, inner, value)
	require.True(t, errors.Is(err, inner))
}
