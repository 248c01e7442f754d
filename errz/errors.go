// Package errz defines the structured errors returned by the unwind VM.
package errz

import (
	"fmt"
	"strings"
)

// SourceLocation identifies the instruction that raised an error, resolved
// against the code's filename and source text when those are known.
type SourceLocation struct {
	Filename string
	Line     int
	Column   int
	Source   string // text of Line, without its newline
}

func (s SourceLocation) String() string {
	pos := fmt.Sprintf("%d:%d", s.Line, s.Column)
	if s.Filename == "" {
		return pos
	}
	return s.Filename + ":" + pos
}

// IsZero returns true if the location has not been set.
func (s SourceLocation) IsZero() bool {
	return s.Line == 0 && s.Column == 0
}

// StackFrame is one active call, named by its function label.
type StackFrame struct {
	Function string
	Location SourceLocation
}

func (f StackFrame) String() string {
	name := f.Function
	if name == "" {
		name = "?"
	}
	return fmt.Sprintf("%-12s %s", name, f.Location)
}

// FormatStackTrace renders frames innermost first under a Traceback
// heading. An empty stack renders as "".
func FormatStackTrace(frames []StackFrame) string {
	if len(frames) == 0 {
		return ""
	}
	lines := make([]string, 0, len(frames)+1)
	lines = append(lines, "Traceback (innermost first):")
	for _, frame := range frames {
		lines = append(lines, "  "+frame.String())
	}
	return strings.Join(lines, "\n") + "\n"
}

// FriendlyError is implemented by errors that can render a multi-line
// report for people in addition to their one-line Error.
type FriendlyError interface {
	error
	FriendlyErrorMessage() string
}
