package bytecode

import "fmt"

// SourceLocation is the line and column an instruction was compiled from.
// The filename and source text live on the Code, not on every location.
type SourceLocation struct {
	Line   int
	Column int
}

func (s SourceLocation) String() string {
	return fmt.Sprintf("%d:%d", s.Line, s.Column)
}

// IsZero reports whether no position was recorded.
func (s SourceLocation) IsZero() bool {
	return s == SourceLocation{}
}
