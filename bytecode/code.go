package bytecode

import (
	"strings"

	"github.com/risor-io/unwind/op"
)

// Code represents a compiled code block (module or function body).
// It is immutable after creation and safe for concurrent use.
type Code struct {
	id   string
	name string

	instructions []op.Code
	constants    []any
	source       string
	filename     string

	// Source map: one location per instruction for error reporting
	locations []SourceLocation

	localCount int
	localNames []string

	// Protected regions, in the order their PUSH_EXCEPT was emitted
	exceptionHandlers []ExceptionHandler
}

// CodeParams contains parameters for creating a new Code.
type CodeParams struct {
	ID                string
	Name              string
	Instructions      []op.Code
	Constants         []any
	Source            string
	Filename          string
	Locations         []SourceLocation
	LocalCount        int
	LocalNames        []string
	ExceptionHandlers []ExceptionHandler
}

// NewCode creates a new immutable Code from the given parameters.
// Input slices are copied to ensure immutability.
func NewCode(params CodeParams) *Code {
	return &Code{
		id:                params.ID,
		name:              params.Name,
		instructions:      clone(params.Instructions),
		constants:         clone(params.Constants),
		source:            params.Source,
		filename:          params.Filename,
		locations:         clone(params.Locations),
		localCount:        params.LocalCount,
		localNames:        clone(params.LocalNames),
		exceptionHandlers: clone(params.ExceptionHandlers),
	}
}

// ID returns the unique identifier for this code block.
func (c *Code) ID() string {
	return c.id
}

// Name returns the name of this code block.
func (c *Code) Name() string {
	return c.name
}

// InstructionCount returns the number of instructions.
func (c *Code) InstructionCount() int {
	return len(c.instructions)
}

// InstructionAt returns the instruction at the given index.
func (c *Code) InstructionAt(index int) op.Code {
	return c.instructions[index]
}

// ConstantCount returns the number of constants.
func (c *Code) ConstantCount() int {
	return len(c.constants)
}

// ConstantAt returns the constant at the given index.
func (c *Code) ConstantAt(index int) any {
	return c.constants[index]
}

// Source returns the source code for this block.
func (c *Code) Source() string {
	return c.source
}

// Filename returns the source filename.
func (c *Code) Filename() string {
	return c.filename
}

// LocalCount returns the number of local variables.
func (c *Code) LocalCount() int {
	return c.localCount
}

// LocalNameCount returns the number of local variable names.
func (c *Code) LocalNameCount() int {
	return len(c.localNames)
}

// LocalNameAt returns the local variable name at the given index.
// Returns an empty string if the index is out of range.
func (c *Code) LocalNameAt(index int) string {
	if index < 0 || index >= len(c.localNames) {
		return ""
	}
	return c.localNames[index]
}

// LocationAt returns the source location for the instruction at the given index.
func (c *Code) LocationAt(ip int) SourceLocation {
	if ip < 0 || ip >= len(c.locations) {
		return SourceLocation{}
	}
	return c.locations[ip]
}

// LocationCount returns the number of recorded source locations.
func (c *Code) LocationCount() int {
	return len(c.locations)
}

// ExceptionHandlerCount returns the number of exception handlers.
func (c *Code) ExceptionHandlerCount() int {
	return len(c.exceptionHandlers)
}

// ExceptionHandlerAt returns the exception handler at the given index.
func (c *Code) ExceptionHandlerAt(index int) ExceptionHandler {
	return c.exceptionHandlers[index]
}

// Functions returns the function constants of this code, in constant order.
func (c *Code) Functions() []*Function {
	var fns []*Function
	for _, constant := range c.constants {
		if fn, ok := constant.(*Function); ok {
			fns = append(fns, fn)
		}
	}
	return fns
}

// Flatten returns this code and the code of every function reachable through
// its constants, depth first, each code appearing once.
func (c *Code) Flatten() []*Code {
	seen := map[*Code]bool{}
	var codes []*Code
	var walk func(*Code)
	walk = func(code *Code) {
		if code == nil || seen[code] {
			return
		}
		seen[code] = true
		codes = append(codes, code)
		for _, fn := range code.Functions() {
			walk(fn.Code())
		}
	}
	walk(c)
	return codes
}

// GetSourceLine returns the source code line at the given 1-based line number.
func (c *Code) GetSourceLine(lineNum int) string {
	if lineNum < 1 || c.source == "" {
		return ""
	}
	lines := strings.Split(c.source, "\n")
	if lineNum > len(lines) {
		return ""
	}
	return lines[lineNum-1]
}

// Stats returns statistics about this code block.
func (c *Code) Stats() Stats {
	return Stats{
		InstructionCount: c.InstructionCount(),
		ConstantCount:    c.ConstantCount(),
		FunctionCount:    len(c.Functions()),
		RegionCount:      c.ExceptionHandlerCount(),
		SourceBytes:      len(c.source),
	}
}
