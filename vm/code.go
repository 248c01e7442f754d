package vm

import (
	"github.com/risor-io/unwind/bytecode"
	"github.com/risor-io/unwind/errz"
	"github.com/risor-io/unwind/op"
)

// code is a bytecode.Code unpacked into the flat slices the dispatch loop
// indexes directly.
type code struct {
	*bytecode.Code
	Instructions []op.Code
	Constants    []any
	Locations    []errz.SourceLocation
}

func wrapCode(bc *bytecode.Code) *code {
	c := &code{
		Code:         bc,
		Instructions: make([]op.Code, bc.InstructionCount()),
		Constants:    make([]any, bc.ConstantCount()),
		Locations:    make([]errz.SourceLocation, bc.LocationCount()),
	}
	for i := 0; i < bc.InstructionCount(); i++ {
		c.Instructions[i] = bc.InstructionAt(i)
	}
	for i := 0; i < bc.ConstantCount(); i++ {
		c.Constants[i] = bc.ConstantAt(i)
	}
	for i := 0; i < bc.LocationCount(); i++ {
		loc := bc.LocationAt(i)
		c.Locations[i] = errz.SourceLocation{
			Filename: bc.Filename(),
			Line:     loc.Line,
			Column:   loc.Column,
			Source:   bc.GetSourceLine(loc.Line),
		}
	}
	return c
}

// LocationAt returns the source location for the instruction at the given index.
func (c *code) LocationAt(ip int) errz.SourceLocation {
	if ip < 0 || ip >= len(c.Locations) {
		return errz.SourceLocation{}
	}
	return c.Locations[ip]
}

func (c *code) label() string {
	if name := c.Name(); name != "" {
		return name
	}
	return "<main>"
}
