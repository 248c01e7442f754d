package compiler

import (
	"fmt"

	"github.com/risor-io/unwind/bytecode"
	"github.com/risor-io/unwind/op"
	"github.com/risor-io/unwind/region"
)

type loop struct {
	code  *Code
	head  int
	depth int

	// Positions of BREAK instructions whose target is patched when the loop
	// is closed.
	breakPos []int
}

func (l *loop) end() {
	code := l.code
	code.loops = code.loops[:len(code.loops)-1]
}

// Code is a unit of bytecode under construction: the main program or one
// function body. ToBytecode freezes it.
type Code struct {
	id           string
	name         string
	parent       *Code
	children     []*Code
	instructions []op.Code
	constants    []any
	source       string
	filename     string

	// Source map: one location per instruction word
	locations []bytecode.SourceLocation

	locals     map[string]uint16
	localNames []string

	exceptionHandlers []bytecode.ExceptionHandler

	// Used during compilation only. depth is the environment-stack length the
	// VM will have at the current position.
	loops []*loop
	depth int
}

func newCode(id, name, filename, source string) *Code {
	return &Code{
		id:       id,
		name:     name,
		filename: filename,
		source:   source,
		locals:   map[string]uint16{},
		depth:    region.BaseDepth,
	}
}

func (c *Code) ID() string {
	return c.id
}

func (c *Code) Name() string {
	return c.name
}

func (c *Code) Parent() *Code {
	return c.parent
}

func (c *Code) newChild(name string) *Code {
	child := newCode(fmt.Sprintf("%s.%d", c.id, len(c.children)), name, c.filename, c.source)
	child.parent = c
	c.children = append(c.children, child)
	return child
}

func (c *Code) InstructionCount() int {
	return len(c.instructions)
}

func (c *Code) Instruction(index int) op.Code {
	return c.instructions[index]
}

func (c *Code) ConstantsCount() int {
	return len(c.constants)
}

func (c *Code) Constant(index int) any {
	return c.constants[index]
}

func (c *Code) LocalsCount() int {
	return len(c.localNames)
}

// Depth returns the environment-stack length at the current position.
func (c *Code) Depth() int {
	return c.depth
}

// local returns the slot for name, allocating one on first use.
func (c *Code) local(name string) (uint16, error) {
	if idx, ok := c.locals[name]; ok {
		return idx, nil
	}
	if len(c.localNames) >= int(Placeholder) {
		return 0, fmt.Errorf("compile error: too many locals in %s", c.label())
	}
	idx := uint16(len(c.localNames))
	c.locals[name] = idx
	c.localNames = append(c.localNames, name)
	return idx, nil
}

func (c *Code) label() string {
	if c.name == "" {
		return "<main>"
	}
	return c.name
}

func (c *Code) currentLoop() *loop {
	if len(c.loops) == 0 {
		return nil
	}
	return c.loops[len(c.loops)-1]
}

// ExceptionHandlers returns the regions recorded so far.
func (c *Code) ExceptionHandlers() []bytecode.ExceptionHandler {
	return c.exceptionHandlers
}

// AddExceptionHandler records the layout of one protected region.
func (c *Code) AddExceptionHandler(handler bytecode.ExceptionHandler) {
	c.exceptionHandlers = append(c.exceptionHandlers, handler)
}

// ToBytecode returns the immutable form of this code.
func (c *Code) ToBytecode() *bytecode.Code {
	return bytecode.NewCode(bytecode.CodeParams{
		ID:                c.id,
		Name:              c.name,
		Instructions:      c.instructions,
		Constants:         c.constants,
		Source:            c.source,
		Filename:          c.filename,
		Locations:         c.locations,
		LocalCount:        len(c.localNames),
		LocalNames:        c.localNames,
		ExceptionHandlers: c.exceptionHandlers,
	})
}
