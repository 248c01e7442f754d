// Package compiler emits unwind bytecode for structured statements.
//
// There is no parser. Callers describe a program as nested Blocks, and the
// Compiler lays out the instructions, resolves jump and region addresses, and
// tracks the environment-stack depth the VM will have at every position so
// that break and continue know how far to unwind.
//
// # Region Layout
//
// A try statement with both a catch and a finally compiles to:
//
//	PUSH_EXCEPT  catch finally
//	<try body>
//	POP_EXCEPT
//	JUMP_FORWARD finally
//	catch:                 the payload is on the stack
//	STORE_FAST   var       (or POP_TOP)
//	<catch body>
//	POP_EXCEPT
//	finally:
//	<finally body>
//	END_FINALLY
//
// Without a finally, the jump after the try body skips the catch. Without a
// catch, the try body falls straight into the finally.
//
// # Loop Layout
//
//	head:
//	<condition>
//	POP_JUMP_FORWARD_IF_FALSE end
//	ENTER_BLOCK
//	<body>
//	EXIT_BLOCK
//	JUMP_BACKWARD head
//	end:
//
// BREAK and CONTINUE carry their absolute target and the environment depth
// at the loop head, which is the same at end.
package compiler

import (
	"fmt"
	"math"

	"github.com/risor-io/unwind/bytecode"
	"github.com/risor-io/unwind/op"
	"github.com/risor-io/unwind/region"
)

const (
	// MaxArgs is the maximum number of arguments a function can have.
	MaxArgs = 255

	// Placeholder is a temporary value written during compilation, which is
	// always replaced before compilation is complete.
	Placeholder = uint16(math.MaxUint16)
)

// Block emits the instructions for one statement or expression.
type Block func(c *Compiler) error

// Catch is the catch clause of a try statement. When Var is empty the
// payload is discarded.
type Catch struct {
	Var  string
	Body Block
}

// Config holds compiler configuration options.
type Config struct {
	// Name of the main code unit. Empty means the main program.
	Name string

	// Filename is the source filename, used for error messages.
	Filename string

	// Source is the original source text, if there is one.
	Source string
}

// Compiler lays out bytecode for structured statements.
type Compiler struct {
	// The entrypoint code we are compiling. This remains fixed throughout
	// the compilation process.
	main *Code

	// The current code we are compiling into. This changes as we enter
	// and leave functions.
	current *Code

	// Location attached to emitted instructions
	location bytecode.SourceLocation
}

// Compile compiles body as a main program and returns immutable bytecode.
// Pass nil for cfg to use default settings.
func Compile(body Block, cfg *Config) (*bytecode.Code, error) {
	return New(cfg).Compile(body)
}

// New creates and returns a new Compiler. Pass nil for cfg to use defaults.
func New(cfg *Config) *Compiler {
	if cfg == nil {
		cfg = &Config{}
	}
	id := "__main__"
	if cfg.Name != "" {
		id = cfg.Name
	}
	main := newCode(id, cfg.Name, cfg.Filename, cfg.Source)
	return &Compiler{main: main, current: main}
}

// Code returns the code under construction for the entrypoint.
func (c *Compiler) Code() *Code {
	return c.main
}

// Compile emits body into the main code, terminates it with an implicit
// "return nil" and freezes the result.
func (c *Compiler) Compile(body Block) (*bytecode.Code, error) {
	if err := c.finish(c.main, body); err != nil {
		return nil, err
	}
	return c.main.ToBytecode(), nil
}

func (c *Compiler) finish(code *Code, body Block) error {
	if body != nil {
		if err := body(c); err != nil {
			return err
		}
	}
	c.emit(op.Nil)
	c.emit(op.ReturnValue)
	if len(code.loops) != 0 || code.depth != region.BaseDepth {
		return fmt.Errorf("compile error: unbalanced blocks in %s", code.label())
	}
	if len(code.instructions) > bytecode.MaxAddress {
		return fmt.Errorf("compile error: %s is too large", code.label())
	}
	return nil
}

// At sets the source location recorded for subsequently emitted
// instructions.
func (c *Compiler) At(line, column int) *Compiler {
	c.location = bytecode.SourceLocation{Line: line, Column: column}
	return c
}

// Seq runs blocks in order, stopping at the first error.
func (c *Compiler) Seq(blocks ...Block) error {
	for _, b := range blocks {
		if b == nil {
			continue
		}
		if err := b(c); err != nil {
			return err
		}
	}
	return nil
}

// LoadConst pushes a constant. Go ints are stored as int64.
func (c *Compiler) LoadConst(value any) error {
	switch v := value.(type) {
	case nil:
		c.emit(op.Nil)
		return nil
	case bool:
		if v {
			c.emit(op.True)
		} else {
			c.emit(op.False)
		}
		return nil
	case int:
		value = int64(v)
	case int64, float64, string, *bytecode.Function:
	default:
		return fmt.Errorf("compile error: unsupported constant type %T", value)
	}
	idx, err := c.constant(value)
	if err != nil {
		return err
	}
	c.emit(op.LoadConst, idx)
	return nil
}

// Load pushes the value of a local variable.
func (c *Compiler) Load(name string) error {
	idx, ok := c.current.locals[name]
	if !ok {
		return fmt.Errorf("compile error: undefined variable %q", name)
	}
	c.emit(op.LoadFast, idx)
	return nil
}

// Store pops the top of the stack into a local, defining it if needed.
func (c *Compiler) Store(name string) error {
	idx, err := c.current.local(name)
	if err != nil {
		return err
	}
	c.emit(op.StoreFast, idx)
	return nil
}

// Binary pops two operands and pushes the result of opType.
func (c *Compiler) Binary(opType op.BinaryOpType) {
	c.emit(op.BinaryOp, uint16(opType))
}

// Compare pops two operands and pushes the comparison result.
func (c *Compiler) Compare(opType op.CompareOpType) {
	c.emit(op.CompareOp, uint16(opType))
}

// Pop discards the top of the stack.
func (c *Compiler) Pop() {
	c.emit(op.PopTop)
}

// Emit pops the top of the stack into the VM's output.
func (c *Compiler) Emit() {
	c.emit(op.Emit)
}

// Scope runs body inside a fresh scope record.
func (c *Compiler) Scope(body Block) error {
	c.emit(op.PushScope)
	if err := c.Seq(body); err != nil {
		return err
	}
	c.emit(op.PopScope)
	return nil
}

// If compiles a conditional statement. els may be nil.
func (c *Compiler) If(cond, then, els Block) error {
	if err := c.Seq(cond); err != nil {
		return err
	}
	jumpIfFalsePos := c.emit(op.PopJumpForwardIfFalse, Placeholder)
	if err := c.Seq(then); err != nil {
		return err
	}
	if els == nil {
		return c.patchJump(jumpIfFalsePos)
	}
	jumpForwardPos := c.emit(op.JumpForward, Placeholder)
	if err := c.patchJump(jumpIfFalsePos); err != nil {
		return err
	}
	if err := c.Seq(els); err != nil {
		return err
	}
	return c.patchJump(jumpForwardPos)
}

// While compiles a loop that runs body while cond is true. A nil cond loops
// until a break, return or throw leaves it.
func (c *Compiler) While(cond, body Block) error {
	code := c.current
	head := c.position()
	exitPos := -1
	if cond != nil {
		if err := cond(c); err != nil {
			return err
		}
		exitPos = c.emit(op.PopJumpForwardIfFalse, Placeholder)
	}

	l := &loop{code: code, head: head, depth: code.depth}
	code.loops = append(code.loops, l)
	defer l.end()

	c.emit(op.EnterBlock)
	code.depth++
	if err := c.Seq(body); err != nil {
		return err
	}
	c.emit(op.ExitBlock)
	code.depth--

	jumpPos := c.position()
	if jumpPos-head > int(Placeholder) {
		return fmt.Errorf("compile error: loop body is too large")
	}
	c.emit(op.JumpBackward, uint16(jumpPos-head))

	if exitPos >= 0 {
		if err := c.patchJump(exitPos); err != nil {
			return err
		}
	}
	hi, lo := bytecode.AddressOf(c.position()).Encode()
	for _, pos := range l.breakPos {
		c.changeOperands(pos, uint16(hi), uint16(lo))
	}
	return nil
}

// Break leaves the innermost loop.
func (c *Compiler) Break() error {
	l := c.current.currentLoop()
	if l == nil {
		return fmt.Errorf("compile error: break outside of loop")
	}
	pos := c.emit(op.Break, Placeholder, Placeholder, uint16(l.depth))
	l.breakPos = append(l.breakPos, pos)
	return nil
}

// Continue jumps to the head of the innermost loop.
func (c *Compiler) Continue() error {
	l := c.current.currentLoop()
	if l == nil {
		return fmt.Errorf("compile error: continue outside of loop")
	}
	hi, lo := bytecode.AddressOf(l.head).Encode()
	c.emit(op.Continue, uint16(hi), uint16(lo), uint16(l.depth))
	return nil
}

// Return returns the value produced by value, or nil when value is nil.
func (c *Compiler) Return(value Block) error {
	if value == nil {
		c.emit(op.Nil)
	} else if err := value(c); err != nil {
		return err
	}
	c.emit(op.ReturnValue)
	return nil
}

// Throw throws the value produced by value.
func (c *Compiler) Throw(value Block) error {
	if err := c.Seq(value); err != nil {
		return err
	}
	c.emit(op.Throw)
	return nil
}

// Try compiles a protected region. At least one of catch and finally must
// be given.
func (c *Compiler) Try(body Block, catch *Catch, finally Block) error {
	if catch == nil && finally == nil {
		return fmt.Errorf("compile error: try requires a catch or a finally")
	}
	code := c.current
	base := code.depth
	inRegion := base + 1
	if finally != nil {
		inRegion = base + 2
	}

	// Emit PushExcept with placeholders for the catch and finally addresses
	tryStart := c.emit(op.PushExcept, Placeholder, Placeholder, Placeholder, Placeholder)
	code.depth = inRegion
	if err := c.Seq(body); err != nil {
		return err
	}
	tryEnd := c.emit(op.PopExcept)

	jumpAfterTryPos := -1
	if catch != nil {
		jumpAfterTryPos = c.emit(op.JumpForward, Placeholder)
	}

	catchAddr := bytecode.NoAddress
	if catch != nil {
		catchAddr = bytecode.AddressOf(c.position())
		code.depth = inRegion
		if catch.Var != "" {
			if err := c.Store(catch.Var); err != nil {
				return err
			}
		} else {
			c.emit(op.PopTop)
		}
		if err := c.Seq(catch.Body); err != nil {
			return err
		}
		c.emit(op.PopExcept)
	}

	finallyAddr := bytecode.NoAddress
	if finally != nil {
		finallyAddr = bytecode.AddressOf(c.position())
		code.depth = base + 1
		if err := finally(c); err != nil {
			return err
		}
		c.emit(op.EndFinally)
	}
	code.depth = base
	end := c.position()

	catchHi, catchLo := catchAddr.Encode()
	finallyHi, finallyLo := finallyAddr.Encode()
	c.changeOperands(tryStart, uint16(catchHi), uint16(catchLo), uint16(finallyHi), uint16(finallyLo))

	if jumpAfterTryPos >= 0 {
		target := end
		if finally != nil {
			target = finallyAddr.Offset()
		}
		delta := target - jumpAfterTryPos
		if delta > int(Placeholder) {
			return fmt.Errorf("compile error: try block too large")
		}
		c.changeOperands(jumpAfterTryPos, uint16(delta))
	}

	code.AddExceptionHandler(bytecode.ExceptionHandler{
		TryStart: tryStart,
		TryEnd:   tryEnd,
		Catch:    catchAddr,
		Finally:  finallyAddr,
		End:      end,
	})
	return nil
}

// Function compiles body as a function and pushes it.
func (c *Compiler) Function(name string, params []string, body Block) error {
	if len(params) > MaxArgs {
		return fmt.Errorf("compile error: function %q has too many parameters", name)
	}
	parent := c.current
	child := parent.newChild(name)
	for _, p := range params {
		if _, err := child.local(p); err != nil {
			return err
		}
	}
	c.current = child
	err := c.finish(child, body)
	c.current = parent
	if err != nil {
		return err
	}
	fn := bytecode.NewFunction(bytecode.FunctionParams{
		ID:         child.id,
		Name:       name,
		Parameters: params,
		Code:       child.ToBytecode(),
	})
	return c.LoadConst(fn)
}

// Call calls the value produced by fn with the values produced by args.
func (c *Compiler) Call(fn Block, args ...Block) error {
	if len(args) > MaxArgs {
		return fmt.Errorf("compile error: too many arguments")
	}
	if err := c.Seq(fn); err != nil {
		return err
	}
	if err := c.Seq(args...); err != nil {
		return err
	}
	c.emit(op.Call, uint16(len(args)))
	return nil
}

func (c *Compiler) position() int {
	return len(c.current.instructions)
}

func (c *Compiler) constant(value any) (uint16, error) {
	code := c.current
	if len(code.constants) >= int(Placeholder) {
		return 0, fmt.Errorf("compile error: too many constants in %s", code.label())
	}
	code.constants = append(code.constants, value)
	return uint16(len(code.constants) - 1), nil
}

func (c *Compiler) emit(opcode op.Code, operands ...uint16) int {
	code := c.current
	pos := len(code.instructions)
	code.instructions = append(code.instructions, opcode)
	for _, operand := range operands {
		code.instructions = append(code.instructions, op.Code(operand))
	}
	for i := 0; i <= len(operands); i++ {
		code.locations = append(code.locations, c.location)
	}
	return pos
}

// patchJump points the forward jump at pos to the current position.
func (c *Compiler) patchJump(pos int) error {
	delta, err := c.calculateDelta(pos)
	if err != nil {
		return err
	}
	c.changeOperands(pos, delta)
	return nil
}

func (c *Compiler) calculateDelta(pos int) (uint16, error) {
	instrCount := len(c.current.instructions)
	delta := instrCount - pos
	if delta > math.MaxUint16 {
		return 0, fmt.Errorf("compile error: jump destination is too far away")
	}
	return uint16(delta), nil
}

func (c *Compiler) changeOperands(instructionIndex int, operands ...uint16) {
	for i, operand := range operands {
		c.current.instructions[instructionIndex+1+i] = op.Code(operand)
	}
}
