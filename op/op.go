// Package op defines opcodes used by the unwind compiler and virtual machine.
package op

// Code is an integer opcode that indicates an operation to execute.
type Code uint16

const (
	Invalid Code = 0

	// Execution
	Nop         Code = 1
	Halt        Code = 2
	Call        Code = 3
	ReturnValue Code = 4

	// Jump
	JumpBackward          Code = 10
	JumpForward           Code = 11
	PopJumpForwardIfFalse Code = 12
	PopJumpForwardIfTrue  Code = 13

	// Load
	LoadFast  Code = 21
	LoadConst Code = 24

	// Store
	StoreFast Code = 31

	// Operations
	BinaryOp  Code = 40
	CompareOp Code = 41

	// Stack
	Copy   Code = 71
	PopTop Code = 72

	// Push constants
	Nil   Code = 80
	False Code = 81
	True  Code = 82

	// Scopes
	PushScope  Code = 100 // Push a scope record onto the frame's live scope list
	PopScope   Code = 101 // Discard the innermost scope record
	EnterBlock Code = 102 // Push a plain marker on the environment stack (loop bodies)
	ExitBlock  Code = 103 // Pop a plain marker, discarding the scopes it counted

	// Output
	Emit Code = 110 // Pop TOS and append it to the VM's emitted values

	// Protected regions. Addresses are absolute and span two operands
	// (high, low); 0xFFFF 0xFFFF means "not present".
	PushExcept Code = 140 // Enter region: catch(hi, lo), finally(hi, lo)
	PopExcept  Code = 141 // Exit region (normal completion of try or catch body)
	Throw      Code = 142 // Throw TOS as exception
	EndFinally Code = 143 // End of finally body: resume deferred completion if any
	Break      Code = 144 // Break: target(hi, lo), environment depth at target
	Continue   Code = 145 // Continue: target(hi, lo), environment depth at target
)

// BinaryOpType describes a type of binary operation, as in an operation that
// takes two operands. For example, addition, subtraction, multiplication, etc.
type BinaryOpType uint16

const (
	Add      BinaryOpType = 1
	Subtract BinaryOpType = 2
	Multiply BinaryOpType = 3
	Divide   BinaryOpType = 4
	Modulo   BinaryOpType = 5
)

// String returns a string representation of the binary operation.
// For example "+" for addition.
func (bop BinaryOpType) String() string {
	switch bop {
	case Add:
		return "+"
	case Subtract:
		return "-"
	case Multiply:
		return "*"
	case Divide:
		return "/"
	case Modulo:
		return "%"
	default:
		return ""
	}
}

// CompareOpType describes a type of comparison operation. For example, less
// than, greater than, equal, etc.
type CompareOpType uint16

const (
	LessThan           CompareOpType = 1
	LessThanOrEqual    CompareOpType = 2
	Equal              CompareOpType = 3
	NotEqual           CompareOpType = 4
	GreaterThan        CompareOpType = 5
	GreaterThanOrEqual CompareOpType = 6
)

// String returns a string representation of the comparison operation.
// For example "<" for less than.
func (cop CompareOpType) String() string {
	switch cop {
	case LessThan:
		return "<"
	case LessThanOrEqual:
		return "<="
	case Equal:
		return "=="
	case NotEqual:
		return "!="
	case GreaterThan:
		return ">"
	case GreaterThanOrEqual:
		return ">="
	default:
		return ""
	}
}

// Info contains information about an opcode.
type Info struct {
	Code         Code
	Name         string
	OperandCount int
}

var infos = make([]Info, 256)

func init() {
	type opInfo struct {
		op    Code
		name  string
		count int
	}
	ops := []opInfo{
		{BinaryOp, "BINARY_OP", 1},
		{Break, "BREAK", 3},
		{Call, "CALL", 1},
		{CompareOp, "COMPARE_OP", 1},
		{Continue, "CONTINUE", 3},
		{Copy, "COPY", 1},
		{Emit, "EMIT", 0},
		{EndFinally, "END_FINALLY", 0},
		{EnterBlock, "ENTER_BLOCK", 0},
		{ExitBlock, "EXIT_BLOCK", 0},
		{False, "FALSE", 0},
		{Halt, "HALT", 0},
		{JumpBackward, "JUMP_BACKWARD", 1},
		{JumpForward, "JUMP_FORWARD", 1},
		{LoadConst, "LOAD_CONST", 1},
		{LoadFast, "LOAD_FAST", 1},
		{Nil, "NIL", 0},
		{Nop, "NOP", 0},
		{PopExcept, "POP_EXCEPT", 0},
		{PopJumpForwardIfFalse, "POP_JUMP_FORWARD_IF_FALSE", 1},
		{PopJumpForwardIfTrue, "POP_JUMP_FORWARD_IF_TRUE", 1},
		{PopScope, "POP_SCOPE", 0},
		{PopTop, "POP_TOP", 0},
		{PushExcept, "PUSH_EXCEPT", 4},
		{PushScope, "PUSH_SCOPE", 0},
		{ReturnValue, "RETURN_VALUE", 0},
		{StoreFast, "STORE_FAST", 1},
		{Throw, "THROW", 0},
		{True, "TRUE", 0},
	}
	for _, o := range ops {
		infos[o.op] = Info{
			Name:         o.name,
			Code:         o.op,
			OperandCount: o.count,
		}
	}
}

// GetInfo returns information about the given opcode. Unknown opcodes
// return an Info with an empty Name.
func GetInfo(op Code) Info {
	if int(op) >= len(infos) {
		return Info{}
	}
	return infos[op]
}
