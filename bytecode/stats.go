package bytecode

// Stats summarizes a single Code. Nested function bodies are counted only
// as constants; use Flatten to visit them.
type Stats struct {
	InstructionCount int // opcodes and operands
	ConstantCount    int
	FunctionCount    int
	RegionCount      int // protected regions, from the exception handler table
	SourceBytes      int
}
