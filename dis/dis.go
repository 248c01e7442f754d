// Package dis supports analysis of unwind bytecode by disassembling it.
// This works with the opcodes defined in the `op` package and uses the
// InstructionIter type from the `bytecode` package.
//
// Region and loop-exit instructions are annotated with their decoded
// addresses, so a listing shows where a throw or break will land.
package dis

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/risor-io/unwind/bytecode"
	"github.com/risor-io/unwind/internal/table"
	"github.com/risor-io/unwind/op"
)

// Instruction represents a single bytecode instruction and its operands.
type Instruction struct {
	Offset     int
	Name       string
	Opcode     op.Code
	Operands   []op.Code
	Annotation string
	Constant   any
	// Targets holds the offsets this instruction may transfer control to.
	Targets []int
}

// Disassemble returns a parsed representation of the given bytecode.
func Disassemble(code *bytecode.Code) ([]Instruction, error) {
	var instructions []Instruction
	iter := bytecode.NewInstructionIter(code)
	for {
		offset := iter.Offset()
		val, ok := iter.Next()
		if !ok {
			break
		}
		info := op.GetInfo(val[0])
		if info.Name == "" {
			return nil, fmt.Errorf("unknown opcode %d at offset %d", val[0], offset)
		}
		if len(val)-1 != info.OperandCount {
			return nil, fmt.Errorf("truncated %s at offset %d", info.Name, offset)
		}
		instr := Instruction{
			Offset:   offset,
			Name:     info.Name,
			Opcode:   val[0],
			Operands: val[1:],
		}
		if err := annotate(code, &instr); err != nil {
			return nil, err
		}
		instructions = append(instructions, instr)
	}
	return instructions, nil
}

func annotate(code *bytecode.Code, instr *Instruction) error {
	operands := instr.Operands
	switch instr.Opcode {
	case op.LoadFast, op.StoreFast:
		name, err := getLocalVariableName(code, int(operands[0]))
		if err != nil {
			return err
		}
		instr.Annotation = name
	case op.BinaryOp:
		instr.Annotation = op.BinaryOpType(operands[0]).String()
	case op.CompareOp:
		instr.Annotation = op.CompareOpType(operands[0]).String()
	case op.LoadConst:
		constant, err := getConstantValue(code, int(operands[0]))
		if err != nil {
			return err
		}
		instr.Constant = constant
		instr.Annotation = fmt.Sprintf("%v", constant)
	case op.JumpForward, op.PopJumpForwardIfFalse, op.PopJumpForwardIfTrue:
		target := instr.Offset + int(operands[0])
		instr.Targets = []int{target}
		instr.Annotation = fmt.Sprintf("to %d", target)
	case op.JumpBackward:
		target := instr.Offset - int(operands[0])
		instr.Targets = []int{target}
		instr.Annotation = fmt.Sprintf("to %d", target)
	case op.PushExcept:
		catch := bytecode.DecodeAddress(operands[0], operands[1])
		finally := bytecode.DecodeAddress(operands[2], operands[3])
		for _, addr := range []bytecode.Address{catch, finally} {
			if offset, ok := addr.Get(); ok {
				instr.Targets = append(instr.Targets, offset)
			}
		}
		instr.Annotation = fmt.Sprintf("catch %s finally %s", catch, finally)
	case op.Break, op.Continue:
		target := bytecode.DecodeAddress(operands[0], operands[1])
		if offset, ok := target.Get(); ok {
			instr.Targets = []int{offset}
		}
		instr.Annotation = fmt.Sprintf("to %s depth %d", target, operands[2])
	}
	return nil
}

func italic(s string) string {
	return color.New(color.Italic).Sprint(s)
}

func bold(s string) string {
	return color.New(color.Bold).Sprint(s)
}

// Print a string representation of the given instructions to the given writer.
func Print(instructions []Instruction, writer io.Writer) {
	var lines [][]string
	for _, instr := range instructions {
		var values []string
		values = append(values, fmt.Sprintf("%d", instr.Offset))
		values = append(values, bold(instr.Name))
		values = append(values, formatOperands(instr.Operands))
		if instr.Constant != nil {
			switch c := instr.Constant.(type) {
			case int64:
				values = append(values, color.YellowString("%d", c))
			case float64:
				values = append(values, color.YellowString("%f", c))
			case string:
				if len(c) > 80 {
					c = c[:77] + "..."
				}
				values = append(values, color.GreenString("%q", c))
			case *bytecode.Function:
				name := c.Name()
				if name == "" {
					name = italic("<anonymous>")
				}
				values = append(values, color.MagentaString("func:%s", name))
			default:
				values = append(values, bold(fmt.Sprintf("%v", c)))
			}
		} else if instr.Annotation != "" {
			values = append(values, color.New(color.FgHiCyan).Sprint(instr.Annotation))
		} else {
			values = append(values, "")
		}
		lines = append(lines, values)
	}

	table.NewTable(writer).
		WithHeader([]string{"OFFSET", "OPCODE", "OPERANDS", "INFO"}).
		WithColumnAlignment([]table.Alignment{
			table.AlignRight,
			table.AlignLeft,
			table.AlignRight,
			table.AlignLeft,
		}).
		WithHeaderAlignment([]table.Alignment{
			table.AlignCenter,
			table.AlignCenter,
			table.AlignCenter,
			table.AlignCenter,
		}).
		WithRows(lines).
		Render()
}

// PrintAll disassembles code and every function nested in it, printing one
// titled table per code object.
func PrintAll(code *bytecode.Code, writer io.Writer) error {
	for i, c := range code.Flatten() {
		instructions, err := Disassemble(c)
		if err != nil {
			return fmt.Errorf("%s: %w", codeName(c), err)
		}
		if i > 0 {
			fmt.Fprintln(writer)
		}
		fmt.Fprintf(writer, "%s\n", bold(codeName(c)))
		Print(instructions, writer)
	}
	return nil
}

func codeName(code *bytecode.Code) string {
	if code.Name() == "" {
		return "<main>"
	}
	return code.Name()
}

func formatOperands(ops []op.Code) string {
	var sb strings.Builder
	for i, op := range ops {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%d", op))
	}
	return sb.String()
}

func getLocalVariableName(code *bytecode.Code, index int) (string, error) {
	if code.LocalCount() <= index {
		return "", fmt.Errorf("local variable index out of range: %d", index)
	}
	if name := code.LocalNameAt(index); name != "" {
		return name, nil
	}
	return fmt.Sprintf("local_%d", index), nil
}

func getConstantValue(code *bytecode.Code, index int) (any, error) {
	if code.ConstantCount() <= index {
		return "", fmt.Errorf("constant index out of range: %d", index)
	}
	return code.ConstantAt(index), nil
}
