package bytecode

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/risor-io/unwind/op"
)

// Validate statically checks the code and every function reachable from it
// against the compiler contract the VM relies on: known opcodes, complete
// operands, constant indexes in range, and jump and region addresses that
// land on instruction boundaries. All problems found are returned together.
func Validate(code *Code) error {
	var result *multierror.Error
	for _, c := range code.Flatten() {
		if err := validateCode(c); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

type decoded struct {
	offset int
	instr  []op.Code
}

func validateCode(code *Code) error {
	var result *multierror.Error
	fail := func(offset int, format string, args ...any) {
		msg := fmt.Sprintf(format, args...)
		result = multierror.Append(result, fmt.Errorf("%s@%d: %s", codeLabel(code), offset, msg))
	}

	var instrs []decoded
	starts := map[int]bool{}
	iter := NewInstructionIter(code)
	for {
		offset := iter.Offset()
		instr, ok := iter.Next()
		if !ok {
			break
		}
		info := op.GetInfo(instr[0])
		if info.Name == "" {
			fail(offset, "unknown opcode %d", instr[0])
			continue
		}
		if len(instr)-1 < info.OperandCount {
			fail(offset, "%s is missing operands", info.Name)
			continue
		}
		starts[offset] = true
		instrs = append(instrs, decoded{offset: offset, instr: instr})
	}

	checkTarget := func(offset int, what string, target int) {
		if !starts[target] {
			fail(offset, "%s target %d is not an instruction boundary", what, target)
		}
	}

	for _, d := range instrs {
		switch d.instr[0] {
		case op.LoadConst:
			if idx := int(d.instr[1]); idx >= code.ConstantCount() {
				fail(d.offset, "constant index %d out of range", idx)
			}
		case op.LoadFast, op.StoreFast:
			if idx := int(d.instr[1]); idx >= code.LocalCount() {
				fail(d.offset, "local index %d out of range", idx)
			}
		case op.JumpForward, op.PopJumpForwardIfFalse, op.PopJumpForwardIfTrue:
			checkTarget(d.offset, "jump", d.offset+int(d.instr[1]))
		case op.JumpBackward:
			checkTarget(d.offset, "jump", d.offset-int(d.instr[1]))
		case op.PushExcept:
			catch := DecodeAddress(d.instr[1], d.instr[2])
			finally := DecodeAddress(d.instr[3], d.instr[4])
			if !catch.IsPresent() && !finally.IsPresent() {
				fail(d.offset, "region has neither catch nor finally")
			}
			if catch.IsPresent() {
				checkTarget(d.offset, "catch", catch.Offset())
			}
			if finally.IsPresent() {
				checkTarget(d.offset, "finally", finally.Offset())
			}
		case op.Break, op.Continue:
			target := DecodeAddress(d.instr[1], d.instr[2])
			if !target.IsPresent() {
				fail(d.offset, "%s has no target", op.GetInfo(d.instr[0]).Name)
				continue
			}
			checkTarget(d.offset, "loop", target.Offset())
		}
	}
	return result.ErrorOrNil()
}

func codeLabel(code *Code) string {
	if code.Name() != "" {
		return code.Name()
	}
	return "<main>"
}
