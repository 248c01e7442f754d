package vm

import (
	"context"

	"github.com/risor-io/unwind/bytecode"
)

// Run the given code in a new Virtual Machine and return the result.
func Run(ctx context.Context, main *bytecode.Code, options ...Option) (any, error) {
	machine := New(main, options...)
	if err := machine.Run(ctx); err != nil {
		return nil, err
	}
	if result, exists := machine.TOS(); exists {
		return result, nil
	}
	return nil, nil
}

// RunCodeOnVM runs the given code on an existing Virtual Machine and returns
// the result. This allows reusing a VM instance to run multiple different
// code objects sequentially.
func RunCodeOnVM(ctx context.Context, vm *VirtualMachine, code *bytecode.Code, opts ...Option) (any, error) {
	if err := vm.RunCode(ctx, code, opts...); err != nil {
		return nil, err
	}
	if result, exists := vm.TOS(); exists {
		return result, nil
	}
	return nil, nil
}
