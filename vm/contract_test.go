package vm

import (
	"context"
	"errors"
	"testing"

	"github.com/risor-io/unwind/bytecode"
	"github.com/risor-io/unwind/errz"
	"github.com/risor-io/unwind/op"
	"github.com/risor-io/unwind/region"
	"github.com/stretchr/testify/require"
)

const none = op.Code(0xFFFF)

func rawCode(instructions ...op.Code) *bytecode.Code {
	return bytecode.NewCode(bytecode.CodeParams{Instructions: instructions})
}

func TestContractViolations(t *testing.T) {
	tests := []struct {
		name  string
		code  *bytecode.Code
		cause error
	}{
		{
			name:  "exit without entry",
			code:  rawCode(op.PopExcept, op.Nil, op.ReturnValue),
			cause: region.ErrHandlerUnderflow,
		},
		{
			name:  "end finally without finally",
			code:  rawCode(op.EndFinally, op.Nil, op.ReturnValue),
			cause: region.ErrNoFinallyBoundary,
		},
		{
			name:  "pop scope without push",
			code:  rawCode(op.PopScope, op.Nil, op.ReturnValue),
			cause: region.ErrScopeUnderflow,
		},
		{
			name:  "exit block without entry",
			code:  rawCode(op.ExitBlock, op.Nil, op.ReturnValue),
			cause: region.ErrBlockMismatch,
		},
		{
			name:  "exit block inside region",
			code:  rawCode(op.PushExcept, none, none, 0, 6, op.ExitBlock, op.EndFinally, op.Nil, op.ReturnValue),
			cause: region.ErrBlockMismatch,
		},
		{
			name:  "break deeper than the environment",
			code:  rawCode(op.Break, 0, 4, 5, op.Nil, op.ReturnValue),
			cause: region.ErrDepth,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(context.Background(), tt.code)
			require.Error(t, err)
			kind, ok := errz.KindOf(err)
			require.True(t, ok)
			require.Equal(t, errz.ErrContract, kind)
			require.True(t, errors.Is(err, tt.cause), "got %v", err)
			require.True(t, region.IsContractViolation(err))
		})
	}
}

func TestContractViolationIsNotCatchable(t *testing.T) {
	// try { pop_except; pop_except } catch { emit }
	code := rawCode(
		op.PushExcept, 0, 9, none, none, // 0
		op.PopExcept,                    // 5
		op.PopExcept,                    // 6
		op.Nil,                          // 7
		op.ReturnValue,                  // 8
		op.Emit,                         // 9: catch
		op.Nil,
		op.ReturnValue,
	)
	machine := New(code)
	err := machine.Run(context.Background())
	require.ErrorIs(t, err, region.ErrHandlerUnderflow)
	require.Nil(t, machine.Output())
}

func TestValidation(t *testing.T) {
	code := rawCode(op.PushExcept, none, none, none, none, op.Nil, op.ReturnValue)
	_, err := Run(context.Background(), code)
	require.Error(t, err)
	kind, ok := errz.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errz.ErrValidation, kind)
	require.Contains(t, err.Error(), "region has neither catch nor finally")

	// With validation off the region opens and is closed by the return.
	_, err = Run(context.Background(), code, WithValidation(false))
	require.NoError(t, err)
}

func TestUnknownOpcode(t *testing.T) {
	code := rawCode(op.Code(250), op.Nil, op.ReturnValue)
	_, err := Run(context.Background(), code, WithValidation(false))
	kind, ok := errz.KindOf(err)
	require.True(t, ok)
	require.Equal(t, errz.ErrContract, kind)
	require.Contains(t, err.Error(), "unknown opcode: 250")
}
