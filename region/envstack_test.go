package region

import (
	"testing"

	"github.com/risor-io/unwind/bytecode"
	"github.com/stretchr/testify/require"
)

func TestEnvStackPushPop(t *testing.T) {
	var s EnvStack
	require.Equal(t, 0, s.Len())

	s.Push(BlockMarker())
	s.Push(finallyMarker(bytecode.AddressOf(20)))
	s.Push(regionMarker(bytecode.AddressOf(10), bytecode.AddressOf(20)))
	require.Equal(t, 3, s.Len())
	require.Equal(t, 2, s.Boundaries())

	top, ok := s.Top()
	require.True(t, ok)
	require.True(t, top.IsRegionBoundary())
	require.False(t, top.IsFinallyBoundary())
	require.Equal(t, 10, top.Catch().Offset())
	require.Equal(t, 20, top.Finally().Offset())

	m, ok := s.Pop()
	require.True(t, ok)
	require.True(t, m.IsRegionBoundary())
	m, ok = s.Pop()
	require.True(t, ok)
	require.True(t, m.IsFinallyBoundary())
	require.Equal(t, 0, s.Boundaries())

	m, ok = s.Pop()
	require.True(t, ok)
	require.False(t, m.IsBoundary())
	_, ok = s.Pop()
	require.False(t, ok)
	_, ok = s.Top()
	require.False(t, ok)
}

func TestEnvStackScopeCounting(t *testing.T) {
	var s EnvStack
	s.AddScope()
	require.Equal(t, 1, s.Len(), "counting on an empty stack adds a block marker")
	s.AddScope()
	s.Push(regionMarker(bytecode.NoAddress, bytecode.AddressOf(4)))
	s.AddScope()
	require.Equal(t, 3, s.TotalScopes())
	require.Equal(t, 2, s.At(0).ScopeCount())
	require.Equal(t, 1, s.At(1).ScopeCount())

	require.NoError(t, s.RemoveScope())
	require.ErrorIs(t, s.RemoveScope(), ErrScopeUnderflow)
	require.Equal(t, 2, s.TotalScopes())
}

func TestEnvStackInnermostRegion(t *testing.T) {
	var s EnvStack
	_, ok := s.innermostRegion()
	require.False(t, ok)

	s.Push(BlockMarker())
	s.Push(regionMarker(bytecode.AddressOf(1), bytecode.NoAddress))
	s.Push(finallyMarker(bytecode.AddressOf(9)))
	s.Push(BlockMarker())

	m, ok := s.innermostRegion()
	require.True(t, ok)
	require.Equal(t, 1, m.Catch().Offset())
}

func TestEnvStackReset(t *testing.T) {
	var s EnvStack
	s.Push(finallyMarker(bytecode.AddressOf(3)))
	s.AddScope()
	s.reset()
	require.Equal(t, 0, s.Len())
	require.Equal(t, 0, s.Boundaries())
	require.Equal(t, 0, s.TotalScopes())
}

func TestHandlerStack(t *testing.T) {
	var s HandlerStack
	require.True(t, s.IsEmpty())
	_, ok := s.Pop()
	require.False(t, ok)

	s.Push(Handler{Finally: bytecode.AddressOf(7), StackDepth: 2})
	s.Push(Handler{Finally: bytecode.NoAddress, StackDepth: 3})
	require.Equal(t, 2, s.Depth())

	h, ok := s.Top()
	require.True(t, ok)
	require.False(t, h.Finally.IsPresent())
	require.Equal(t, 3, h.StackDepth)

	h, ok = s.Pop()
	require.True(t, ok)
	require.Equal(t, 3, h.StackDepth)
	h, ok = s.Pop()
	require.True(t, ok)
	require.Equal(t, 7, h.Finally.Offset())
	require.True(t, s.IsEmpty())
}

func TestCompletionKinds(t *testing.T) {
	tests := []struct {
		c    Completion
		kind Kind
		desc string
	}{
		{nil, KindNone, "none"},
		{None{}, KindNone, "none"},
		{Return{Value: 3}, KindReturn, "return(3)"},
		{Throw{Payload: "boom"}, KindThrow, "throw(boom)"},
		{Break{Target: bytecode.AddressOf(12), Depth: 2}, KindBreak, "break(@12)"},
		{Continue{Target: bytecode.AddressOf(4), Depth: 2}, KindContinue, "continue(@4)"},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			require.Equal(t, tt.kind, KindOf(tt.c))
			require.Equal(t, tt.desc, Describe(tt.c))
		})
	}
	require.Equal(t, "kind(9)", Kind(9).String())
}
